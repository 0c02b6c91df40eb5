package ai_test

import (
	"context"
	"errors"
	"testing"

	"github.com/p-n-ai/pai-adaptive/internal/ai"
)

func named(name string, responses ...string) *ai.MockProvider {
	m := ai.NewMockProvider(responses...)
	m.ProviderName = name
	return m
}

func request(task ai.TaskType) ai.CompletionRequest {
	return ai.CompletionRequest{
		Messages: []ai.Message{{Role: "user", Content: "hi"}},
		Task:     task,
	}
}

func TestRouter_SingleProvider(t *testing.T) {
	router := ai.NewRouter()
	router.Register(named("openai", "Hello!"))

	resp, err := router.Complete(t.Context(), request(ai.TaskGeneration))
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "Hello!" || resp.Provider != "openai" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestRouter_Fallback(t *testing.T) {
	router := ai.NewRouter()

	failing := named("openai")
	failing.Err = errors.New("rate limited")
	router.Register(failing)
	router.Register(named("ollama", "Fallback response"))

	resp, err := router.Complete(t.Context(), request(ai.TaskGeneration))
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "Fallback response" {
		t.Errorf("Content = %q, want %q", resp.Content, "Fallback response")
	}
	if failing.Calls() != 1 {
		t.Errorf("failing provider calls = %d, want 1", failing.Calls())
	}
}

func TestRouter_AllProvidersFail(t *testing.T) {
	router := ai.NewRouter()

	first, second := named("openai"), named("ollama")
	first.Err = errors.New("fail 1")
	second.Err = errors.New("fail 2")
	router.Register(first)
	router.Register(second)

	_, err := router.Complete(t.Context(), request(ai.TaskGeneration))
	if err == nil {
		t.Fatal("Complete() should return error when all providers fail")
	}
	if !errors.Is(err, second.Err) {
		t.Errorf("error %v should wrap every provider failure", err)
	}
}

func TestRouter_NoProviders(t *testing.T) {
	router := ai.NewRouter()

	_, err := router.Complete(t.Context(), request(ai.TaskGeneration))
	if !errors.Is(err, ai.ErrNoProvider) {
		t.Fatalf("Complete() error = %v, want ErrNoProvider", err)
	}
	if router.HasProvider() {
		t.Error("HasProvider() should be false with no providers")
	}
}

func TestRouter_Order(t *testing.T) {
	router := ai.NewRouter()
	router.Register(named("first", "first"))
	router.Register(named("second", "second"))
	router.Prefer(ai.TaskExplanation, "second", "missing")

	tests := []struct {
		task ai.TaskType
		want string
	}{
		{ai.TaskGeneration, "first"},
		{ai.TaskExplanation, "second"},
	}
	for _, tt := range tests {
		t.Run(tt.task.String(), func(t *testing.T) {
			resp, err := router.Complete(t.Context(), request(tt.task))
			if err != nil {
				t.Fatalf("Complete() error = %v", err)
			}
			if resp.Content != tt.want {
				t.Errorf("Content = %q, want %q", resp.Content, tt.want)
			}
		})
	}
}

func TestRouter_CancelledContext(t *testing.T) {
	router := ai.NewRouter()
	p := named("openai", "never")
	router.Register(p)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if _, err := router.Complete(ctx, request(ai.TaskGeneration)); !errors.Is(err, context.Canceled) {
		t.Errorf("Complete() error = %v, want context.Canceled", err)
	}
	if p.Calls() != 0 {
		t.Errorf("provider called %d times after cancellation", p.Calls())
	}
}
