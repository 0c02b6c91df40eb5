package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// ErrNoProvider is returned when the router has nothing to call.
var ErrNoProvider = errors.New("no AI provider registered")

// Router tries providers in order until one succeeds. Each task may put
// preferred providers ahead of the registration order.
type Router struct {
	providers map[string]Provider
	fallback  []string // ordered fallback chain
	preferred map[TaskType][]string
	mu        sync.RWMutex
}

// NewRouter creates a new AI router.
func NewRouter() *Router {
	return &Router{
		providers: make(map[string]Provider),
		preferred: make(map[TaskType][]string),
	}
}

// Register adds a provider to the router under its name.
func (r *Router) Register(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := provider.Name()
	if _, ok := r.providers[name]; !ok {
		r.fallback = append(r.fallback, name)
	}
	r.providers[name] = provider
}

// Prefer makes the named providers go first for task. Unknown names are
// ignored at call time.
func (r *Router) Prefer(task TaskType, names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preferred[task] = slices.Clone(names)
}

func (r *Router) chain(task TaskType) []string {
	out := make([]string, 0, len(r.fallback))
	for _, name := range r.preferred[task] {
		if _, ok := r.providers[name]; ok && !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	for _, name := range r.fallback {
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

// Complete routes a request to the first provider that answers it.
func (r *Router) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	r.mu.RLock()
	chain := r.chain(req.Task)
	providers := make([]Provider, len(chain))
	for i, name := range chain {
		providers[i] = r.providers[name]
	}
	r.mu.RUnlock()

	if len(providers) == 0 {
		return CompletionResponse{}, ErrNoProvider
	}

	var errs []error
	for _, provider := range providers {
		if err := ctx.Err(); err != nil {
			return CompletionResponse{}, err
		}
		resp, err := provider.Complete(ctx, req)
		if err != nil {
			slog.Warn("AI provider failed, trying next",
				"provider", provider.Name(),
				"task", req.Task.String(),
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", provider.Name(), err))
			continue
		}

		if resp.Provider == "" {
			resp.Provider = provider.Name()
		}
		slog.Debug("AI request completed",
			"provider", resp.Provider,
			"task", req.Task.String(),
			"model", resp.Model,
			"input_tokens", resp.InputTokens,
			"output_tokens", resp.OutputTokens,
		)
		return resp, nil
	}

	return CompletionResponse{}, fmt.Errorf("all AI providers failed: %w", errors.Join(errs...))
}

// HasProvider returns true if at least one provider is registered.
func (r *Router) HasProvider() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers) > 0
}
