package cache

import (
	"testing"
	"time"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid-redis", "redis://localhost:6379", false},
		{"valid-with-db", "redis://localhost:6379/0", false},
		{"wrong scheme", "http://localhost:6379", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResultKey(t *testing.T) {
	if got := resultKey("analytics", "u1", 3, "document:d1"); got != "analytics:u1:3:document:d1" {
		t.Errorf("resultKey() = %q", got)
	}
	if resultKey("analytics", "u1", 3, "k") == resultKey("analytics", "u1", 4, "k") {
		t.Error("keys of different generations must differ")
	}
}

func TestNewResults_DefaultTTL(t *testing.T) {
	r := NewResults(&Cache{}, "analytics", 0)
	if r.ttl != 10*time.Minute {
		t.Errorf("ttl = %v, want 10m", r.ttl)
	}
	if r.generationKey("u1") != "analytics:gen:u1" {
		t.Errorf("generationKey() = %q", r.generationKey("u1"))
	}
}

func TestNew_UnreachableHost(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping unreachable host test in short mode")
	}

	ctx := t.Context()
	_, err := New(ctx, "redis://localhost:59999")
	if err == nil {
		t.Fatal("New() should return error for unreachable host")
	}
}

// TestResultsAndLocks runs against a local Redis when one is listening.
func TestResultsAndLocks(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis test in short mode")
	}
	ctx := t.Context()
	c, err := New(ctx, "redis://localhost:6379/15")
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	r := NewResults(c, "test-results-"+time.Now().Format("150405.000"), time.Minute)
	type payload struct{ Score float64 }

	var got payload
	if hit, err := r.Get(ctx, "u1", "k", &got); err != nil || hit {
		t.Fatalf("Get() on empty cache = %v, %v", hit, err)
	}
	if err := r.Set(ctx, "u1", "k", payload{Score: 0.42}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if hit, err := r.Get(ctx, "u1", "k", &got); err != nil || !hit || got.Score != 0.42 {
		t.Fatalf("Get() = %v, %+v, %v", hit, got, err)
	}
	if err := r.Invalidate(ctx, "u1"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if hit, _ := r.Get(ctx, "u1", "k", &got); hit {
		t.Error("Get() after Invalidate should miss")
	}

	locks := NewLocks(c, "test-locks-"+time.Now().Format("150405.000"))
	token, err := locks.Acquire(ctx, "u1:d1", time.Minute)
	if err != nil || token == "" {
		t.Fatalf("Acquire() = %q, %v", token, err)
	}
	if again, _ := locks.Acquire(ctx, "u1:d1", time.Minute); again != "" {
		t.Error("second Acquire() should fail while held")
	}
	if err := locks.Release(ctx, "u1:d1", "not-the-owner"); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if again, _ := locks.Acquire(ctx, "u1:d1", time.Minute); again != "" {
		t.Error("Release with a foreign token must not drop the lock")
	}
	if err := locks.Release(ctx, "u1:d1", token); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if again, _ := locks.Acquire(ctx, "u1:d1", time.Minute); again == "" {
		t.Error("Acquire() after Release should succeed")
	}
}
