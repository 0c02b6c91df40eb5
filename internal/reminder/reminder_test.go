package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/p-n-ai/pai-adaptive/internal/platform/metrics"
)

type fixedCounts struct {
	counts map[string]int
	err    error
}

func (f fixedCounts) DueReviewCounts(context.Context, time.Time) (map[string]int, error) {
	return f.counts, f.err
}

type capture struct {
	mu      sync.Mutex
	digests []Digest
	failFor string
}

func (c *capture) Publish(_ context.Context, key string, v any) error {
	if key != RoutingKey {
		return errors.New("unexpected routing key " + key)
	}
	body, _ := json.Marshal(v)
	var d Digest
	_ = json.Unmarshal(body, &d)

	c.mu.Lock()
	defer c.mu.Unlock()
	if d.UserID == c.failFor {
		return errors.New("channel closed")
	}
	c.digests = append(c.digests, d)
	return nil
}

func (c *capture) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.digests)
}

func TestSweep(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	pub := &capture{}
	s := NewSweeper(fixedCounts{counts: map[string]int{"bob": 2, "alice": 3, "carol": 0}}, pub, m)
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	sent, err := s.Sweep(t.Context())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if sent != 2 {
		t.Fatalf("sent = %d, want 2", sent)
	}
	if pub.digests[0].UserID != "alice" || pub.digests[0].Due != 3 || !pub.digests[0].At.Equal(now) {
		t.Errorf("first digest = %+v", pub.digests[0])
	}
	if got := testutil.ToFloat64(m.DueReviews); got != 5 {
		t.Errorf("due gauge = %v, want 5", got)
	}
}

func TestSweep_Errors(t *testing.T) {
	pub := &capture{failFor: "alice"}
	s := NewSweeper(fixedCounts{counts: map[string]int{"alice": 1, "bob": 1}}, pub, nil)

	sent, err := s.Sweep(t.Context())
	if err == nil {
		t.Error("Sweep() error = nil, want publish failure")
	}
	if sent != 1 || pub.digests[0].UserID != "bob" {
		t.Errorf("sent = %d (%+v), want bob's digest despite alice failing", sent, pub.digests)
	}

	s = NewSweeper(fixedCounts{err: errors.New("db down")}, pub, nil)
	if _, err := s.Sweep(t.Context()); err == nil {
		t.Error("Sweep() error = nil, want store failure")
	}
}

func TestScheduler(t *testing.T) {
	pub := &capture{}
	s := NewScheduler(NewSweeper(fixedCounts{counts: map[string]int{"alice": 1}}, pub, nil), time.Hour)

	if err := NewScheduler(s.sweeper, 0).Start(t.Context()); err == nil {
		t.Error("Start() with zero interval succeeded")
	}

	if err := s.Start(t.Context()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for pub.len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if pub.len() == 0 {
		t.Error("first sweep did not run on start")
	}
}
