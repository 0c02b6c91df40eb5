package coach

import (
	"context"
	"fmt"
	"time"

	"github.com/p-n-ai/pai-adaptive/internal/analytics"
	"github.com/p-n-ai/pai-adaptive/internal/insight"
	"github.com/p-n-ai/pai-adaptive/internal/learning"
)

// AnalyzeSession runs the analytics pipeline over one completed session.
func (e *Engine) AnalyzeSession(ctx context.Context, userID, sessionID string) (analytics.Analysis, error) {
	defer e.observe("session", time.Now())

	sess, err := e.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return analytics.Analysis{}, err
	}
	if sess.Status != learning.SessionCompleted {
		return analytics.Analysis{}, fmt.Errorf("session %s is %s: %w", sessionID, sess.Status, learning.ErrInvalidState)
	}

	ss, err := e.sessionSignals(ctx, []learning.Session{*sess})
	if err != nil {
		return analytics.Analysis{}, err
	}
	return analytics.Analyze(flatten(ss)), nil
}

// AnalyzeDocument runs the analytics pipeline over every completed session
// of a document. Results are cached until the user completes another session.
func (e *Engine) AnalyzeDocument(ctx context.Context, userID, documentID string) (analytics.Analysis, error) {
	defer e.observe("document", time.Now())

	return cached(ctx, e, userID, "analysis:"+documentID, func() (analytics.Analysis, error) {
		ss, err := e.completedSignals(ctx, userID, documentID)
		if err != nil {
			return analytics.Analysis{}, err
		}
		return analytics.Analyze(flatten(ss)), nil
	})
}

// Targeting proposes the next practice test for a document.
func (e *Engine) Targeting(ctx context.Context, userID, documentID string) (analytics.AdaptiveTargeting, error) {
	a, err := e.AnalyzeDocument(ctx, userID, documentID)
	if err != nil {
		return analytics.AdaptiveTargeting{}, err
	}
	return a.Targeting, nil
}

// Velocity measures how fast one topic improves across sessions.
func (e *Engine) Velocity(ctx context.Context, userID, documentID, topic string) (insight.Velocity, error) {
	defer e.observe("velocity", time.Now())

	ss, err := e.completedSignals(ctx, userID, documentID)
	if err != nil {
		return insight.Velocity{}, err
	}
	topic = learning.TopicName(topic)
	return insight.ComputeVelocity(topic, insight.Trajectory(ss, topic)), nil
}

// CompareVelocities ranks every topic the user has practiced by velocity.
func (e *Engine) CompareVelocities(ctx context.Context, userID, documentID string) ([]insight.Velocity, error) {
	defer e.observe("velocity_comparison", time.Now())

	ss, err := e.completedSignals(ctx, userID, documentID)
	if err != nil {
		return nil, err
	}
	topics := insight.Topics(ss)
	velocities := make([]insight.Velocity, 0, len(topics))
	for _, topic := range topics {
		velocities = append(velocities, insight.ComputeVelocity(topic, insight.Trajectory(ss, topic)))
	}
	return insight.CompareVelocities(velocities), nil
}

// ForgettingCurve reports how far a topic has decayed from its peak.
func (e *Engine) ForgettingCurve(ctx context.Context, userID, documentID, topic string) (insight.ForgettingCurve, error) {
	defer e.observe("forgetting", time.Now())

	ss, err := e.completedSignals(ctx, userID, documentID)
	if err != nil {
		return insight.ForgettingCurve{}, err
	}
	topic = learning.TopicName(topic)
	return insight.DetectForgetting(topic, insight.Trajectory(ss, topic), e.now()), nil
}

// Readiness scores exam readiness for a document. Catalog topics that were
// never practiced count against coverage.
func (e *Engine) Readiness(ctx context.Context, userID, documentID string) (insight.ExamReadiness, error) {
	defer e.observe("readiness", time.Now())

	return cached(ctx, e, userID, "readiness:"+documentID, func() (insight.ExamReadiness, error) {
		ss, err := e.completedSignals(ctx, userID, documentID)
		if err != nil {
			return insight.ExamReadiness{}, err
		}
		return insight.ComputeReadiness(e.documentTopics(documentID), ss), nil
	})
}

// Fingerprint profiles the user over all of their sessions.
func (e *Engine) Fingerprint(ctx context.Context, userID string) (insight.Fingerprint, error) {
	defer e.observe("fingerprint", time.Now())

	return cached(ctx, e, userID, "fingerprint", func() (insight.Fingerprint, error) {
		ss, err := e.completedSignals(ctx, userID, "")
		if err != nil {
			return insight.Fingerprint{}, err
		}
		return insight.ComputeFingerprint(userID, ss), nil
	})
}
