// Package generation turns document excerpts into practice questions with an
// LLM and runs that work out of band: selection schedules a job, a worker
// generates and stores the questions, and the client retries shortly after.
package generation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/p-n-ai/pai-adaptive/internal/ai"
	"github.com/p-n-ai/pai-adaptive/internal/learning"
)

// MaxBatch caps how many questions one completion is asked for.
const MaxBatch = 20

// Request describes one generation call.
type Request struct {
	DocumentID string
	UserID     string
	Context    string
	Topic      string
	Count      int
	Difficulty learning.Difficulty
	Type       learning.QuestionType
}

// Options tunes the completion requests.
type Options struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Generator asks an LLM for question drafts and validates them.
type Generator struct {
	llm       ai.Completer
	opts      Options
	validator *validator
}

// NewGenerator creates a generator over llm.
func NewGenerator(llm ai.Completer, opts Options) (*Generator, error) {
	if llm == nil {
		return nil, fmt.Errorf("completer is nil")
	}
	v, err := newValidator()
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 90 * time.Second
	}
	return &Generator{llm: llm, opts: opts, validator: v}, nil
}

const generationSystemPrompt = `You are an expert educational content creator. Your task is to generate high-quality questions from the provided text.

RULES:
1. Questions MUST be strictly based on the provided context.
2. Do NOT create generic questions or invent information.
3. Questions should test understanding, not just memorization.
4. Follow the requested question_type exactly:
   - "mcq": exactly 4 options with ONE correct answer
   - "short_answer" or "conceptual": no options, only correct_answer as text
5. Include a detailed explanation for every question.
6. Return ONLY a JSON object of the form {"questions": [...]}, no markdown and no extra text.`

func buildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Context:\n%s\n\n", req.Context)
	fmt.Fprintf(&b, "Topic: %s\nDifficulty: %s\nQuestion Type: %s\nNumber of Questions: %d\n\n",
		req.Topic, req.Difficulty, req.Type, req.Count)
	fmt.Fprintf(&b, "Generate %d %s questions with %s difficulty from the context above.\n\n",
		req.Count, req.Type, req.Difficulty)

	b.WriteString("Each element of \"questions\" must have this structure:\n{\n")
	fmt.Fprintf(&b, "  \"question_text\": \"The question text\",\n  \"question_type\": %q,\n  \"difficulty\": %q,\n  \"topic\": %q,\n",
		req.Type, req.Difficulty, req.Topic)
	if req.Type == learning.QuestionMCQ {
		b.WriteString(`  "options": [
    {"text": "Option A", "is_correct": false},
    {"text": "Option B", "is_correct": true},
    {"text": "Option C", "is_correct": false},
    {"text": "Option D", "is_correct": false}
  ],
`)
	} else {
		b.WriteString("  \"options\": null,\n")
	}
	b.WriteString(`  "correct_answer": "The correct answer as plain text",
  "explanation": "Why this answer is correct",
  "source_context": "The excerpt of the context the question is based on"
}`)
	return b.String()
}

func (r Request) normalize() (Request, error) {
	if strings.TrimSpace(r.Context) == "" {
		return r, fmt.Errorf("generation context is empty: %w", learning.ErrInvalidInput)
	}
	if r.Count <= 0 {
		return r, fmt.Errorf("count must be positive, got %d: %w", r.Count, learning.ErrInvalidInput)
	}
	r.Count = min(r.Count, MaxBatch)
	if !r.Type.Valid() {
		r.Type = learning.ParseQuestionType(string(r.Type))
	}
	if r.Difficulty == "" {
		r.Difficulty = learning.DifficultyMedium
	}
	r.Topic = strings.TrimSpace(r.Topic)
	return r, nil
}

// Generate returns up to req.Count validated questions. Collaborator
// failures and unusable responses are reported as upstream errors.
func (g *Generator) Generate(ctx context.Context, req Request) ([]learning.Question, error) {
	req, err := req.normalize()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	resp, err := g.llm.Complete(ctx, ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "system", Content: generationSystemPrompt},
			{Role: "user", Content: buildPrompt(req)},
		},
		MaxTokens:   g.opts.MaxTokens,
		Temperature: g.opts.Temperature,
		Task:        ai.TaskGeneration,
		JSONMode:    true,
	})
	if err != nil {
		return nil, learning.Upstream("generate questions", err)
	}

	drafts, skipped, err := g.validator.parseDrafts(resp.Content, req.Type)
	if err != nil {
		return nil, learning.Upstream("parse generated questions", err)
	}
	if len(skipped) > 0 {
		slog.Warn("dropped invalid question drafts",
			"document_id", req.DocumentID,
			"topic", req.Topic,
			"dropped", len(skipped),
			"first", skipped[0],
		)
	}
	if len(drafts) == 0 {
		return nil, learning.Upstream("parse generated questions", errNoQuestions)
	}
	if len(drafts) > req.Count {
		drafts = drafts[:req.Count]
	}

	out := make([]learning.Question, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, d.Question(req))
	}
	slog.Debug("generated questions",
		"document_id", req.DocumentID,
		"topic", req.Topic,
		"count", len(out),
		"provider", resp.Provider,
	)
	return out, nil
}
