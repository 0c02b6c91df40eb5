package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/p-n-ai/pai-adaptive/internal/ai"
	"github.com/p-n-ai/pai-adaptive/internal/learning"
)

// Mistake is a wrong or skipped answer to explain.
type Mistake struct {
	Question learning.Question
	Answer   learning.Answer
	// Context is the source text the explanation must stay within.
	Context string
}

// Explanation grounds a mistake in the source text.
type Explanation struct {
	SourceParagraph    string `json:"source_paragraph"`
	SectionReference   string `json:"section_reference"`
	WhyWrong           string `json:"why_wrong"`
	ConceptExplanation string `json:"concept_explanation"`
	CommonMistake      string `json:"common_mistake"`
	BehavioralInsight  string `json:"behavioral_insight"`
	// Fallback is set when the explanation was built without the model.
	Fallback bool `json:"fallback"`
}

const explanationSystemPrompt = `You are a patient tutor explaining mistakes.

RULES:
1. Base the explanation ONLY on the provided context.
2. Quote the paragraph of the context that answers the question.
3. Consider the student's behavior (time, hesitation, skipping).
4. Do NOT invent information that is not in the context.
5. If the context is insufficient, say so.`

// behavioralNote describes what the answer's timing suggests.
func behavioralNote(a learning.Answer) string {
	switch {
	case a.Outcome() == learning.StatusSkipped:
		return fmt.Sprintf("Student skipped this question after %ds, suggesting avoidance or uncertainty.", a.TimeTaken)
	case a.TimeTaken < 20:
		return fmt.Sprintf("Student answered quickly (%ds), possibly guessing.", a.TimeTaken)
	case a.TimeTaken > 60:
		return fmt.Sprintf("Student spent %ds and hesitated %d times, indicating confusion.", a.TimeTaken, a.HesitationCount)
	}
	return ""
}

func buildExplanationPrompt(m Mistake, note string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nStudent's Answer: %s\nCorrect Answer: %s\n", m.Question.Text, m.Answer.UserAnswer, m.Question.CorrectAnswer)
	if note != "" {
		fmt.Fprintf(&b, "\nBehavioral note: %s\n", note)
	}
	fmt.Fprintf(&b, "\nSource Context from Document:\n%s\n\n", m.Context)
	b.WriteString(`Return ONLY a JSON object:
{
  "source_paragraph": "EXACT quote from the context that answers this question",
  "section_reference": "Which section or paragraph this came from",
  "why_wrong": "Why the student's reasoning was flawed, considering their behavior",
  "concept_explanation": "The concept, using ONLY information from the context",
  "common_mistake": "The misconception, if this is a common one",
  "behavioral_insight": "What their time and hesitation suggest about their understanding"
}`)
	return b.String()
}

// Explain asks the model why an answer was wrong. It never fails: when the
// model is unavailable or answers badly, a grounded fallback is returned.
func (g *Generator) Explain(ctx context.Context, m Mistake) Explanation {
	note := behavioralNote(m.Answer)
	if m.Context == "" {
		m.Context = m.Question.SourceContext
	}

	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	resp, err := g.llm.Complete(ctx, ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "system", Content: explanationSystemPrompt},
			{Role: "user", Content: buildExplanationPrompt(m, note)},
		},
		MaxTokens:   g.opts.MaxTokens,
		Temperature: g.opts.Temperature,
		Task:        ai.TaskExplanation,
		JSONMode:    true,
	})
	if err != nil {
		slog.Warn("explanation fell back", "question_id", m.Question.ID, "error", err)
		return fallbackExplanation(m, note)
	}

	var out Explanation
	if err := json.Unmarshal([]byte(stripFences(resp.Content)), &out); err != nil {
		slog.Warn("explanation fell back", "question_id", m.Question.ID, "error", err)
		return fallbackExplanation(m, note)
	}
	if out.SourceParagraph == "" {
		out.SourceParagraph = excerpt(m.Context)
	}
	if out.SectionReference == "" {
		out.SectionReference = "Source material"
	}
	if out.BehavioralInsight == "" {
		out.BehavioralInsight = "Based on your response pattern"
	}
	return out
}

func fallbackExplanation(m Mistake, note string) Explanation {
	insight := note
	if insight == "" {
		insight = "N/A"
	}
	return Explanation{
		SourceParagraph:    excerpt(m.Context),
		SectionReference:   "Source material",
		WhyWrong:           fmt.Sprintf("Your answer '%s' is incorrect.", m.Answer.UserAnswer),
		ConceptExplanation: fmt.Sprintf("The correct answer is '%s'. Review the source context.", m.Question.CorrectAnswer),
		CommonMistake:      "Review the concept carefully.",
		BehavioralInsight:  insight,
		Fallback:           true,
	}
}

func excerpt(s string) string {
	r := []rune(s)
	if len(r) <= 200 {
		return s
	}
	return string(r[:200]) + "..."
}
