package generation

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/p-n-ai/pai-adaptive/internal/learning"
)

//go:embed question.schema.json
var questionSchemaJSON string

// Draft is one question as returned by the model, before it is stored.
type Draft struct {
	Text          string            `json:"question_text"`
	Type          string            `json:"question_type"`
	Difficulty    string            `json:"difficulty"`
	Topic         string            `json:"topic"`
	Options       []learning.Option `json:"options"`
	CorrectAnswer string            `json:"correct_answer"`
	Explanation   string            `json:"explanation"`
	SourceContext *string           `json:"source_context"`
}

// Question converts the draft into a question owned by req's user and document.
// The requested type, topic and difficulty win over what the model echoed.
func (d Draft) Question(req Request) learning.Question {
	q := learning.Question{
		DocumentID:    req.DocumentID,
		UserID:        req.UserID,
		Text:          strings.TrimSpace(d.Text),
		Type:          req.Type,
		Difficulty:    req.Difficulty,
		Topic:         req.Topic,
		Options:       slices.Clone(d.Options),
		CorrectAnswer: strings.TrimSpace(d.CorrectAnswer),
		Explanation:   strings.TrimSpace(d.Explanation),
	}
	if q.Topic == "" {
		q.Topic = d.Topic
	}
	if q.Difficulty == "" {
		q.Difficulty = learning.ParseDifficulty(d.Difficulty)
	}
	if d.SourceContext != nil {
		q.SourceContext = strings.TrimSpace(*d.SourceContext)
	}
	if q.Type != learning.QuestionMCQ {
		q.Options = nil
	}
	return q
}

var errNoQuestions = errors.New("response holds no questions")

// validator checks raw drafts against the embedded JSON schema.
type validator struct {
	schema *gojsonschema.Schema
}

func newValidator() (*validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(questionSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile question schema: %w", err)
	}
	return &validator{schema: schema}, nil
}

// parseDrafts extracts the drafts from a model response. The response may be
// a bare array or an object with a "questions" array, optionally inside a
// markdown code fence. Drafts failing the schema or the type rules are
// dropped and reported in skipped.
func (v *validator) parseDrafts(content string, qType learning.QuestionType) (drafts []Draft, skipped []string, err error) {
	raw, err := splitItems(stripFences(content))
	if err != nil {
		return nil, nil, err
	}

	for i, item := range raw {
		result, err := v.schema.Validate(gojsonschema.NewBytesLoader(item))
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("item %d: %v", i, err))
			continue
		}
		if !result.Valid() {
			msgs := make([]string, 0, len(result.Errors()))
			for _, e := range result.Errors() {
				msgs = append(msgs, e.String())
			}
			skipped = append(skipped, fmt.Sprintf("item %d: %s", i, strings.Join(msgs, "; ")))
			continue
		}

		var d Draft
		if err := json.Unmarshal(item, &d); err != nil {
			skipped = append(skipped, fmt.Sprintf("item %d: %v", i, err))
			continue
		}
		if qType == learning.QuestionMCQ && !usableOptions(d.Options) {
			skipped = append(skipped, fmt.Sprintf("item %d: multiple-choice draft without a correct option", i))
			continue
		}
		drafts = append(drafts, d)
	}
	return drafts, skipped, nil
}

func usableOptions(opts []learning.Option) bool {
	return len(opts) >= 2 && slices.ContainsFunc(opts, func(o learning.Option) bool { return o.IsCorrect })
}

func splitItems(content string) ([]json.RawMessage, error) {
	if content == "" {
		return nil, errNoQuestions
	}
	var items []json.RawMessage
	if strings.HasPrefix(content, "[") {
		if err := json.Unmarshal([]byte(content), &items); err != nil {
			return nil, fmt.Errorf("decode question array: %w", err)
		}
		return items, nil
	}

	var envelope struct {
		Questions []json.RawMessage `json:"questions"`
	}
	if err := json.Unmarshal([]byte(content), &envelope); err != nil {
		return nil, fmt.Errorf("decode question object: %w", err)
	}
	if envelope.Questions == nil {
		return nil, errNoQuestions
	}
	return envelope.Questions, nil
}

// stripFences removes a surrounding ```json ... ``` block.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
