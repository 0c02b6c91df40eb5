package api

import (
	"net/http"
	"time"

	"github.com/p-n-ai/pai-adaptive/internal/coach"
	"github.com/p-n-ai/pai-adaptive/internal/learning"
	"github.com/p-n-ai/pai-adaptive/internal/review"
)

type startSessionRequest struct {
	DocumentID  string   `json:"document_id"`
	QuestionIDs []string `json:"question_ids"`
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, userID string) {
	var req startSessionRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.engine.StartSession(r.Context(), userID, req.DocumentID, req.QuestionIDs)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request, userID string) {
	sess, err := h.engine.Session(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) recordAnswer(w http.ResponseWriter, r *http.Request, userID string) {
	id := r.PathValue("id")
	if _, err := h.engine.Session(r.Context(), userID, id); err != nil {
		writeEngineError(w, r, err)
		return
	}
	var answer learning.Answer
	if !decode(w, r, &answer) {
		return
	}
	if answer.Status != "" {
		answer.Status = learning.ParseAnswerStatus(string(answer.Status))
	}
	sess, err := h.engine.RecordAnswer(r.Context(), id, answer)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) completeSession(w http.ResponseWriter, r *http.Request, userID string) {
	id := r.PathValue("id")
	if _, err := h.engine.Session(r.Context(), userID, id); err != nil {
		writeEngineError(w, r, err)
		return
	}
	sess, err := h.engine.CompleteSession(r.Context(), id)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) analyzeSession(w http.ResponseWriter, r *http.Request, userID string) {
	a, err := h.engine.AnalyzeSession(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) explainMistake(w http.ResponseWriter, r *http.Request, userID string) {
	exp, err := h.engine.ExplainMistake(r.Context(), userID, r.PathValue("id"), r.PathValue("question"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (h *Handler) analyzeDocument(w http.ResponseWriter, r *http.Request, userID string) {
	a, err := h.engine.AnalyzeDocument(r.Context(), userID, r.PathValue("doc"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) targeting(w http.ResponseWriter, r *http.Request, userID string) {
	t, err := h.engine.Targeting(r.Context(), userID, r.PathValue("doc"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) readiness(w http.ResponseWriter, r *http.Request, userID string) {
	rd, err := h.engine.Readiness(r.Context(), userID, r.PathValue("doc"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rd)
}

// velocity reports one topic when ?topic= is given and compares all topics otherwise.
func (h *Handler) velocity(w http.ResponseWriter, r *http.Request, userID string) {
	doc := r.PathValue("doc")
	if topic := r.URL.Query().Get("topic"); topic != "" {
		v, err := h.engine.Velocity(r.Context(), userID, doc, topic)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
		return
	}
	vs, err := h.engine.CompareVelocities(r.Context(), userID, doc)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

func (h *Handler) forgetting(w http.ResponseWriter, r *http.Request, userID string) {
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		writeError(w, http.StatusBadRequest, "topic query parameter is required")
		return
	}
	fc, err := h.engine.ForgettingCurve(r.Context(), userID, r.PathValue("doc"), topic)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fc)
}

func (h *Handler) pool(w http.ResponseWriter, r *http.Request, userID string) {
	stats, err := h.engine.QuestionPool(r.Context(), userID, r.PathValue("doc"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type selectRequest struct {
	Count        int                     `json:"count"`
	Types        []learning.QuestionType `json:"question_types"`
	Topics       []string                `json:"topics"`
	Difficulties []learning.Difficulty   `json:"difficulties"`
}

// selectQuestions answers 202 with Retry-After while questions are generated.
func (h *Handler) selectQuestions(w http.ResponseWriter, r *http.Request, userID string) {
	var req selectRequest
	if !decode(w, r, &req) {
		return
	}
	for i, t := range req.Types {
		req.Types[i] = learning.ParseQuestionType(string(t))
	}
	for i, d := range req.Difficulties {
		req.Difficulties[i] = learning.ParseDifficulty(string(d))
	}

	res, err := h.engine.SelectQuestions(r.Context(), coach.SelectRequest{
		UserID:       userID,
		DocumentID:   r.PathValue("doc"),
		Count:        req.Count,
		Types:        req.Types,
		Topics:       req.Topics,
		Difficulties: req.Difficulties,
	})
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if res.Status == coach.StatusGenerating {
		w.Header().Set("Retry-After", retryAfterSeconds(res))
		writeJSON(w, http.StatusAccepted, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) exportReport(w http.ResponseWriter, r *http.Request, userID string) {
	doc := r.PathValue("doc")
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="report-`+doc+`.xlsx"`)
	if err := h.engine.ExportReport(r.Context(), userID, doc, w); err != nil {
		w.Header().Del("Content-Disposition")
		writeEngineError(w, r, err)
	}
}

func (h *Handler) fingerprint(w http.ResponseWriter, r *http.Request, userID string) {
	fp, err := h.engine.Fingerprint(r.Context(), userID)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fp)
}

func (h *Handler) dueReviews(w http.ResponseWriter, r *http.Request, userID string) {
	limit, ok := queryInt(r, "limit", 20)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	items, err := h.engine.DueReviews(r.Context(), userID, r.URL.Query().Get("document_id"), limit)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reviews": items, "count": len(items)})
}

func (h *Handler) reviewSchedule(w http.ResponseWriter, r *http.Request, userID string) {
	s, err := h.engine.ReviewSchedule(r.Context(), userID, r.URL.Query().Get("document_id"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) requestReview(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		QuestionID string `json:"question_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	item, err := h.engine.RequestReview(r.Context(), userID, req.QuestionID)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *Handler) submitReview(w http.ResponseWriter, r *http.Request, userID string) {
	var resp review.Response
	if !decode(w, r, &resp) {
		return
	}
	item, err := h.engine.SubmitReview(r.Context(), userID, r.PathValue("question"), resp)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) rescheduleReview(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		NextReviewDate time.Time `json:"next_review_date"`
	}
	if !decode(w, r, &req) {
		return
	}
	item, err := h.engine.RescheduleReview(r.Context(), userID, r.PathValue("question"), req.NextReviewDate)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}
