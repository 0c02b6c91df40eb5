// Package report renders a learner's analytics for one document as an XLSX
// workbook.
package report

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-adaptive/internal/analytics"
	"github.com/p-n-ai/pai-adaptive/internal/insight"
	"github.com/p-n-ai/pai-adaptive/internal/review"
)

// Sheet names, in workbook order.
const (
	SheetSummary    = "Summary"
	SheetTopics     = "Topics"
	SheetWeaknesses = "Weaknesses"
	SheetVelocity   = "Velocity"
	SheetReviews    = "Reviews"
)

// Data is everything the workbook shows.
type Data struct {
	UserID      string
	DocumentID  string
	GeneratedAt time.Time
	Analysis    analytics.Analysis
	Readiness   insight.ExamReadiness
	Velocities  []insight.Velocity
	Schedule    review.Schedule
	Due         []review.QueueItem
}

type sheetWriter struct {
	f     *excelize.File
	bold  int
	sheet string
	row   int
}

func (s *sheetWriter) add(values ...any) error {
	s.row++
	cell, err := excelize.CoordinatesToCellName(1, s.row)
	if err != nil {
		return err
	}
	return s.f.SetSheetRow(s.sheet, cell, &values)
}

func (s *sheetWriter) header(values ...any) error {
	if err := s.add(values...); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(values), s.row)
	if err != nil {
		return err
	}
	first, _ := excelize.CoordinatesToCellName(1, s.row)
	return s.f.SetCellStyle(s.sheet, first, last, s.bold)
}

// Write renders d as an XLSX workbook to w.
func Write(w io.Writer, d Data) error {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("renaming sheet: %w", err)
	}
	for _, name := range []string{SheetTopics, SheetWeaknesses, SheetVelocity, SheetReviews} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("creating sheet %s: %w", name, err)
		}
	}

	writers := []struct {
		sheet string
		fill  func(*sheetWriter, Data) error
	}{
		{SheetSummary, writeSummary},
		{SheetTopics, writeTopics},
		{SheetWeaknesses, writeWeaknesses},
		{SheetVelocity, writeVelocity},
		{SheetReviews, writeReviews},
	}
	for _, sw := range writers {
		if err := sw.fill(&sheetWriter{f: f, bold: bold, sheet: sw.sheet}, d); err != nil {
			return fmt.Errorf("writing sheet %s: %w", sw.sheet, err)
		}
		if err := f.SetColWidth(sw.sheet, "A", "A", 28); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func writeSummary(s *sheetWriter, d Data) error {
	a, r := d.Analysis, d.Readiness
	rows := [][]any{
		{"User", d.UserID},
		{"Document", d.DocumentID},
		{"Generated at", d.GeneratedAt.UTC().Format(time.RFC3339)},
		{"Questions", a.TotalQuestions},
		{"Answered", a.Answered},
		{"Correct", a.Correct},
		{"Accuracy (%)", percent(a.Accuracy)},
		{"Behavioral type", string(a.BehavioralType)},
		{"Readiness level", r.ReadinessLevel},
		{"Readiness score", r.OverallScore},
		{"Estimated study hours", r.EstimatedStudyHours},
		{"Strong topics", strings.Join(r.StrongTopics, ", ")},
		{"Weak topics", strings.Join(r.WeakTopics, ", ")},
		{"Priority actions", strings.Join(r.PriorityActions, "; ")},
	}
	if err := s.header("Metric", "Value"); err != nil {
		return err
	}
	for _, row := range rows {
		if err := s.add(row...); err != nil {
			return err
		}
	}
	return nil
}

func writeTopics(s *sheetWriter, d Data) error {
	if err := s.header("Topic", "Attempts", "Correct", "Wrong", "Mastery (%)", "Avg time (s)"); err != nil {
		return err
	}
	for _, m := range d.Analysis.Mastery {
		if err := s.add(m.Topic, m.TotalAttempts, m.CorrectAttempts, m.WrongAttempts, m.MasteryPercentage, m.AvgTimeTaken); err != nil {
			return err
		}
	}
	return nil
}

func writeWeaknesses(s *sheetWriter, d Data) error {
	if err := s.header("Topic", "Priority", "Mastery", "Confidence penalty", "Patterns", "Recommendation"); err != nil {
		return err
	}
	for _, w := range d.Analysis.Weaknesses {
		patterns := make([]string, len(w.FailurePatterns))
		for i, p := range w.FailurePatterns {
			patterns[i] = string(p)
		}
		if err := s.add(w.Topic, w.PriorityScore, w.MasteryScore, w.ConfidencePenalty, strings.Join(patterns, ", "), w.Recommendation); err != nil {
			return err
		}
	}
	return nil
}

func writeVelocity(s *sheetWriter, d Data) error {
	if err := s.header("Topic", "Sessions", "Velocity", "Acceleration", "Sessions to mastery", "Comparison"); err != nil {
		return err
	}
	for _, v := range d.Velocities {
		var toMastery any = ""
		if v.SessionsToMastery != nil {
			toMastery = *v.SessionsToMastery
		}
		if err := s.add(v.Topic, v.SessionsAnalyzed, v.Velocity, v.Acceleration, toMastery, v.ComparativeRank); err != nil {
			return err
		}
	}
	return nil
}

func writeReviews(s *sheetWriter, d Data) error {
	sc := d.Schedule
	for _, row := range [][]any{
		{"Due today", sc.DueToday},
		{"Due this week", sc.DueThisWeek},
		{"Due this month", sc.DueThisMonth},
		{"Total reviews", sc.TotalReviews},
	} {
		if err := s.add(row...); err != nil {
			return err
		}
	}

	s.row++ // blank line between the summary and the queue
	if err := s.header("Question", "Topic", "Due", "Days overdue", "Ease factor", "Priority"); err != nil {
		return err
	}
	for _, q := range d.Due {
		if err := s.add(q.QuestionID, q.Topic, q.NextReviewDate.UTC().Format(time.DateOnly), q.DaysOverdue, q.EaseFactor, q.Priority); err != nil {
			return err
		}
	}
	return nil
}

func percent(v float64) float64 {
	return math.Round(v*1000) / 10
}
