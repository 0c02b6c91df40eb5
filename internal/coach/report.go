package coach

import (
	"context"
	"fmt"
	"io"

	"github.com/p-n-ai/pai-adaptive/internal/report"
)

// ExportReport writes an XLSX workbook of the user's analytics for a document.
func (e *Engine) ExportReport(ctx context.Context, userID, documentID string, w io.Writer) error {
	analysis, err := e.AnalyzeDocument(ctx, userID, documentID)
	if err != nil {
		return err
	}
	readiness, err := e.Readiness(ctx, userID, documentID)
	if err != nil {
		return err
	}
	velocities, err := e.CompareVelocities(ctx, userID, documentID)
	if err != nil {
		return err
	}
	schedule, err := e.ReviewSchedule(ctx, userID, documentID)
	if err != nil {
		return err
	}
	due, err := e.DueReviews(ctx, userID, documentID, 0)
	if err != nil {
		return err
	}

	if err := report.Write(w, report.Data{
		UserID:      userID,
		DocumentID:  documentID,
		GeneratedAt: e.now(),
		Analysis:    analysis,
		Readiness:   readiness,
		Velocities:  velocities,
		Schedule:    schedule,
		Due:         due,
	}); err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}
	return nil
}
