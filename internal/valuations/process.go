package valuations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"valuation-backend/internal/queue"
	"valuation-backend/internal/shared/metrics"
	"valuation-backend/internal/shared/telemetry"
	"valuation-backend/internal/usage"
	"valuation-backend/internal/users"
)

// Processor runs Task 1: analyze the inputs, commit the result, account for
// usage and hand off to the presentation task.
type Processor struct {
	Repo     Repo
	Analyzer *Analyzer
	Usage    *usage.Service
	Users    *users.Service
	Queue    queue.Client
}

// Process drives one valuation from pending to a terminal status. Analysis
// failures are recorded on the row, never returned: a non-nil error here
// means only infrastructure trouble.
func (p *Processor) Process(ctx context.Context, valuationID, requestID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			// Best effort. A panic must not leave the row stuck in
			// processing or take the worker down.
			failure := map[string]any{"error": fmt.Sprintf("internal error: %v", r)}
			if markErr := p.Repo.MarkFailed(ctx, valuationID, failure); markErr != nil && !errors.Is(markErr, ErrStaleTransition) {
				telemetry.Error("valuation.panic_cleanup_failed", map[string]any{
					"valuation_id": valuationID,
					"error":        markErr.Error(),
				})
			}
			metrics.IncValuationFailed()
			err = nil
		}
	}()

	start := time.Now()

	v, err := p.Repo.GetByID(ctx, valuationID)
	if errors.Is(err, ErrNotFound) {
		telemetry.Warn("valuation.analyze_missing_record", map[string]any{
			"valuation_id": valuationID,
			"request_id":   requestID,
		})
		return nil
	}
	if err != nil {
		return fmt.Errorf("load valuation: %w", err)
	}

	if err := p.Repo.MarkProcessing(ctx, valuationID); err != nil {
		if errors.Is(err, ErrStaleTransition) {
			// Duplicate delivery; someone else already took the row.
			telemetry.Info("valuation.analyze_duplicate_delivery", map[string]any{
				"valuation_id": valuationID,
				"status":       string(v.Status),
			})
			return nil
		}
		return fmt.Errorf("mark processing: %w", err)
	}
	p.logTransition(valuationID, StatusPending, StatusProcessing)

	result, analysisErr := p.Analyzer.Analyze(ctx, v.Inputs, p.subjectName(ctx, v.UserID))
	if analysisErr != nil {
		var ae *AnalysisError
		payload := map[string]any{"error": analysisErr.Error()}
		if errors.As(analysisErr, &ae) {
			payload = ae.Payload()
		}
		if err := p.Repo.MarkFailed(ctx, valuationID, payload); err != nil && !errors.Is(err, ErrStaleTransition) {
			return fmt.Errorf("mark failed: %w", err)
		}
		p.logTransition(valuationID, StatusProcessing, StatusFailed)
		metrics.IncValuationFailed()
		return nil
	}

	hasPrompt := strings.TrimSpace(result.PresentationPrompt) != ""
	if err := p.Repo.MarkSucceeded(ctx, valuationID, result.Raw, hasPrompt); err != nil {
		if errors.Is(err, ErrStaleTransition) {
			telemetry.Warn("valuation.analyze_lost_commit_race", map[string]any{
				"valuation_id": valuationID,
			})
			return nil
		}
		return fmt.Errorf("mark succeeded: %w", err)
	}
	p.logTransition(valuationID, StatusProcessing, StatusSuccess)
	metrics.IncValuationCompleted()
	metrics.ObserveValuationDurationMs(float64(time.Since(start).Milliseconds()))

	if _, err := p.Usage.Record(ctx, v.UserID); err != nil {
		// The valuation already committed; losing the counter is better
		// than failing the record now.
		telemetry.Error("valuation.usage_increment_failed", map[string]any{
			"valuation_id": valuationID,
			"user_id":      v.UserID,
			"error":        err.Error(),
		})
	}

	if hasPrompt {
		if err := p.Queue.Send(ctx, queue.NewPresentationMessage(valuationID, requestID, 1)); err != nil {
			telemetry.Error("valuation.presentation_enqueue_failed", map[string]any{
				"valuation_id": valuationID,
				"error":        err.Error(),
			})
			if failErr := p.Repo.FailPresentation(ctx, valuationID); failErr != nil && !errors.Is(failErr, ErrStaleTransition) {
				telemetry.Error("valuation.presentation_cleanup_failed", map[string]any{
					"valuation_id": valuationID,
					"error":        failErr.Error(),
				})
			}
		}
	}
	return nil
}

// subjectName resolves the display name fed to the analysis prompt.
func (p *Processor) subjectName(ctx context.Context, userID string) string {
	u, err := p.Users.Get(ctx, userID)
	if err != nil || strings.TrimSpace(u.CompanyName) == "" {
		return "a empresa"
	}
	return u.CompanyName
}

func (p *Processor) logTransition(valuationID string, from, to Status) {
	telemetry.Info("valuation.status", map[string]any{
		"valuation_id":      valuationID,
		"status_transition": fmt.Sprintf("%s->%s", from, to),
	})
}
