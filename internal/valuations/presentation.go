package valuations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"valuation-backend/internal/gamma"
	"valuation-backend/internal/shared/metrics"
	"valuation-backend/internal/shared/telemetry"
)

// PresentationClient is the slice of the gamma API the presenter needs.
type PresentationClient interface {
	Submit(ctx context.Context, inputText, language string) (string, error)
	Poll(ctx context.Context, generationID string) gamma.PollResult
}

// RetryablePresentationError signals the worker to re-enqueue the task with
// backoff instead of treating the failure as terminal.
type RetryablePresentationError struct {
	Err error
}

func (e *RetryablePresentationError) Error() string {
	return fmt.Sprintf("retriable presentation failure: %v", e.Err)
}

func (e *RetryablePresentationError) Unwrap() error { return e.Err }

func retriable(err error) error {
	return &RetryablePresentationError{Err: err}
}

// Presenter runs Task 2: submit the presentation prompt and poll until the
// artifact exists or the attempt is spent. Retry disposition across attempts
// belongs to the worker, not here.
type Presenter struct {
	Repo     Repo
	Client   PresentationClient
	Language string

	// PollInterval and PollDeadline bound one attempt's polling loop.
	PollInterval time.Duration
	PollDeadline time.Duration
}

const (
	defaultPollInterval = 20 * time.Second
	defaultPollDeadline = 5 * time.Minute
)

// Generate performs one presentation attempt. It returns nil for every
// terminal outcome and *RetryablePresentationError when the attempt should
// be retried.
func (p *Presenter) Generate(ctx context.Context, valuationID string) error {
	v, err := p.Repo.GetByID(ctx, valuationID)
	if errors.Is(err, ErrNotFound) {
		telemetry.Warn("presentation.missing_record", map[string]any{"valuation_id": valuationID})
		return nil
	}
	if err != nil {
		return retriable(fmt.Errorf("load valuation: %w", err))
	}

	// Duplicate or late delivery: anything already terminal is left alone.
	if v.PresentationStatus != PresentationPending {
		telemetry.Info("presentation.skipped", map[string]any{
			"valuation_id":        valuationID,
			"presentation_status": string(v.PresentationStatus),
		})
		return nil
	}

	if p.Client == nil {
		telemetry.Error("presentation.not_configured", map[string]any{"valuation_id": valuationID})
		p.failPresentation(ctx, valuationID)
		return nil
	}

	prompt, _ := v.Result["presentation_prompt"].(string)
	if strings.TrimSpace(prompt) == "" {
		telemetry.Error("presentation.missing_prompt", map[string]any{"valuation_id": valuationID})
		p.failPresentation(ctx, valuationID)
		return nil
	}

	generationID, err := p.Client.Submit(ctx, prompt, p.Language)
	if err != nil {
		return retriable(fmt.Errorf("submit generation: %w", err))
	}
	telemetry.Info("presentation.submitted", map[string]any{
		"valuation_id":  valuationID,
		"generation_id": generationID,
	})

	return p.pollUntilTerminal(ctx, valuationID, generationID)
}

func (p *Presenter) pollUntilTerminal(ctx context.Context, valuationID, generationID string) error {
	interval := p.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	deadline := p.PollDeadline
	if deadline <= 0 {
		deadline = defaultPollDeadline
	}
	expiry := time.Now().Add(deadline)

	for {
		res := p.Client.Poll(ctx, generationID)
		switch res.Outcome {
		case gamma.OutcomeCompleted:
			if err := p.Repo.CompletePresentation(ctx, valuationID, res.URL); err != nil {
				if errors.Is(err, ErrStaleTransition) {
					return nil
				}
				return retriable(fmt.Errorf("persist artifact: %w", err))
			}
			metrics.IncPresentationCompleted()
			telemetry.Info("presentation.completed", map[string]any{
				"valuation_id": valuationID,
				"artifact_url": res.URL,
			})
			return nil

		case gamma.OutcomeFailed:
			return retriable(fmt.Errorf("provider reported failure: %s", res.Detail))

		case gamma.OutcomeFatal:
			// A rejected request will not get better with retries.
			telemetry.Error("presentation.fatal", map[string]any{
				"valuation_id": valuationID,
				"detail":       res.Detail,
			})
			p.failPresentation(ctx, valuationID)
			return nil

		case gamma.OutcomeTransient, gamma.OutcomeInProgress:
			// Loop-internal patience; not counted against the retry budget.
		}

		if time.Now().After(expiry) {
			return retriable(fmt.Errorf("polling deadline exceeded for generation %s", generationID))
		}

		select {
		case <-ctx.Done():
			return retriable(ctx.Err())
		case <-time.After(interval):
		}
	}
}

func (p *Presenter) failPresentation(ctx context.Context, valuationID string) {
	if err := p.Repo.FailPresentation(ctx, valuationID); err != nil && !errors.Is(err, ErrStaleTransition) {
		telemetry.Error("presentation.fail_update_failed", map[string]any{
			"valuation_id": valuationID,
			"error":        err.Error(),
		})
		return
	}
	metrics.IncPresentationFailed()
}
