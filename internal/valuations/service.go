package valuations

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"valuation-backend/internal/queue"
	"valuation-backend/internal/shared/metrics"
	"valuation-backend/internal/shared/telemetry"
	"valuation-backend/internal/usage"
)

// ValidationError carries per-field input problems back to the handler.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid inputs: %d field(s)", len(e.Fields))
}

// Service owns the synchronous side of the pipeline: record creation with the
// usage gate, plus reads. Background mutation happens in Processor and
// Presenter.
type Service struct {
	Repo  Repo
	Usage *usage.Service
	Queue queue.Client
}

func NewService(repo Repo, usageService *usage.Service, queueClient queue.Client) *Service {
	return &Service{
		Repo:  repo,
		Usage: usageService,
		Queue: queueClient,
	}
}

// Create validates inputs, checks the caller's quota, persists a pending
// record and enqueues the analysis task. No record is created on validation
// failure.
func (s *Service) Create(ctx context.Context, userID, requestID string, inputs Inputs) (Valuation, error) {
	if problems := inputs.Validate(); len(problems) > 0 {
		return Valuation{}, &ValidationError{Fields: problems}
	}

	if err := s.Usage.CanStart(ctx, userID); err != nil {
		return Valuation{}, err
	}

	v := Valuation{
		ID:     uuid.NewString(),
		UserID: userID,
		Inputs: inputs,
	}
	if err := s.Repo.Create(ctx, v); err != nil {
		return Valuation{}, fmt.Errorf("create valuation: %w", err)
	}

	if err := s.Queue.Send(ctx, queue.NewAnalyzeMessage(v.ID, requestID)); err != nil {
		// The record exists but will never be picked up; fail it so the
		// caller does not poll a pending row forever.
		failure := map[string]any{"error": "failed to schedule analysis"}
		if markErr := s.Repo.MarkFailed(ctx, v.ID, failure); markErr != nil {
			telemetry.Error("valuation.enqueue_cleanup_failed", map[string]any{
				"valuation_id": v.ID,
				"error":        markErr.Error(),
			})
		}
		return Valuation{}, fmt.Errorf("enqueue analysis: %w", err)
	}

	metrics.IncValuationStarted()
	telemetry.Info("valuation.created", map[string]any{
		"valuation_id": v.ID,
		"user_id":      userID,
		"request_id":   requestID,
	})

	created, err := s.Repo.GetByID(ctx, v.ID)
	if err != nil {
		return Valuation{}, fmt.Errorf("reload valuation: %w", err)
	}
	return created, nil
}

// Get returns a valuation owned by the given user.
func (s *Service) Get(ctx context.Context, userID, id string) (Valuation, error) {
	v, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return Valuation{}, err
	}
	if v.UserID != userID {
		return Valuation{}, ErrNotFound
	}
	return v, nil
}

// List returns the user's valuations, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]Valuation, error) {
	return s.Repo.ListByUser(ctx, userID)
}
