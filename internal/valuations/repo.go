package valuations

import "context"

// Repo persists valuations. Mutating methods enforce the status transition
// tables: a call whose guard matches no row returns ErrStaleTransition.
type Repo interface {
	Create(ctx context.Context, v Valuation) error
	GetByID(ctx context.Context, id string) (Valuation, error)
	ListByUser(ctx context.Context, userID string) ([]Valuation, error)

	// MarkProcessing moves pending -> processing.
	MarkProcessing(ctx context.Context, id string) error
	// MarkSucceeded moves processing -> success and stores the result. When
	// presentationPending is true it also moves the presentation sub-status
	// absent -> pending in the same write.
	MarkSucceeded(ctx context.Context, id string, result map[string]any, presentationPending bool) error
	// MarkFailed moves pending|processing -> failed and stores the error
	// payload as the result.
	MarkFailed(ctx context.Context, id string, result map[string]any) error

	// CompletePresentation moves the sub-status pending -> completed and sets
	// the artifact URL in the same write.
	CompletePresentation(ctx context.Context, id, artifactURL string) error
	// FailPresentation moves the sub-status pending -> failed. It never
	// clobbers a completed presentation.
	FailPresentation(ctx context.Context, id string) error
}
