package valuations

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repo for tests and local runs. It enforces the
// same transition guards as PGRepo.
type MemoryRepo struct {
	mu   sync.RWMutex
	rows map[string]Valuation
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: make(map[string]Valuation)}
}

func (r *MemoryRepo) Create(ctx context.Context, v Valuation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	v.Status = StatusPending
	v.PresentationStatus = PresentationAbsent
	v.CreatedAt = now
	v.UpdatedAt = now
	r.rows[v.ID] = v
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Valuation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.rows[id]
	if !ok {
		return Valuation{}, ErrNotFound
	}
	return v, nil
}

func (r *MemoryRepo) ListByUser(ctx context.Context, userID string) ([]Valuation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Valuation
	for _, v := range r.rows {
		if v.UserID == userID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepo) MarkProcessing(ctx context.Context, id string) error {
	return r.update(id, func(v *Valuation) bool {
		if !CanTransition(v.Status, StatusProcessing) {
			return false
		}
		v.Status = StatusProcessing
		return true
	})
}

func (r *MemoryRepo) MarkSucceeded(ctx context.Context, id string, result map[string]any, presentationPending bool) error {
	return r.update(id, func(v *Valuation) bool {
		if !CanTransition(v.Status, StatusSuccess) {
			return false
		}
		v.Status = StatusSuccess
		v.Result = result
		if presentationPending && CanTransitionPresentation(v.PresentationStatus, PresentationPending) {
			v.PresentationStatus = PresentationPending
		}
		return true
	})
}

func (r *MemoryRepo) MarkFailed(ctx context.Context, id string, result map[string]any) error {
	return r.update(id, func(v *Valuation) bool {
		if !CanTransition(v.Status, StatusFailed) {
			return false
		}
		v.Status = StatusFailed
		v.Result = result
		return true
	})
}

func (r *MemoryRepo) CompletePresentation(ctx context.Context, id, artifactURL string) error {
	return r.update(id, func(v *Valuation) bool {
		if !CanTransitionPresentation(v.PresentationStatus, PresentationCompleted) {
			return false
		}
		v.PresentationStatus = PresentationCompleted
		url := artifactURL
		v.ArtifactURL = &url
		return true
	})
}

func (r *MemoryRepo) FailPresentation(ctx context.Context, id string) error {
	return r.update(id, func(v *Valuation) bool {
		if !CanTransitionPresentation(v.PresentationStatus, PresentationFailed) {
			return false
		}
		v.PresentationStatus = PresentationFailed
		return true
	})
}

func (r *MemoryRepo) update(id string, apply func(*Valuation) bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.rows[id]
	if !ok {
		return ErrNotFound
	}
	if !apply(&v) {
		return ErrStaleTransition
	}
	v.UpdatedAt = time.Now().UTC()
	r.rows[id] = v
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
