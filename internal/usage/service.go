package usage

import "context"

// Service gates valuation starts on the user's plan quota.
type Service struct {
	Store Store
}

func NewService(store Store) *Service {
	return &Service{Store: store}
}

// Status returns the user's current usage row.
func (s *Service) Status(ctx context.Context, userID string) (Usage, error) {
	return s.Store.Get(ctx, userID)
}

// CanStart reports whether the user may start another valuation. It does
// not consume quota; Record does that after the valuation succeeds.
func (s *Service) CanStart(ctx context.Context, userID string) error {
	u, err := s.Store.Get(ctx, userID)
	if err != nil {
		return err
	}
	if u.Used >= u.Limit {
		return ErrLimitReached
	}
	return nil
}

// Record consumes one unit of quota.
func (s *Service) Record(ctx context.Context, userID string) (Usage, error) {
	return s.Store.Increment(ctx, userID)
}
