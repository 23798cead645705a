package users

import "context"

// Service exposes user lookups and profile updates.
type Service struct {
	Repo Repo
}

func NewService(repo Repo) *Service {
	return &Service{Repo: repo}
}

// Get returns the user with the given ID.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.Repo.GetByID(ctx, id)
}

// Save upserts a user record.
func (s *Service) Save(ctx context.Context, u User) error {
	return s.Repo.Upsert(ctx, u)
}
