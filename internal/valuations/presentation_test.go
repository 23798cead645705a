package valuations

import (
	"context"
	"errors"
	"testing"
	"time"

	"valuation-backend/internal/gamma"
)

type stubPresentationClient struct {
	submitID    string
	submitErr   error
	polls       []gamma.PollResult
	submitCalls int
	pollCalls   int
}

func (s *stubPresentationClient) Submit(ctx context.Context, inputText, language string) (string, error) {
	s.submitCalls++
	if s.submitErr != nil {
		return "", s.submitErr
	}
	return s.submitID, nil
}

func (s *stubPresentationClient) Poll(ctx context.Context, generationID string) gamma.PollResult {
	s.pollCalls++
	if len(s.polls) == 0 {
		return gamma.PollResult{Outcome: gamma.OutcomeInProgress}
	}
	res := s.polls[0]
	if len(s.polls) > 1 {
		s.polls = s.polls[1:]
	}
	return res
}

func newPresenterFixture(t *testing.T, client PresentationClient) (*Presenter, *MemoryRepo) {
	t.Helper()
	repo := NewMemoryRepo()
	presenter := &Presenter{
		Repo:         repo,
		Client:       client,
		Language:     "pt-br",
		PollInterval: time.Millisecond,
		PollDeadline: 50 * time.Millisecond,
	}
	return presenter, repo
}

func seedSucceededValuation(t *testing.T, repo *MemoryRepo, id string) {
	t.Helper()
	ctx := context.Background()
	if err := repo.Create(ctx, Valuation{ID: id, UserID: "user-1", Inputs: testInputs()}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.MarkProcessing(ctx, id); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	result := map[string]any{
		"valuation_amount":    3000000.00,
		"presentation_prompt": "Crie uma apresentacao.",
	}
	if err := repo.MarkSucceeded(ctx, id, result, true); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
}

func TestGenerateCompletesOnFirstPoll(t *testing.T) {
	client := &stubPresentationClient{
		submitID: "gen-1",
		polls:    []gamma.PollResult{{Outcome: gamma.OutcomeCompleted, URL: "https://gamma.app/docs/abc"}},
	}
	presenter, repo := newPresenterFixture(t, client)
	seedSucceededValuation(t, repo, "val-1")

	if err := presenter.Generate(context.Background(), "val-1"); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	v, _ := repo.GetByID(context.Background(), "val-1")
	if v.PresentationStatus != PresentationCompleted {
		t.Fatalf("presentation status = %s, want completed", v.PresentationStatus)
	}
	if v.ArtifactURL == nil || *v.ArtifactURL != "https://gamma.app/docs/abc" {
		t.Fatalf("artifact url = %v", v.ArtifactURL)
	}
	if v.Status != StatusSuccess {
		t.Errorf("record status = %s, want success untouched", v.Status)
	}
}

func TestGenerateWaitsThroughTransientAndInProgress(t *testing.T) {
	client := &stubPresentationClient{
		submitID: "gen-1",
		polls: []gamma.PollResult{
			{Outcome: gamma.OutcomeInProgress},
			{Outcome: gamma.OutcomeTransient, Detail: "poll returned 503"},
			{Outcome: gamma.OutcomeCompleted, URL: "https://gamma.app/docs/xyz"},
		},
	}
	presenter, repo := newPresenterFixture(t, client)
	seedSucceededValuation(t, repo, "val-1")

	if err := presenter.Generate(context.Background(), "val-1"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if client.pollCalls != 3 {
		t.Errorf("poll calls = %d, want 3", client.pollCalls)
	}
	v, _ := repo.GetByID(context.Background(), "val-1")
	if v.PresentationStatus != PresentationCompleted {
		t.Fatalf("presentation status = %s", v.PresentationStatus)
	}
}

func TestGenerateIdempotentWhenAlreadyTerminal(t *testing.T) {
	client := &stubPresentationClient{submitID: "gen-1"}
	presenter, repo := newPresenterFixture(t, client)
	seedSucceededValuation(t, repo, "val-1")
	if err := repo.CompletePresentation(context.Background(), "val-1", "https://gamma.app/docs/first"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if err := presenter.Generate(context.Background(), "val-1"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if client.submitCalls != 0 || client.pollCalls != 0 {
		t.Errorf("no outbound calls expected, got submit=%d poll=%d", client.submitCalls, client.pollCalls)
	}
	v, _ := repo.GetByID(context.Background(), "val-1")
	if v.ArtifactURL == nil || *v.ArtifactURL != "https://gamma.app/docs/first" {
		t.Errorf("artifact url must be unchanged: %v", v.ArtifactURL)
	}
}

func TestGenerateSubmitFailureIsRetriable(t *testing.T) {
	client := &stubPresentationClient{submitErr: errors.New("connection reset")}
	presenter, repo := newPresenterFixture(t, client)
	seedSucceededValuation(t, repo, "val-1")

	err := presenter.Generate(context.Background(), "val-1")
	var retry *RetryablePresentationError
	if !errors.As(err, &retry) {
		t.Fatalf("expected retriable error, got %v", err)
	}

	v, _ := repo.GetByID(context.Background(), "val-1")
	if v.PresentationStatus != PresentationPending {
		t.Errorf("presentation status = %s, want pending for retry", v.PresentationStatus)
	}
}

func TestGenerateProviderFailureIsRetriable(t *testing.T) {
	client := &stubPresentationClient{
		submitID: "gen-1",
		polls:    []gamma.PollResult{{Outcome: gamma.OutcomeFailed, Detail: "generation error"}},
	}
	presenter, repo := newPresenterFixture(t, client)
	seedSucceededValuation(t, repo, "val-1")

	err := presenter.Generate(context.Background(), "val-1")
	var retry *RetryablePresentationError
	if !errors.As(err, &retry) {
		t.Fatalf("expected retriable error, got %v", err)
	}
}

func TestGenerateFatalPollFailsImmediately(t *testing.T) {
	client := &stubPresentationClient{
		submitID: "gen-1",
		polls:    []gamma.PollResult{{Outcome: gamma.OutcomeFatal, Detail: "poll returned 401"}},
	}
	presenter, repo := newPresenterFixture(t, client)
	seedSucceededValuation(t, repo, "val-1")

	if err := presenter.Generate(context.Background(), "val-1"); err != nil {
		t.Fatalf("fatal outcomes must not be retried: %v", err)
	}
	if client.pollCalls != 1 {
		t.Errorf("poll calls = %d, want 1", client.pollCalls)
	}
	v, _ := repo.GetByID(context.Background(), "val-1")
	if v.PresentationStatus != PresentationFailed {
		t.Fatalf("presentation status = %s, want failed", v.PresentationStatus)
	}
	if v.ArtifactURL != nil {
		t.Error("artifact url must stay unset on failure")
	}
	if v.Status != StatusSuccess {
		t.Errorf("record status = %s, want success untouched", v.Status)
	}
}

func TestGenerateDeadlineExceededIsRetriable(t *testing.T) {
	client := &stubPresentationClient{submitID: "gen-1"}
	presenter, repo := newPresenterFixture(t, client)
	presenter.PollDeadline = 5 * time.Millisecond
	seedSucceededValuation(t, repo, "val-1")

	err := presenter.Generate(context.Background(), "val-1")
	var retry *RetryablePresentationError
	if !errors.As(err, &retry) {
		t.Fatalf("expected retriable timeout, got %v", err)
	}

	v, _ := repo.GetByID(context.Background(), "val-1")
	if v.Status != StatusSuccess {
		t.Errorf("record status = %s, want success untouched", v.Status)
	}
	if v.PresentationStatus != PresentationPending {
		t.Errorf("presentation status = %s, want pending until escalation decides", v.PresentationStatus)
	}
}

func TestGenerateWithoutClientFailsPresentation(t *testing.T) {
	presenter, repo := newPresenterFixture(t, nil)
	seedSucceededValuation(t, repo, "val-1")

	if err := presenter.Generate(context.Background(), "val-1"); err != nil {
		t.Fatalf("missing credentials are fatal, not retriable: %v", err)
	}
	v, _ := repo.GetByID(context.Background(), "val-1")
	if v.PresentationStatus != PresentationFailed {
		t.Fatalf("presentation status = %s, want failed", v.PresentationStatus)
	}
}

func TestGenerateMissingRecordAbortsSilently(t *testing.T) {
	client := &stubPresentationClient{submitID: "gen-1"}
	presenter, _ := newPresenterFixture(t, client)

	if err := presenter.Generate(context.Background(), "no-such-id"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if client.submitCalls != 0 {
		t.Error("no submit expected for a missing record")
	}
}
