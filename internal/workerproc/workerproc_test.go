package workerproc

import (
	"context"
	"errors"
	"sync"
	"testing"

	"valuation-backend/internal/bootstrap"
	"valuation-backend/internal/queue"
	"valuation-backend/internal/valuations"
)

type stubProcessor struct {
	calls []string
	err   error
}

func (s *stubProcessor) Process(ctx context.Context, valuationID, requestID string) error {
	s.calls = append(s.calls, valuationID)
	return s.err
}

type stubPresenter struct {
	calls []string
	err   error
}

func (s *stubPresenter) Generate(ctx context.Context, valuationID string) error {
	s.calls = append(s.calls, valuationID)
	return s.err
}

type captureQueue struct {
	mu       sync.Mutex
	messages []queue.Message
	err      error
}

func (q *captureQueue) Send(ctx context.Context, msg queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.messages = append(q.messages, msg)
	return nil
}

func (q *captureQueue) take() []queue.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.messages
	q.messages = nil
	return out
}

func newWorkerApp(processor *stubProcessor, presenter *stubPresenter) (*bootstrap.App, *valuations.MemoryRepo, *captureQueue) {
	repo := valuations.NewMemoryRepo()
	q := &captureQueue{}
	app := &bootstrap.App{
		Queue:          q,
		ValuationsRepo: repo,
		Processor:      processor,
		Presenter:      presenter,
	}
	return app, repo, q
}

func seedPendingPresentation(t *testing.T, repo *valuations.MemoryRepo, id string) {
	t.Helper()
	ctx := context.Background()
	if err := repo.Create(ctx, valuations.Valuation{ID: id, UserID: "user-1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.MarkProcessing(ctx, id); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	if err := repo.MarkSucceeded(ctx, id, map[string]any{"presentation_prompt": "p"}, true); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
}

func TestParseMessageErrors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		match func(error) bool
	}{
		{"empty", "", func(err error) bool { var e ErrEmptyBody; return errors.As(err, &e) }},
		{"whitespace", "   \n", func(err error) bool { var e ErrEmptyBody; return errors.As(err, &e) }},
		{"garbage", "{not json", func(err error) bool { var e ErrDecode; return errors.As(err, &e) }},
		{"missing id", `{"task":"analyze","requestId":"r-1"}`, func(err error) bool { var e ErrMissingValuationID; return errors.As(err, &e) }},
		{"unknown task", `{"task":"transcode","valuationId":"val-1"}`, func(err error) bool { var e ErrUnknownTask; return errors.As(err, &e) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseMessage(tt.body)
			if err == nil {
				t.Fatal("expected error")
			}
			if !tt.match(err) {
				t.Errorf("err = %T (%v)", err, err)
			}
		})
	}
}

func TestParseMessageValid(t *testing.T) {
	msg, meta, err := ParseMessage(`{"task":"presentation","valuationId":"val-1","attempt":2,"requestId":"r-1"}`)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if msg.Task != queue.TaskPresentation || msg.ValuationID != "val-1" || msg.Attempt != 2 {
		t.Errorf("unexpected message: %+v", msg)
	}
	if meta.BodyLen == 0 || meta.BodySHA == "" {
		t.Errorf("meta not computed: %+v", meta)
	}
}

func TestHandleMessageDispatchesAnalyze(t *testing.T) {
	processor := &stubProcessor{}
	app, _, _ := newWorkerApp(processor, &stubPresenter{})

	err := HandleMessage(context.Background(), app, `{"task":"analyze","valuationId":"val-1","requestId":"r-1"}`)
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(processor.calls) != 1 || processor.calls[0] != "val-1" {
		t.Errorf("processor calls = %v", processor.calls)
	}
}

func TestHandleMessageAnalyzeFailureWrapped(t *testing.T) {
	processor := &stubProcessor{err: errors.New("db down")}
	app, _, _ := newWorkerApp(processor, &stubPresenter{})

	err := HandleMessage(context.Background(), app, `{"task":"analyze","valuationId":"val-1","requestId":"r-1"}`)
	var pe ErrProcess
	if !errors.As(err, &pe) {
		t.Fatalf("err = %T (%v), want ErrProcess", err, err)
	}
	if pe.Task != queue.TaskAnalyze || pe.ValuationID != "val-1" {
		t.Errorf("unexpected wrap: %+v", pe)
	}
}

func TestHandleMessageUsesParsedContextMessage(t *testing.T) {
	processor := &stubProcessor{}
	app, _, _ := newWorkerApp(processor, &stubPresenter{})

	msg := queue.NewAnalyzeMessage("val-9", "r-9")
	ctx := WithParsedMessage(context.Background(), msg)

	// Body is ignored when the context already carries the decoded message.
	if err := HandleMessage(ctx, app, "ignored"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(processor.calls) != 1 || processor.calls[0] != "val-9" {
		t.Errorf("processor calls = %v", processor.calls)
	}
}

func TestPresentationRetriableReEnqueuesWithBackoff(t *testing.T) {
	presenter := &stubPresenter{err: &valuations.RetryablePresentationError{Err: errors.New("gamma 503")}}
	app, _, q := newWorkerApp(&stubProcessor{}, presenter)

	err := HandleMessage(context.Background(), app, `{"task":"presentation","valuationId":"val-1","attempt":1,"requestId":"r-1"}`)
	if err != nil {
		t.Fatalf("retriable failure must consume the message: %v", err)
	}

	if len(q.messages) != 1 {
		t.Fatalf("expected one re-enqueued message, got %d", len(q.messages))
	}
	next := q.messages[0]
	if next.Task != queue.TaskPresentation || next.Attempt != 2 || next.ValuationID != "val-1" {
		t.Errorf("unexpected retry message: %+v", next)
	}
	if next.Delay <= 0 {
		t.Errorf("retry must be delayed, got %v", next.Delay)
	}
}

func TestPresentationRetriesExhaustedFailsPresentation(t *testing.T) {
	presenter := &stubPresenter{err: &valuations.RetryablePresentationError{Err: errors.New("gamma 503")}}
	app, repo, q := newWorkerApp(&stubProcessor{}, presenter)
	seedPendingPresentation(t, repo, "val-1")

	body := `{"task":"presentation","valuationId":"val-1","attempt":4,"requestId":"r-1"}`
	if err := HandleMessage(context.Background(), app, body); err != nil {
		t.Fatalf("exhausted retries must consume the message: %v", err)
	}

	if len(q.take()) != 0 {
		t.Error("no re-enqueue after the retry budget")
	}
	v, _ := repo.GetByID(context.Background(), "val-1")
	if v.PresentationStatus != valuations.PresentationFailed {
		t.Fatalf("presentation status = %s, want failed", v.PresentationStatus)
	}
	if v.Status != valuations.StatusSuccess {
		t.Errorf("record status = %s, want success untouched", v.Status)
	}
}

func TestPresentationExhaustedToleratesTerminalRow(t *testing.T) {
	presenter := &stubPresenter{err: &valuations.RetryablePresentationError{Err: errors.New("gamma 503")}}
	app, repo, _ := newWorkerApp(&stubProcessor{}, presenter)
	seedPendingPresentation(t, repo, "val-1")
	if err := repo.CompletePresentation(context.Background(), "val-1", "https://gamma.app/docs/abc"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	body := `{"task":"presentation","valuationId":"val-1","attempt":4,"requestId":"r-1"}`
	if err := HandleMessage(context.Background(), app, body); err != nil {
		t.Fatalf("stale transition on a terminal row is not an error: %v", err)
	}
	v, _ := repo.GetByID(context.Background(), "val-1")
	if v.PresentationStatus != valuations.PresentationCompleted {
		t.Errorf("presentation status = %s, completed must win", v.PresentationStatus)
	}
}

// flakyPresenter fails the first n attempts, then completes the record like
// a real run would.
type flakyPresenter struct {
	repo     *valuations.MemoryRepo
	failures int
	calls    int
}

func (p *flakyPresenter) Generate(ctx context.Context, valuationID string) error {
	p.calls++
	if p.calls <= p.failures {
		return &valuations.RetryablePresentationError{Err: errors.New("gamma 503")}
	}
	return p.repo.CompletePresentation(ctx, valuationID, "https://gamma.app/docs/abc")
}

// drainPresentation feeds the initial message and every re-enqueued retry
// back through HandleMessage, the way the worker drains the queue.
func drainPresentation(t *testing.T, app *bootstrap.App, q *captureQueue) {
	t.Helper()
	pending := []queue.Message{queue.NewPresentationMessage("val-1", "r-1", 1)}
	for len(pending) > 0 {
		msg := pending[0]
		pending = pending[1:]
		body, err := queue.EncodeMessage(msg)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if err := HandleMessage(context.Background(), app, string(body)); err != nil {
			t.Fatalf("HandleMessage attempt %d: %v", msg.Attempt, err)
		}
		pending = append(pending, q.take()...)
	}
}

func TestPresentationCompletesWithinRetryBudget(t *testing.T) {
	app, repo, q := newWorkerApp(&stubProcessor{}, nil)
	presenter := &flakyPresenter{repo: repo, failures: 3}
	app.Presenter = presenter
	seedPendingPresentation(t, repo, "val-1")

	drainPresentation(t, app, q)

	if presenter.calls != 4 {
		t.Errorf("presenter calls = %d, want 4 (initial + 3 retries)", presenter.calls)
	}
	v, _ := repo.GetByID(context.Background(), "val-1")
	if v.PresentationStatus != valuations.PresentationCompleted {
		t.Fatalf("presentation status = %s, want completed", v.PresentationStatus)
	}
	if v.ArtifactURL == nil || *v.ArtifactURL != "https://gamma.app/docs/abc" {
		t.Errorf("artifact url = %v", v.ArtifactURL)
	}
}

func TestPresentationFailsAfterRetryBudgetSpent(t *testing.T) {
	app, repo, q := newWorkerApp(&stubProcessor{}, nil)
	presenter := &flakyPresenter{repo: repo, failures: 10}
	app.Presenter = presenter
	seedPendingPresentation(t, repo, "val-1")

	drainPresentation(t, app, q)

	if presenter.calls != 4 {
		t.Errorf("presenter calls = %d, want 4 (initial + 3 retries)", presenter.calls)
	}
	v, _ := repo.GetByID(context.Background(), "val-1")
	if v.PresentationStatus != valuations.PresentationFailed {
		t.Fatalf("presentation status = %s, want failed", v.PresentationStatus)
	}
}

func TestPresentationReEnqueueFailureLeavesMessage(t *testing.T) {
	presenter := &stubPresenter{err: &valuations.RetryablePresentationError{Err: errors.New("gamma 503")}}
	app, _, q := newWorkerApp(&stubProcessor{}, presenter)
	q.err = errors.New("sqs unavailable")

	err := HandleMessage(context.Background(), app, `{"task":"presentation","valuationId":"val-1","attempt":1,"requestId":"r-1"}`)
	var pe ErrProcess
	if !errors.As(err, &pe) {
		t.Fatalf("err = %T (%v), want ErrProcess so the message is redelivered", err, err)
	}
}

func TestPresentationNonRetriableFailureWrapped(t *testing.T) {
	presenter := &stubPresenter{err: errors.New("repo corrupt")}
	app, _, q := newWorkerApp(&stubProcessor{}, presenter)

	err := HandleMessage(context.Background(), app, `{"task":"presentation","valuationId":"val-1","attempt":1,"requestId":"r-1"}`)
	var pe ErrProcess
	if !errors.As(err, &pe) {
		t.Fatalf("err = %T (%v), want ErrProcess", err, err)
	}
	if len(q.messages) != 0 {
		t.Errorf("non-retriable failures must not re-enqueue: %+v", q.messages)
	}
}
