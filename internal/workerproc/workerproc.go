package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"valuation-backend/internal/bootstrap"
	"valuation-backend/internal/queue"
	"valuation-backend/internal/shared/metrics"
	"valuation-backend/internal/shared/telemetry"
	"valuation-backend/internal/valuations"
)

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{BodyLen: 0, BodySHA: ""}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

// ErrUnknownTask indicates a message naming a task the worker cannot run.
type ErrUnknownTask struct {
	Task      string
	RequestID string
}

func (e ErrUnknownTask) Error() string { return "unknown task: " + e.Task }

// ErrMissingValuationID indicates a message missing the valuation id.
type ErrMissingValuationID struct {
	Meta      MessageMeta
	RequestID string
}

func (e ErrMissingValuationID) Error() string { return "missing valuation id" }

// ErrProcess indicates processing failed after successful parsing.
type ErrProcess struct {
	Task        string
	ValuationID string
	RequestID   string
	Err         error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process " + e.Task
	}
	return "process " + e.Task + ": " + e.Err.Error()
}

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if strings.TrimSpace(msg.ValuationID) == "" {
		return msg, meta, ErrMissingValuationID{Meta: meta, RequestID: msg.RequestID}
	}
	switch msg.Task {
	case queue.TaskAnalyze, queue.TaskPresentation:
	default:
		return msg, meta, ErrUnknownTask{Task: msg.Task, RequestID: msg.RequestID}
	}
	return msg, meta, nil
}

type parsedMessageKey struct{}

// WithParsedMessage stores a decoded message in the context for reuse.
func WithParsedMessage(ctx context.Context, msg queue.Message) context.Context {
	return context.WithValue(ctx, parsedMessageKey{}, msg)
}

func parsedMessageFromContext(ctx context.Context) (queue.Message, bool) {
	if ctx == nil {
		return queue.Message{}, false
	}
	msg, ok := ctx.Value(parsedMessageKey{}).(queue.Message)
	return msg, ok
}

// HandleMessage parses, validates, and dispatches a message payload.
func HandleMessage(ctx context.Context, app *bootstrap.App, body string) error {
	if app == nil {
		return errors.New("worker app not configured")
	}

	msg, ok := parsedMessageFromContext(ctx)
	if !ok {
		var err error
		msg, _, err = ParseMessage(body)
		if err != nil {
			return err
		}
	}

	switch msg.Task {
	case queue.TaskAnalyze:
		if app.Processor == nil {
			return errors.New("analysis processor not configured")
		}
		if err := app.Processor.Process(ctx, msg.ValuationID, msg.RequestID); err != nil {
			return ErrProcess{Task: msg.Task, ValuationID: msg.ValuationID, RequestID: msg.RequestID, Err: err}
		}
		return nil

	case queue.TaskPresentation:
		return handlePresentation(ctx, app, msg)

	default:
		return ErrUnknownTask{Task: msg.Task, RequestID: msg.RequestID}
	}
}

// handlePresentation runs one Task 2 attempt and owns the retry escalation:
// retriable failures are re-enqueued with backoff until the attempt budget is
// spent, then the presentation sub-status is failed without touching the
// record's primary status.
func handlePresentation(ctx context.Context, app *bootstrap.App, msg queue.Message) error {
	if app.Presenter == nil {
		return errors.New("presenter not configured")
	}

	err := app.Presenter.Generate(ctx, msg.ValuationID)
	if err == nil {
		return nil
	}

	var retry *valuations.RetryablePresentationError
	if !errors.As(err, &retry) {
		return ErrProcess{Task: msg.Task, ValuationID: msg.ValuationID, RequestID: msg.RequestID, Err: err}
	}

	attempt := msg.Attempt
	if attempt < 1 {
		attempt = 1
	}

	if attempt > queue.MaxPresentationRetries {
		telemetry.Error("worker.presentation.retries_exhausted", map[string]any{
			"valuation_id": msg.ValuationID,
			"request_id":   msg.RequestID,
			"attempt":      attempt,
			"error":        retry.Err.Error(),
		})
		if failErr := app.ValuationsRepo.FailPresentation(ctx, msg.ValuationID); failErr != nil && !errors.Is(failErr, valuations.ErrStaleTransition) {
			return ErrProcess{Task: msg.Task, ValuationID: msg.ValuationID, RequestID: msg.RequestID, Err: failErr}
		}
		metrics.IncPresentationFailed()
		return nil
	}

	next := queue.NewPresentationMessage(msg.ValuationID, msg.RequestID, attempt+1)
	next.Delay = queue.BackoffDelay(attempt)
	if sendErr := app.Queue.Send(ctx, next); sendErr != nil {
		// Let SQS visibility timeout redeliver the original message.
		return ErrProcess{Task: msg.Task, ValuationID: msg.ValuationID, RequestID: msg.RequestID, Err: fmt.Errorf("re-enqueue: %w", sendErr)}
	}
	metrics.IncPresentationRetry()
	telemetry.Warn("worker.presentation.retry_scheduled", map[string]any{
		"valuation_id": msg.ValuationID,
		"request_id":   msg.RequestID,
		"attempt":      attempt,
		"next_attempt": attempt + 1,
		"delay":        next.Delay.String(),
		"error":        retry.Err.Error(),
	})
	return nil
}
