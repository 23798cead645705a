package valuations

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPGRepo(db), mock
}

func TestPGRepoCreateInsertsPendingRow(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO valuations")).
		WithArgs("val-1", "user-1", sqlmock.AnyArg(), "pending", "absent", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), Valuation{ID: "val-1", UserID: "user-1", Inputs: testInputs()})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestPGRepoMarkProcessingGuardsOnPending(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE valuations")).
		WithArgs("processing", "val-1", "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.MarkProcessing(context.Background(), "val-1"); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestPGRepoMarkProcessingStaleTransition(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE valuations")).
		WithArgs("processing", "val-1", "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkProcessing(context.Background(), "val-1")
	if !errors.Is(err, ErrStaleTransition) {
		t.Fatalf("err = %v, want ErrStaleTransition", err)
	}
}

func TestPGRepoMarkSucceededSetsPresentationPending(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE valuations")).
		WithArgs("success", sqlmock.AnyArg(), "pending", "val-1", "processing").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkSucceeded(context.Background(), "val-1", map[string]any{"valuation_amount": 1.0}, true)
	if err != nil {
		t.Fatalf("MarkSucceeded: %v", err)
	}
}

func TestPGRepoMarkSucceededWithoutPrompt(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE valuations")).
		WithArgs("success", sqlmock.AnyArg(), "absent", "val-1", "processing").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkSucceeded(context.Background(), "val-1", map[string]any{}, false)
	if err != nil {
		t.Fatalf("MarkSucceeded: %v", err)
	}
}

func TestPGRepoCompletePresentationGuardsOnPending(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE valuations")).
		WithArgs("completed", "https://gamma.app/docs/abc", "val-1", "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.CompletePresentation(context.Background(), "val-1", "https://gamma.app/docs/abc"); err != nil {
		t.Fatalf("CompletePresentation: %v", err)
	}
}

func TestPGRepoFailPresentationDoesNotClobberCompleted(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE valuations")).
		WithArgs("failed", "val-1", "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.FailPresentation(context.Background(), "val-1")
	if !errors.Is(err, ErrStaleTransition) {
		t.Fatalf("err = %v, want ErrStaleTransition", err)
	}
}

func TestPGRepoGetByID(t *testing.T) {
	repo, mock := newMockRepo(t)

	inputsJSON, _ := json.Marshal(testInputs())
	resultJSON := []byte(`{"valuation_amount": 3000000}`)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "user_id", "inputs", "status", "result", "presentation_status", "artifact_url", "created_at", "updated_at"}).
		AddRow("val-1", "user-1", inputsJSON, "success", resultJSON, "completed", "https://gamma.app/docs/abc", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, inputs, status, result, presentation_status, artifact_url, created_at, updated_at")).
		WithArgs("val-1").
		WillReturnRows(rows)

	v, err := repo.GetByID(context.Background(), "val-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if v.Status != StatusSuccess || v.PresentationStatus != PresentationCompleted {
		t.Errorf("status = %s/%s", v.Status, v.PresentationStatus)
	}
	if v.ArtifactURL == nil || *v.ArtifactURL != "https://gamma.app/docs/abc" {
		t.Errorf("artifact url = %v", v.ArtifactURL)
	}
	if v.Inputs.Sector != "Tecnologia" {
		t.Errorf("inputs sector = %s", v.Inputs.Sector)
	}
	if v.Result["valuation_amount"] != float64(3000000) {
		t.Errorf("result = %v", v.Result)
	}
}

func TestPGRepoGetByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, inputs")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPGRepoListByUser(t *testing.T) {
	repo, mock := newMockRepo(t)

	inputsJSON, _ := json.Marshal(testInputs())
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "user_id", "inputs", "status", "result", "presentation_status", "artifact_url", "created_at", "updated_at"}).
		AddRow("val-2", "user-1", inputsJSON, "pending", nil, "absent", nil, now, now).
		AddRow("val-1", "user-1", inputsJSON, "success", []byte(`{}`), "failed", nil, now.Add(-time.Hour), now)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC")).
		WithArgs("user-1").
		WillReturnRows(rows)

	items, err := repo.ListByUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if items[0].ID != "val-2" || items[1].ID != "val-1" {
		t.Errorf("unexpected order: %s, %s", items[0].ID, items[1].ID)
	}
	if items[0].ArtifactURL != nil {
		t.Errorf("artifact url should be nil for pending row")
	}
}
