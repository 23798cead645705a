package valuations

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PGRepo stores valuations in Postgres. Status moves use guarded updates so
// duplicate task deliveries surface as ErrStaleTransition instead of silently
// rewriting terminal rows.
type PGRepo struct {
	db *sql.DB
}

func NewPGRepo(db *sql.DB) *PGRepo {
	return &PGRepo{db: db}
}

func (r *PGRepo) Create(ctx context.Context, v Valuation) error {
	inputsJSON, err := json.Marshal(v.Inputs)
	if err != nil {
		return fmt.Errorf("marshal inputs: %w", err)
	}
	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO valuations (id, user_id, inputs, status, presentation_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, v.ID, v.UserID, inputsJSON, string(StatusPending), string(PresentationAbsent), now)
	if err != nil {
		return fmt.Errorf("insert valuation: %w", err)
	}
	return nil
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (Valuation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, inputs, status, result, presentation_status, artifact_url, created_at, updated_at
		FROM valuations
		WHERE id = $1
	`, id)
	v, err := scanValuation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Valuation{}, ErrNotFound
	}
	if err != nil {
		return Valuation{}, fmt.Errorf("get valuation: %w", err)
	}
	return v, nil
}

func (r *PGRepo) ListByUser(ctx context.Context, userID string) ([]Valuation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, inputs, status, result, presentation_status, artifact_url, created_at, updated_at
		FROM valuations
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list valuations: %w", err)
	}
	defer rows.Close()

	var out []Valuation
	for rows.Next() {
		v, err := scanValuation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan valuation: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list valuations: %w", err)
	}
	return out, nil
}

func (r *PGRepo) MarkProcessing(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE valuations
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, string(StatusProcessing), id, string(StatusPending))
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	return requireAffected(res)
}

func (r *PGRepo) MarkSucceeded(ctx context.Context, id string, result map[string]any, presentationPending bool) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	presentation := PresentationAbsent
	if presentationPending {
		presentation = PresentationPending
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE valuations
		SET status = $1, result = $2, presentation_status = $3, updated_at = now()
		WHERE id = $4 AND status = $5
	`, string(StatusSuccess), resultJSON, string(presentation), id, string(StatusProcessing))
	if err != nil {
		return fmt.Errorf("mark succeeded: %w", err)
	}
	return requireAffected(res)
}

func (r *PGRepo) MarkFailed(ctx context.Context, id string, result map[string]any) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE valuations
		SET status = $1, result = $2, updated_at = now()
		WHERE id = $3 AND status IN ($4, $5)
	`, string(StatusFailed), resultJSON, id, string(StatusPending), string(StatusProcessing))
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return requireAffected(res)
}

func (r *PGRepo) CompletePresentation(ctx context.Context, id, artifactURL string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE valuations
		SET presentation_status = $1, artifact_url = $2, updated_at = now()
		WHERE id = $3 AND presentation_status = $4
	`, string(PresentationCompleted), artifactURL, id, string(PresentationPending))
	if err != nil {
		return fmt.Errorf("complete presentation: %w", err)
	}
	return requireAffected(res)
}

func (r *PGRepo) FailPresentation(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE valuations
		SET presentation_status = $1, updated_at = now()
		WHERE id = $2 AND presentation_status = $3
	`, string(PresentationFailed), id, string(PresentationPending))
	if err != nil {
		return fmt.Errorf("fail presentation: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrStaleTransition
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanValuation(row rowScanner) (Valuation, error) {
	var (
		v           Valuation
		inputsJSON  []byte
		resultJSON  []byte
		artifactURL sql.NullString
		status      string
		presStatus  string
	)
	err := row.Scan(&v.ID, &v.UserID, &inputsJSON, &status, &resultJSON, &presStatus, &artifactURL, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return Valuation{}, err
	}
	if err := json.Unmarshal(inputsJSON, &v.Inputs); err != nil {
		return Valuation{}, fmt.Errorf("unmarshal inputs: %w", err)
	}
	if len(resultJSON) > 0 {
		if err := json.Unmarshal(resultJSON, &v.Result); err != nil {
			return Valuation{}, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	v.Status = Status(status)
	v.PresentationStatus = PresentationStatus(presStatus)
	if artifactURL.Valid {
		v.ArtifactURL = &artifactURL.String
	}
	return v, nil
}

var _ Repo = (*PGRepo)(nil)
