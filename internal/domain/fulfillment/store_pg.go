package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgSubmissionStore persists submission records in Postgres.
type PgSubmissionStore struct {
	pool *pgxpool.Pool
}

func NewPgSubmissionStore(pool *pgxpool.Pool) *PgSubmissionStore {
	return &PgSubmissionStore{pool: pool}
}

const submissionCols = `submission_id, session_id, manufacturer_id, strategy, status,
	signing_url, document_id, pdf_url, error, superseded, created_at, updated_at, completed_at`

func scanSubmission(row pgx.Row) (*SubmissionRecord, error) {
	var rec SubmissionRecord
	var signingURL, documentID, pdfURL, errMsg *string
	err := row.Scan(
		&rec.SubmissionID, &rec.SessionID, &rec.ManufacturerID, &rec.Strategy, &rec.Status,
		&signingURL, &documentID, &pdfURL, &errMsg, &rec.Superseded,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if signingURL != nil {
		rec.SigningURL = *signingURL
	}
	if documentID != nil {
		rec.DocumentID = *documentID
	}
	if pdfURL != nil {
		rec.PDFURL = *pdfURL
	}
	if errMsg != nil {
		rec.Error = *errMsg
	}
	return &rec, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *PgSubmissionStore) Create(ctx context.Context, rec *SubmissionRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ivr_submissions (`+submissionCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		rec.SubmissionID, rec.SessionID, rec.ManufacturerID, rec.Strategy, rec.Status,
		nullIfEmpty(rec.SigningURL), nullIfEmpty(rec.DocumentID), nullIfEmpty(rec.PDFURL),
		nullIfEmpty(rec.Error), rec.Superseded, rec.CreatedAt, rec.UpdatedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

func (s *PgSubmissionStore) Update(ctx context.Context, rec *SubmissionRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE ivr_submissions
		SET strategy=$2, status=$3, signing_url=$4, document_id=$5, pdf_url=$6,
		    error=$7, superseded=$8, updated_at=$9, completed_at=$10
		WHERE submission_id=$1`,
		rec.SubmissionID, rec.Strategy, rec.Status,
		nullIfEmpty(rec.SigningURL), nullIfEmpty(rec.DocumentID), nullIfEmpty(rec.PDFURL),
		nullIfEmpty(rec.Error), rec.Superseded, rec.UpdatedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("submission %s not found", rec.SubmissionID)
	}
	return nil
}

func (s *PgSubmissionStore) GetByID(ctx context.Context, id uuid.UUID) (*SubmissionRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+submissionCols+` FROM ivr_submissions WHERE submission_id=$1`, id)
	rec, err := scanSubmission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("submission %s not found", id)
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return rec, nil
}

func (s *PgSubmissionStore) Latest(ctx context.Context, sessionID uuid.UUID) (*SubmissionRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+submissionCols+` FROM ivr_submissions
		WHERE session_id=$1 AND superseded=false
		ORDER BY created_at DESC
		LIMIT 1`, sessionID)
	rec, err := scanSubmission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest submission: %w", err)
	}
	return rec, nil
}

func (s *PgSubmissionStore) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*SubmissionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+submissionCols+` FROM ivr_submissions
		WHERE session_id=$1
		ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var out []*SubmissionRecord
	for rows.Next() {
		rec, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
