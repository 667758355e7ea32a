package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/autoverif/vinledger/pkg/contracts"
)

// CreateBatch inserts an import batch in status processing and fills
// its id.
func (s *Store) CreateBatch(ctx context.Context, b *contracts.ImportBatch) error {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO import_batches (batch_ref, submitter_name, submitter_email,
			submitter_type, submitter_company, filename, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		b.BatchRef, b.Submitter.Name, b.Submitter.Email, b.Submitter.Type,
		b.Submitter.Company, nullIfEmpty(b.Filename), string(contracts.BatchProcessing))
	if err := row.Scan(&b.ID); err != nil {
		return fmt.Errorf("create import batch: %w", err)
	}
	b.Status = contracts.BatchProcessing
	return nil
}

// CompleteBatch performs the single allowed update on a batch row:
// processing -> completed|failed with final totals.
func (s *Store) CompleteBatch(ctx context.Context, b *contracts.ImportBatch) error {
	errorsJSON, err := json.Marshal(b.Errors)
	if err != nil {
		return fmt.Errorf("marshal batch errors: %w", err)
	}
	idsJSON, err := json.Marshal(b.SubmissionIDs)
	if err != nil {
		return fmt.Errorf("marshal batch submission ids: %w", err)
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE import_batches
		SET total_rows = $1, success_count = $2, error_count = $3,
			errors = $4, submission_ids = $5, status = $6, completed_at = $7
		WHERE id = $8 AND status = $9`,
		b.TotalRows, b.SuccessCount, b.ErrorCount,
		string(errorsJSON), string(idsJSON), string(b.Status), now,
		b.ID, string(contracts.BatchProcessing))
	if err != nil {
		return fmt.Errorf("complete import batch %s: %w", b.BatchRef, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("complete import batch %s: not in processing state", b.BatchRef)
	}
	b.CompletedAt = &now
	return nil
}

// GetBatch loads a batch by its reference.
func (s *Store) GetBatch(ctx context.Context, batchRef string) (*contracts.ImportBatch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, batch_ref, submitter_name, submitter_email, submitter_type,
			submitter_company, filename, total_rows, success_count, error_count,
			errors, submission_ids, status, started_at, completed_at
		FROM import_batches WHERE batch_ref = $1`, batchRef)

	var b contracts.ImportBatch
	var email, stype, company, filename sql.NullString
	var errorsJSON, idsJSON sql.NullString
	var status string
	var completedAt sql.NullTime
	err := row.Scan(&b.ID, &b.BatchRef, &b.Submitter.Name, &email, &stype,
		&company, &filename, &b.TotalRows, &b.SuccessCount, &b.ErrorCount,
		&errorsJSON, &idsJSON, &status, &b.StartedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get batch %s: %w", batchRef, err)
	}

	b.Submitter.Email = email.String
	b.Submitter.Type = stype.String
	b.Submitter.Company = company.String
	b.Filename = filename.String
	b.Status = contracts.BatchStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		b.CompletedAt = &t
	}
	if errorsJSON.Valid && errorsJSON.String != "" {
		_ = json.Unmarshal([]byte(errorsJSON.String), &b.Errors)
	}
	if idsJSON.Valid && idsJSON.String != "" {
		_ = json.Unmarshal([]byte(idsJSON.String), &b.SubmissionIDs)
	}
	return &b, nil
}

// BatchCount counts import batches.
func (s *Store) BatchCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM import_batches`).Scan(&n)
	return n, err
}
