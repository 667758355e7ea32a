package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/autoverif/vinledger/pkg/contracts"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

const submissionColumns = `id, vin, report_type, submitter_name, submitter_email,
	submitter_type, submitter_company, status, submitted_at, client_ip,
	previous_hash, integrity_hash, data_snapshot`

// ChainTip returns the integrity hash and id of the newest submission
// carrying a hash, or (nil, 0) when the chain is empty. Must be called
// inside the appending transaction, after Dialect.LockChain.
func (s *Store) ChainTip(ctx context.Context, tx *sql.Tx) (*string, int64, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, integrity_hash FROM submissions
		WHERE integrity_hash IS NOT NULL
		ORDER BY id DESC
		LIMIT 1`)
	var id int64
	var hash string
	if err := row.Scan(&id, &hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("read chain tip: %w", err)
	}
	return &hash, id, nil
}

// InsertSubmission appends a submission row with a NULL integrity hash
// and returns the reserved id. The hash is filled by SetIntegrityHash
// within the same transaction.
func (s *Store) InsertSubmission(ctx context.Context, tx *sql.Tx, sub *contracts.Submission) (int64, error) {
	row := tx.QueryRowContext(ctx, `
		INSERT INTO submissions (vin, report_type, submitter_name, submitter_email,
			submitter_type, submitter_company, status, submitted_at, client_ip,
			previous_hash, data_snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		sub.VIN, string(sub.ReportType),
		sub.Submitter.Name, sub.Submitter.Email, sub.Submitter.Type, sub.Submitter.Company,
		string(contracts.SubmissionPending), sub.SubmittedAt, sub.ClientIP,
		sub.PreviousHash, string(sub.DataSnapshot),
	)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("insert submission: %w", err)
	}
	return id, nil
}

// SetIntegrityHash fills the hash of a freshly inserted submission.
// This is the only mutation path submissions have.
func (s *Store) SetIntegrityHash(ctx context.Context, tx *sql.Tx, id int64, hash string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE submissions SET integrity_hash = $1 WHERE id = $2 AND integrity_hash IS NULL`,
		hash, id)
	if err != nil {
		return fmt.Errorf("set integrity hash: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("set integrity hash: submission %d not found or already hashed", id)
	}
	return nil
}

// GetSubmission loads one submission by id.
func (s *Store) GetSubmission(ctx context.Context, id int64) (*contracts.Submission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id)
	sub, err := scanSubmission(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get submission %d: %w", id, err)
	}
	return sub, nil
}

// ListChained streams all submissions carrying an integrity hash in id
// order, calling fn for each. Scan failures are reported through fn so
// verification can surface unreadable rows instead of skipping them.
func (s *Store) ListChained(ctx context.Context, fn func(sub *contracts.Submission, scanErr error) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions
		 WHERE integrity_hash IS NOT NULL ORDER BY id ASC`)
	if err != nil {
		return fmt.Errorf("list chained submissions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		sub, scanErr := scanSubmission(rows)
		if err := fn(sub, scanErr); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ListByVIN returns all submissions for a VIN in id order.
func (s *Store) ListByVIN(ctx context.Context, vin string) ([]*contracts.Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE vin = $1 ORDER BY id ASC`, vin)
	if err != nil {
		return nil, fmt.Errorf("list submissions for %s: %w", vin, err)
	}
	defer func() { _ = rows.Close() }()

	var subs []*contracts.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// CountByVIN counts submissions for one VIN.
func (s *Store) CountByVIN(ctx context.Context, vin string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM submissions WHERE vin = $1`, vin).Scan(&n)
	return n, err
}

// SubmissionStats returns aggregate counters for the stats endpoint.
func (s *Store) SubmissionStats(ctx context.Context) (total, uniqueVINs, chained int64, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT vin),
			COUNT(CASE WHEN integrity_hash IS NOT NULL THEN 1 END)
		FROM submissions`).Scan(&total, &uniqueVINs, &chained)
	return
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(r rowScanner) (*contracts.Submission, error) {
	var sub contracts.Submission
	var reportType string
	var email, stype, company, clientIP sql.NullString
	var prevHash, integrityHash sql.NullString
	var snapshot sql.NullString

	err := r.Scan(&sub.ID, &sub.VIN, &reportType,
		&sub.Submitter.Name, &email, &stype, &company,
		&sub.Status, &sub.SubmittedAt, &clientIP,
		&prevHash, &integrityHash, &snapshot)
	if err != nil {
		return nil, err
	}

	sub.ReportType = contracts.ReportType(reportType)
	sub.Submitter.Email = email.String
	sub.Submitter.Type = stype.String
	sub.Submitter.Company = company.String
	sub.ClientIP = clientIP.String
	if prevHash.Valid {
		sub.PreviousHash = &prevHash.String
	}
	if integrityHash.Valid {
		sub.IntegrityHash = &integrityHash.String
	}
	if snapshot.Valid {
		sub.DataSnapshot = []byte(snapshot.String)
	}
	return &sub, nil
}
