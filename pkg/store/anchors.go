package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/autoverif/vinledger/pkg/contracts"
)

// InsertAnchor records a snapshot of the chain tip.
func (s *Store) InsertAnchor(ctx context.Context, a *contracts.ChainAnchor) error {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO chain_anchors (anchor_hash, submission_count,
			first_submission_id, last_submission_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		a.AnchorHash, a.SubmissionCount, a.FirstSubmissionID, a.LastSubmissionID)
	if err := row.Scan(&a.ID); err != nil {
		return fmt.Errorf("insert chain anchor: %w", err)
	}
	return nil
}

// LatestAnchor returns the newest anchor, or nil when none exist.
func (s *Store) LatestAnchor(ctx context.Context) (*contracts.ChainAnchor, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, anchor_hash, submission_count, first_submission_id,
			last_submission_id, created_at
		FROM chain_anchors ORDER BY id DESC LIMIT 1`)
	var a contracts.ChainAnchor
	err := row.Scan(&a.ID, &a.AnchorHash, &a.SubmissionCount,
		&a.FirstSubmissionID, &a.LastSubmissionID, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest chain anchor: %w", err)
	}
	return &a, nil
}
