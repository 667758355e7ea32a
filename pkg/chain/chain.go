// Package chain implements the append-only integrity chain over
// submissions: canonical hashing, serialized append, and verification.
package chain

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/autoverif/vinledger/pkg/canonical"
	"github.com/autoverif/vinledger/pkg/contracts"
	"github.com/autoverif/vinledger/pkg/store"
)

// Chain exposes append and verify operations over the submission log.
type Chain struct {
	store *store.Store
}

// New builds a Chain over the given store.
func New(s *store.Store) *Chain {
	return &Chain{store: s}
}

// ComputeHash derives the integrity hash for a submission from its
// reserved id, snapshot, predecessor hash and captured timestamp.
func ComputeHash(sub *contracts.Submission) (string, error) {
	prev := canonical.Genesis
	if sub.PreviousHash != nil {
		prev = *sub.PreviousHash
	}
	return canonical.HashPayload(canonical.Payload{
		Data: sub.DataSnapshot,
		ID:   sub.ID,
		Prev: prev,
		TS:   sub.SubmittedAt,
		Type: string(sub.ReportType),
		VIN:  sub.VIN,
	})
}

// Tip returns the integrity hash of the latest submission, or nil when
// the chain is empty.
func (c *Chain) Tip(ctx context.Context) (*string, error) {
	tx, err := c.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	tip, _, err := c.store.ChainTip(ctx, tx)
	if err != nil {
		return nil, err
	}
	return tip, tx.Commit()
}

// AppendTx links sub to the current tip and writes it within tx:
// read tip under the chain lock, insert with previous_hash = tip,
// compute the canonical hash over the reserved id, then fill the hash
// on the same row. The caller owns commit/rollback, so later failures
// in the same transaction leave no partial submission behind.
func (c *Chain) AppendTx(ctx context.Context, tx *sql.Tx, sub *contracts.Submission) (int64, string, error) {
	if err := c.store.Dialect().LockChain(ctx, tx); err != nil {
		return 0, "", fmt.Errorf("acquire chain lock: %w", err)
	}

	tip, _, err := c.store.ChainTip(ctx, tx)
	if err != nil {
		return 0, "", err
	}
	sub.PreviousHash = tip

	id, err := c.store.InsertSubmission(ctx, tx, sub)
	if err != nil {
		return 0, "", err
	}
	sub.ID = id

	hash, err := ComputeHash(sub)
	if err != nil {
		return 0, "", fmt.Errorf("compute integrity hash: %w", err)
	}
	if err := c.store.SetIntegrityHash(ctx, tx, id, hash); err != nil {
		return 0, "", err
	}
	sub.IntegrityHash = &hash
	return id, hash, nil
}

// Append runs AppendTx in its own transaction.
func (c *Chain) Append(ctx context.Context, sub *contracts.Submission) (int64, string, error) {
	tx, err := c.store.BeginTx(ctx)
	if err != nil {
		return 0, "", err
	}
	id, hash, err := c.AppendTx(ctx, tx, sub)
	if err != nil {
		_ = tx.Rollback()
		return 0, "", err
	}
	if err := tx.Commit(); err != nil {
		return 0, "", fmt.Errorf("commit append: %w", err)
	}
	return id, hash, nil
}

// BrokenLink describes one verification failure.
type BrokenLink struct {
	SubmissionID int64  `json:"submission_id"`
	Error        string `json:"error"` // chain_break | hash_mismatch | unreadable
	Detail       string `json:"detail,omitempty"`
}

// Report is the result of a full-chain verification pass.
type Report struct {
	Valid       bool         `json:"valid"`
	ChainLength int64        `json:"chain_length"`
	LastHash    *string      `json:"last_hash"`
	BrokenLinks []BrokenLink `json:"broken_links"`
}

// VerifyAll scans every submission carrying a hash in id order and
// checks both linkage and content. The running expected predecessor
// hash is the RECOMPUTED hash of the previous row, so editing one
// row's snapshot surfaces both as a hash_mismatch on that row and as
// a chain_break on its successor. It never mutates; unreadable rows
// are reported.
func (c *Chain) VerifyAll(ctx context.Context) (*Report, error) {
	report := &Report{Valid: true, BrokenLinks: []BrokenLink{}}
	var expectedPrev *string
	first := true

	err := c.store.ListChained(ctx, func(sub *contracts.Submission, scanErr error) error {
		if scanErr != nil {
			report.BrokenLinks = append(report.BrokenLinks, BrokenLink{
				Error:  "unreadable",
				Detail: scanErr.Error(),
			})
			return nil
		}
		report.ChainLength++
		report.LastHash = sub.IntegrityHash

		if first {
			// The chain begins at the first hashed row; rows predating
			// the chain columns are not linked to.
			if sub.PreviousHash != nil {
				report.BrokenLinks = append(report.BrokenLinks, BrokenLink{
					SubmissionID: sub.ID,
					Error:        "chain_break",
					Detail:       fmt.Sprintf("first chained row claims predecessor %s", *sub.PreviousHash),
				})
			}
			first = false
		} else if !hashPtrEqual(sub.PreviousHash, expectedPrev) {
			report.BrokenLinks = append(report.BrokenLinks, BrokenLink{
				SubmissionID: sub.ID,
				Error:        "chain_break",
				Detail:       fmt.Sprintf("previous_hash %s does not match predecessor hash %s", strPtr(sub.PreviousHash), strPtr(expectedPrev)),
			})
		}

		computed, err := ComputeHash(sub)
		if err != nil {
			report.BrokenLinks = append(report.BrokenLinks, BrokenLink{
				SubmissionID: sub.ID,
				Error:        "unreadable",
				Detail:       err.Error(),
			})
			// Cannot recompute; fall back to the stored hash so a
			// single unreadable row does not cascade.
			expectedPrev = sub.IntegrityHash
			return nil
		}
		if sub.IntegrityHash == nil || computed != *sub.IntegrityHash {
			report.BrokenLinks = append(report.BrokenLinks, BrokenLink{
				SubmissionID: sub.ID,
				Error:        "hash_mismatch",
				Detail:       fmt.Sprintf("stored %s, computed %s", strPtr(sub.IntegrityHash), computed),
			})
		}

		expectedPrev = &computed
		return nil
	})
	if err != nil {
		return nil, err
	}

	report.Valid = len(report.BrokenLinks) == 0
	return report, nil
}

// VerifyResult is the outcome of a single-submission verification.
type VerifyResult struct {
	Valid        bool    `json:"valid"`
	SubmissionID int64   `json:"submission_id"`
	StoredHash   *string `json:"stored_hash"`
	ComputedHash string  `json:"computed_hash"`
}

// VerifyOne recomputes and compares the hash for one submission.
// Returns store.ErrNotFound for unknown ids.
func (c *Chain) VerifyOne(ctx context.Context, id int64) (*VerifyResult, error) {
	sub, err := c.store.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	computed, err := ComputeHash(sub)
	if err != nil {
		return nil, fmt.Errorf("recompute hash for %d: %w", id, err)
	}
	return &VerifyResult{
		Valid:        sub.IntegrityHash != nil && computed == *sub.IntegrityHash,
		SubmissionID: id,
		StoredHash:   sub.IntegrityHash,
		ComputedHash: computed,
	}, nil
}

// Anchor snapshots the current chain tip into chain_anchors.
// Returns nil without writing when the chain is empty.
func (c *Chain) Anchor(ctx context.Context) (*contracts.ChainAnchor, error) {
	tx, err := c.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	tip, lastID, err := c.store.ChainTip(ctx, tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	if tip == nil {
		return nil, nil
	}

	_, _, chained, err := c.store.SubmissionStats(ctx)
	if err != nil {
		return nil, err
	}

	anchor := &contracts.ChainAnchor{
		AnchorHash:        *tip,
		SubmissionCount:   chained,
		FirstSubmissionID: lastID - chained + 1,
		LastSubmissionID:  lastID,
	}
	if err := c.store.InsertAnchor(ctx, anchor); err != nil {
		return nil, err
	}
	slog.Info("chain anchored", "hash", *tip, "submissions", chained)
	return anchor, nil
}

func hashPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func strPtr(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}
