package chain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/autoverif/vinledger/pkg/canonical"
	"github.com/autoverif/vinledger/pkg/contracts"
	"github.com/autoverif/vinledger/pkg/store"
)

func newTestChain(t *testing.T) (*Chain, *store.Store) {
	t.Helper()
	s, err := store.Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return New(s), s
}

func testSubmission(vin string) *contracts.Submission {
	snapshot, _ := canonical.Marshal(map[string]any{
		"vin":         vin,
		"report_type": "service",
		"data":        map[string]any{"date": "2025-06-15", "odometer_km": 45000},
	})
	return &contracts.Submission{
		VIN:          vin,
		ReportType:   contracts.ReportService,
		Submitter:    contracts.Submitter{Name: "Garage Nadeau"},
		SubmittedAt:  "2025-06-15T14:30:00Z",
		DataSnapshot: snapshot,
	}
}

func TestAppend_FirstUsesGenesis(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestChain(t)

	sub := testSubmission("1HGBH41JXMN109186")
	id, hash, err := c.Append(ctx, sub)
	require.NoError(t, err)
	require.EqualValues(t, 1, id)
	require.Nil(t, sub.PreviousHash)

	// The first hash covers the canonical payload with prev = GENESIS.
	payload, err := canonical.Marshal(canonical.Payload{
		Data: sub.DataSnapshot,
		ID:   id,
		Prev: canonical.Genesis,
		TS:   sub.SubmittedAt,
		Type: "service",
		VIN:  sub.VIN,
	})
	require.NoError(t, err)
	sum := sha256.Sum256(payload)
	require.Equal(t, hex.EncodeToString(sum[:]), hash)
}

func TestAppend_LinksToPredecessor(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestChain(t)

	_, hash1, err := c.Append(ctx, testSubmission("1HGBH41JXMN109186"))
	require.NoError(t, err)

	sub2 := testSubmission("2HGFC2F59MH528491")
	_, hash2, err := c.Append(ctx, sub2)
	require.NoError(t, err)
	require.NotNil(t, sub2.PreviousHash)
	require.Equal(t, hash1, *sub2.PreviousHash)
	require.NotEqual(t, hash1, hash2)

	tip, err := c.Tip(ctx)
	require.NoError(t, err)
	require.NotNil(t, tip)
	require.Equal(t, hash2, *tip)

	report, err := c.VerifyAll(ctx)
	require.NoError(t, err)
	require.True(t, report.Valid)
	require.EqualValues(t, 2, report.ChainLength)
	require.Equal(t, hash2, *report.LastHash)
	require.Empty(t, report.BrokenLinks)
}

func TestVerifyAll_EmptyChain(t *testing.T) {
	c, _ := newTestChain(t)
	report, err := c.VerifyAll(context.Background())
	require.NoError(t, err)
	require.True(t, report.Valid)
	require.EqualValues(t, 0, report.ChainLength)
	require.Nil(t, report.LastHash)
}

func TestVerifyAll_DetectsSnapshotTamper(t *testing.T) {
	ctx := context.Background()
	c, s := newTestChain(t)

	id1, _, err := c.Append(ctx, testSubmission("1HGBH41JXMN109186"))
	require.NoError(t, err)
	id2, _, err := c.Append(ctx, testSubmission("2HGFC2F59MH528491"))
	require.NoError(t, err)

	// Rewriting a snapshot breaks that row's content check, and because
	// the successor links to the now-unreproducible hash, its linkage
	// breaks too.
	_, err = s.DB().ExecContext(ctx,
		`UPDATE submissions SET data_snapshot = '{"data":{"odometer_km":999},"report_type":"service","vin":"1HGBH41JXMN109186"}' WHERE id = $1`, id1)
	require.NoError(t, err)

	report, err := c.VerifyAll(ctx)
	require.NoError(t, err)
	require.False(t, report.Valid)
	require.Len(t, report.BrokenLinks, 2)

	byID := map[int64]string{}
	for _, bl := range report.BrokenLinks {
		byID[bl.SubmissionID] = bl.Error
	}
	require.Equal(t, "hash_mismatch", byID[id1])
	require.Equal(t, "chain_break", byID[id2])
}

func TestVerifyAll_DetectsHashTamper(t *testing.T) {
	ctx := context.Background()
	c, s := newTestChain(t)

	id1, _, err := c.Append(ctx, testSubmission("1HGBH41JXMN109186"))
	require.NoError(t, err)
	_, _, err = c.Append(ctx, testSubmission("2HGFC2F59MH528491"))
	require.NoError(t, err)

	// Overwriting a stored hash breaks only that row's content check:
	// the successor still links to what the row's fields actually hash
	// to, so its linkage holds.
	_, err = s.DB().ExecContext(ctx,
		`UPDATE submissions SET integrity_hash = $1 WHERE id = $2`,
		"0000000000000000000000000000000000000000000000000000000000000000", id1)
	require.NoError(t, err)

	report, err := c.VerifyAll(ctx)
	require.NoError(t, err)
	require.False(t, report.Valid)
	require.Len(t, report.BrokenLinks, 1)
	require.Equal(t, id1, report.BrokenLinks[0].SubmissionID)
	require.Equal(t, "hash_mismatch", report.BrokenLinks[0].Error)
}

func TestVerifyOne(t *testing.T) {
	ctx := context.Background()
	c, s := newTestChain(t)

	id, hash, err := c.Append(ctx, testSubmission("1HGBH41JXMN109186"))
	require.NoError(t, err)

	res, err := c.VerifyOne(ctx, id)
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.Equal(t, hash, *res.StoredHash)
	require.Equal(t, hash, res.ComputedHash)

	_, err = s.DB().ExecContext(ctx,
		`UPDATE submissions SET data_snapshot = '{"vin":"tampered"}' WHERE id = $1`, id)
	require.NoError(t, err)

	res, err = c.VerifyOne(ctx, id)
	require.NoError(t, err)
	require.False(t, res.Valid)

	_, err = c.VerifyOne(ctx, 404)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestAppend_Serialized(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestChain(t)

	// Concurrent appends must still produce one unbroken chain.
	const writers = 8
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			sub := testSubmission(fmt.Sprintf("1HGBH41JXMN10918%d", i))
			_, _, err := c.Append(ctx, sub)
			errs <- err
		}(i)
	}
	for i := 0; i < writers; i++ {
		require.NoError(t, <-errs)
	}

	report, err := c.VerifyAll(ctx)
	require.NoError(t, err)
	require.True(t, report.Valid)
	require.EqualValues(t, writers, report.ChainLength)
}

func TestAnchor(t *testing.T) {
	ctx := context.Background()
	c, s := newTestChain(t)

	// Empty chain: nothing to anchor.
	anchor, err := c.Anchor(ctx)
	require.NoError(t, err)
	require.Nil(t, anchor)

	_, _, err = c.Append(ctx, testSubmission("1HGBH41JXMN109186"))
	require.NoError(t, err)
	_, hash2, err := c.Append(ctx, testSubmission("2HGFC2F59MH528491"))
	require.NoError(t, err)

	anchor, err = c.Anchor(ctx)
	require.NoError(t, err)
	require.NotNil(t, anchor)
	require.Equal(t, hash2, anchor.AnchorHash)
	require.EqualValues(t, 2, anchor.SubmissionCount)

	latest, err := s.LatestAnchor(ctx)
	require.NoError(t, err)
	require.Equal(t, anchor.AnchorHash, latest.AnchorHash)
}
