package odometer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/autoverif/vinledger/pkg/store"
)

func newTestTracker(t *testing.T) (*Tracker, *store.Store) {
	t.Helper()
	s, err := store.Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return New(s), s
}

func record(t *testing.T, tr *Tracker, s *store.Store, r Reading) *struct {
	FraudFlag   bool
	FraudReason string
} {
	t.Helper()
	ctx := context.Background()
	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	reading, err := tr.MaybeRecord(ctx, tx, r)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	if reading == nil {
		return nil
	}
	return &struct {
		FraudFlag   bool
		FraudReason string
	}{reading.FraudFlag, reading.FraudReason}
}

func TestMaybeRecord_SkipsNonPositive(t *testing.T) {
	tr, s := newTestTracker(t)

	require.Nil(t, record(t, tr, s, Reading{VIN: "1HGBH41JXMN109186", Kilometers: 0}))
	require.Nil(t, record(t, tr, s, Reading{VIN: "1HGBH41JXMN109186", Kilometers: -5}))

	history, err := s.OdometerHistory(context.Background(), "1HGBH41JXMN109186")
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestMaybeRecord_FirstReadingClean(t *testing.T) {
	tr, s := newTestTracker(t)

	got := record(t, tr, s, Reading{
		VIN: "1HGBH41JXMN109186", Kilometers: 45000,
		Source: "service", SubmissionID: 1, ReadingDate: "2025-06-15",
	})
	require.NotNil(t, got)
	require.False(t, got.FraudFlag)
	require.Empty(t, got.FraudReason)
}

func TestMaybeRecord_RollbackFlagged(t *testing.T) {
	tr, s := newTestTracker(t)
	ctx := context.Background()

	record(t, tr, s, Reading{VIN: "1HGBH41JXMN109186", Kilometers: 50000,
		Source: "service", SubmissionID: 1, ReadingDate: "2025-08-01"})
	got := record(t, tr, s, Reading{VIN: "1HGBH41JXMN109186", Kilometers: 30000,
		Source: "service", SubmissionID: 2, ReadingDate: "2025-09-01"})

	require.True(t, got.FraudFlag)
	require.Contains(t, got.FraudReason, "Rollback suspect: 30000 km < precedent 50000 km")

	entries, err := s.AuditEntriesByAction(ctx, "odometer_fraud_alert")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Contains(t, string(entries[0].Details), "Rollback suspect")
}

func TestMaybeRecord_ECUMismatch(t *testing.T) {
	tr, s := newTestTracker(t)

	ecu := int64(72000)
	got := record(t, tr, s, Reading{VIN: "1HGBH41JXMN109186", Kilometers: 60000,
		Source: "obd_diagnostic", SubmissionID: 1, ReadingDate: "2025-09-15", ECUKm: &ecu})

	require.True(t, got.FraudFlag)
	require.Contains(t, got.FraudReason, "ECU mismatch: ECU=72000 vs declared=60000")
}

func TestMaybeRecord_ECUWithinTolerance(t *testing.T) {
	tr, s := newTestTracker(t)

	ecu := int64(64000)
	got := record(t, tr, s, Reading{VIN: "1HGBH41JXMN109186", Kilometers: 60000,
		Source: "obd_diagnostic", SubmissionID: 1, ECUKm: &ecu})
	require.False(t, got.FraudFlag)
}

func TestMaybeRecord_BothRulesConcatenated(t *testing.T) {
	tr, s := newTestTracker(t)

	record(t, tr, s, Reading{VIN: "1HGBH41JXMN109186", Kilometers: 80000,
		Source: "service", SubmissionID: 1, ReadingDate: "2025-01-01"})

	ecu := int64(90000)
	got := record(t, tr, s, Reading{VIN: "1HGBH41JXMN109186", Kilometers: 70000,
		Source: "service", SubmissionID: 2, ReadingDate: "2025-02-01", ECUKm: &ecu})

	require.True(t, got.FraudFlag)
	require.Contains(t, got.FraudReason, "Rollback suspect: 70000 km < precedent 80000 km")
	require.Contains(t, got.FraudReason, "ECU mismatch: ECU=90000 vs declared=70000")
}

func TestMaybeRecord_SameDayTieBreaksOnInsertionOrder(t *testing.T) {
	tr, s := newTestTracker(t)
	ctx := context.Background()

	record(t, tr, s, Reading{VIN: "1HGBH41JXMN109186", Kilometers: 40000,
		Source: "service", SubmissionID: 1, ReadingDate: "2025-05-01"})
	record(t, tr, s, Reading{VIN: "1HGBH41JXMN109186", Kilometers: 41000,
		Source: "service", SubmissionID: 2, ReadingDate: "2025-05-01"})

	// The prior for the next reading must be the later same-day insert.
	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	latest, err := s.LatestReading(ctx, tx, "1HGBH41JXMN109186")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.EqualValues(t, 41000, latest.Kilometers)
}

func TestFromDetail(t *testing.T) {
	km, ecu, date, ok := FromDetail(map[string]any{
		"date": "2025-06-15", "odometer_km": float64(45000),
	})
	require.True(t, ok)
	require.EqualValues(t, 45000, km)
	require.Nil(t, ecu)
	require.Equal(t, "2025-06-15", date)

	km, ecu, _, ok = FromDetail(map[string]any{
		"odometer_km": "60000", "ecu_odometer_km": "72000",
	})
	require.True(t, ok)
	require.EqualValues(t, 60000, km)
	require.NotNil(t, ecu)
	require.EqualValues(t, 72000, *ecu)

	km, _, _, ok = FromDetail(map[string]any{
		"odometer_at_import": float64(12000), "direction": "import",
	})
	require.True(t, ok)
	require.EqualValues(t, 12000, km)

	_, _, _, ok = FromDetail(map[string]any{"date": "2025-06-15"})
	require.False(t, ok)
}
