package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/autoverif/vinledger/pkg/contracts"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	// Running migrations again against the migrated schema must be a no-op.
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Migrate(context.Background()))
}

func TestChainColumns_AcceptNull(t *testing.T) {
	// Rows predating the chain keep NULL hashes; the schema must allow that.
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.DB().ExecContext(ctx,
		`INSERT INTO submissions (vin, report_type, submitter_name, submitted_at, previous_hash, integrity_hash)
		 VALUES ('1HGBH41JXMN109186', 'service', 'a', '2025-01-01T00:00:00Z', NULL, NULL)`)
	require.NoError(t, err)
}

func TestVehicle_InsertAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	year := 2021
	v := &contracts.Vehicle{
		VIN:          "2HGFC2F59MH528491",
		Make:         "HONDA",
		Model:        "Civic",
		Year:         &year,
		FuelType:     "Gasoline",
		PlantCountry: "CANADA",
		Decoded:      map[string]string{"Make": "HONDA", "Model": "Civic", "Model Year": "2021"},
	}
	require.NoError(t, s.InsertVehicle(ctx, v))

	got, err := s.GetVehicleByVIN(ctx, "2HGFC2F59MH528491")
	require.NoError(t, err)
	require.Equal(t, "HONDA", got.Make)
	require.NotNil(t, got.Year)
	require.Equal(t, 2021, *got.Year)
	require.Equal(t, "2021", got.Decoded["Model Year"])

	// A second insert of the same VIN is a no-op, not an error.
	require.NoError(t, s.InsertVehicle(ctx, v))
	n, err := s.VehicleCount(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestVehicle_GetUnknown(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetVehicleByVIN(context.Background(), "1FTFW1ET5DFC10312")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDetail_InsertAndSelect(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)

	data := map[string]any{
		"date":          "2025-06-15",
		"odometer_km":   float64(45000),
		"service_type":  "oil_change",
		"facility_name": "Garage Nadeau",
		"cost":          89.99,
		"unknown_field": "ignored",
	}
	require.NoError(t, s.InsertDetail(ctx, tx, 1, contracts.ReportService, data))
	require.NoError(t, tx.Commit())

	detail, err := s.SelectDetail(ctx, contracts.ReportService, 1)
	require.NoError(t, err)
	require.Equal(t, "2025-06-15", detail["date"])
	require.EqualValues(t, 45000, detail["odometer_km"])
	require.InDelta(t, 89.99, detail["cost"], 0.001)
	require.NotContains(t, detail, "unknown_field")
}

func TestDetail_Defaults(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, s.InsertDetail(ctx, tx, 2, contracts.ReportOwnership, map[string]any{
		"date":           "2025-03-01",
		"new_owner_type": "private",
	}))
	require.NoError(t, tx.Commit())

	detail, err := s.SelectDetail(ctx, contracts.ReportOwnership, 2)
	require.NoError(t, err)
	require.Equal(t, "QC", detail["province"])
}

func TestDetail_AccidentDrivableDefault(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, s.InsertDetail(ctx, tx, 3, contracts.ReportAccident, map[string]any{
		"date":         "2025-02-10",
		"severity":     "moderate",
		"impact_point": "front_left",
	}))
	require.NoError(t, tx.Commit())

	detail, err := s.SelectDetail(ctx, contracts.ReportAccident, 3)
	require.NoError(t, err)
	require.Equal(t, true, detail["drivable"])
}

func TestValidateDetail(t *testing.T) {
	err := ValidateDetail(contracts.ReportAccident, map[string]any{"date": "2025-01-01"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "severity")

	err = ValidateDetail(contracts.ReportAccident, map[string]any{
		"date": "2025-01-01", "severity": "catastrophic", "impact_point": "front",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "severity")

	require.NoError(t, ValidateDetail(contracts.ReportAccident, map[string]any{
		"date": "2025-01-01", "severity": "minor", "impact_point": "front",
	}))

	require.Error(t, ValidateDetail(contracts.ReportInspection, map[string]any{"result": "maybe"}))
	require.NoError(t, ValidateDetail(contracts.ReportInspection, map[string]any{"result": "pass"}))
}

func TestSelectDetail_NoRow(t *testing.T) {
	s := newTestStore(t)
	detail, err := s.SelectDetail(context.Background(), contracts.ReportTheft, 99)
	require.NoError(t, err)
	require.Nil(t, detail)
}

func TestCoercions(t *testing.T) {
	n, ok := CoerceInt("45000")
	require.True(t, ok)
	require.EqualValues(t, 45000, n)

	n, ok = CoerceInt("45000.7")
	require.True(t, ok)
	require.EqualValues(t, 45000, n)

	_, ok = CoerceInt("n/a")
	require.False(t, ok)

	f, ok := CoerceFloat("89.99")
	require.True(t, ok)
	require.InDelta(t, 89.99, f, 0.001)

	require.True(t, CoerceBool("oui"))
	require.True(t, CoerceBool("YES"))
	require.True(t, CoerceBool("1"))
	require.True(t, CoerceBool(true))
	require.False(t, CoerceBool("non"))
	require.False(t, CoerceBool("0"))
}
