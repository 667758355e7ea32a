package lookup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/autoverif/vinledger/pkg/chain"
	"github.com/autoverif/vinledger/pkg/contracts"
	"github.com/autoverif/vinledger/pkg/odometer"
	"github.com/autoverif/vinledger/pkg/registry"
	"github.com/autoverif/vinledger/pkg/store"
	"github.com/autoverif/vinledger/pkg/submission"
)

type civicDecoder struct{}

func (civicDecoder) Decode(_ context.Context, _ string) (map[string]string, error) {
	return map[string]string{"Make": "HONDA", "Model": "Civic", "Model Year": "2021"}, nil
}

func newFixture(t *testing.T) (*Service, *submission.Service) {
	t.Helper()
	s, err := store.Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	svc := submission.New(s, registry.New(s, civicDecoder{}), chain.New(s), odometer.New(s))
	return New(s), svc
}

func TestLookup_UnknownVIN(t *testing.T) {
	l, _ := newFixture(t)
	_, err := l.Lookup(context.Background(), "1FTFW1ET5DFC10312")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestLookup_AssemblesHistory(t *testing.T) {
	ctx := context.Background()
	l, svc := newFixture(t)

	_, err := svc.Submit(ctx, submission.Request{
		VIN: "2HGFC2F59MH528491", ReportType: contracts.ReportService,
		Submitter: contracts.Submitter{Name: "Garage Nadeau"},
		Data: map[string]any{
			"date": "2025-06-15", "odometer_km": float64(45000),
			"service_type": "oil_change", "cost": 89.99,
		},
	})
	require.NoError(t, err)

	_, err = svc.Submit(ctx, submission.Request{
		VIN: "2HGFC2F59MH528491", ReportType: contracts.ReportAccident,
		Submitter: contracts.Submitter{Name: "Assureur QC"},
		Data: map[string]any{
			"date": "2025-07-02", "severity": "moderate", "impact_point": "front_left",
			"odometer_km": float64(46500),
		},
	})
	require.NoError(t, err)

	h, err := l.Lookup(ctx, "2hgfc2f59mh528491") // normalization applies
	require.NoError(t, err)

	require.Equal(t, "HONDA", h.Vehicle.Make)
	require.Equal(t, 2, h.TotalRecords)
	require.Len(t, h.Records, len(contracts.ReportTypes))
	require.Empty(t, h.Records["theft"])

	require.Len(t, h.Records["service"], 1)
	svcRec := h.Records["service"][0]
	require.Equal(t, contracts.SubmissionPending, svcRec.Status)
	require.NotNil(t, svcRec.IntegrityHash)
	require.Equal(t, "oil_change", svcRec.Detail["service_type"])
	require.InDelta(t, 89.99, svcRec.Detail["cost"], 0.001)

	require.Len(t, h.Records["accident"], 1)
	require.Equal(t, "moderate", h.Records["accident"][0].Detail["severity"])

	// Odometer timeline in (reading_date ASC, id ASC) order.
	require.Len(t, h.OdometerHistory, 2)
	require.EqualValues(t, 45000, h.OdometerHistory[0].Kilometers)
	require.EqualValues(t, 46500, h.OdometerHistory[1].Kilometers)
}

func TestLookup_NoOdometerValues(t *testing.T) {
	ctx := context.Background()
	l, svc := newFixture(t)

	_, err := svc.Submit(ctx, submission.Request{
		VIN: "1HGBH41JXMN109186", ReportType: contracts.ReportService,
		Submitter: contracts.Submitter{Name: "A"},
		Data:      map[string]any{"date": "2025-01-01", "service_type": "tires"},
	})
	require.NoError(t, err)

	h, err := l.Lookup(ctx, "1HGBH41JXMN109186")
	require.NoError(t, err)
	require.Equal(t, 1, h.TotalRecords)
	require.NotNil(t, h.OdometerHistory)
	require.Empty(t, h.OdometerHistory)
}
