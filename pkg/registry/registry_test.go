package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/autoverif/vinledger/pkg/store"
)

// fakeDecoder returns canned attribute maps keyed by VIN and counts
// upstream calls.
type fakeDecoder struct {
	attrs map[string]map[string]string
	calls int
}

func (f *fakeDecoder) Decode(_ context.Context, vin string) (map[string]string, error) {
	f.calls++
	if f.attrs == nil {
		return nil, errors.New("decoder unavailable")
	}
	return f.attrs[vin], nil
}

func newTestRegistry(t *testing.T, d *fakeDecoder) (*Registry, *store.Store) {
	t.Helper()
	s, err := store.Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return New(s, d), s
}

func TestGetOrCreate_DecodesOnFirstSighting(t *testing.T) {
	ctx := context.Background()
	dec := &fakeDecoder{attrs: map[string]map[string]string{
		"2HGFC2F59MH528491": {
			"Make": "HONDA", "Model": "Civic", "Model Year": "2021",
			"Plant Country": "CANADA", "Fuel Type - Primary": "Gasoline",
		},
	}}
	r, _ := newTestRegistry(t, dec)

	v, err := r.GetOrCreate(ctx, "2HGFC2F59MH528491")
	require.NoError(t, err)
	require.Equal(t, "HONDA", v.Make)
	require.Equal(t, "Civic", v.Model)
	require.NotNil(t, v.Year)
	require.Equal(t, 2021, *v.Year)
	require.Equal(t, "CANADA", v.PlantCountry)
	require.NotZero(t, v.ID)
	require.Equal(t, 1, dec.calls)

	// Second lookup hits the stored row, not the decoder.
	again, err := r.GetOrCreate(ctx, "2HGFC2F59MH528491")
	require.NoError(t, err)
	require.Equal(t, v.ID, again.ID)
	require.Equal(t, 1, dec.calls)
}

func TestGetOrCreate_UndecodableVIN(t *testing.T) {
	dec := &fakeDecoder{attrs: map[string]map[string]string{}}
	r, s := newTestRegistry(t, dec)

	_, err := r.GetOrCreate(context.Background(), "1FTFW1ET5DFC10312")
	require.ErrorIs(t, err, ErrCannotDecode)

	n, err := s.VehicleCount(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestGetOrCreate_DecoderError(t *testing.T) {
	r, _ := newTestRegistry(t, &fakeDecoder{})
	_, err := r.GetOrCreate(context.Background(), "1FTFW1ET5DFC10312")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrCannotDecode)
}

func TestGetOrCreate_NonNumericYearIsNull(t *testing.T) {
	dec := &fakeDecoder{attrs: map[string]map[string]string{
		"1HGBH41JXMN109186": {"Make": "HONDA", "Model Year": "unknown"},
	}}
	r, _ := newTestRegistry(t, dec)

	v, err := r.GetOrCreate(context.Background(), "1HGBH41JXMN109186")
	require.NoError(t, err)
	require.Nil(t, v.Year)
}

func TestGetOrCreate_ConcurrentFirstSighting(t *testing.T) {
	dec := &fakeDecoder{attrs: map[string]map[string]string{
		"2HGFC2F59MH528491": {"Make": "HONDA", "Model": "Civic", "Model Year": "2021"},
	}}
	r, s := newTestRegistry(t, dec)

	const callers = 6
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			_, err := r.GetOrCreate(context.Background(), "2HGFC2F59MH528491")
			errs <- err
		}()
	}
	for i := 0; i < callers; i++ {
		require.NoError(t, <-errs)
	}

	n, err := s.VehicleCount(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}
