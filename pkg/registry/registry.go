// Package registry maintains the canonical per-VIN vehicle rows,
// decoding a VIN on first sighting.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"

	"github.com/autoverif/vinledger/pkg/contracts"
	"github.com/autoverif/vinledger/pkg/store"
	"github.com/autoverif/vinledger/pkg/vin"
)

// ErrCannotDecode means the decoder returned no attributes for the VIN.
var ErrCannotDecode = errors.New("vin cannot be decoded")

var numericYear = regexp.MustCompile(`^\d+$`)

// Registry resolves VINs to vehicle rows, creating them on first use.
type Registry struct {
	store   *store.Store
	decoder vin.Decoder
}

// New builds a Registry over the given store and decoder.
func New(s *store.Store, d vin.Decoder) *Registry {
	return &Registry{store: s, decoder: d}
}

// GetOrCreate returns the vehicle row for v, decoding and inserting it
// on first sighting. Returns ErrCannotDecode when the decoder yields
// no attributes. Concurrent first-sightings converge on a single row
// through the UNIQUE constraint on vin: the insert is a no-op on
// conflict and the winning row is re-read.
func (r *Registry) GetOrCreate(ctx context.Context, v string) (*contracts.Vehicle, error) {
	vehicle, err := r.store.GetVehicleByVIN(ctx, v)
	if err == nil {
		return vehicle, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	decoded, err := r.decoder.Decode(ctx, v)
	if err != nil {
		return nil, fmt.Errorf("decode vin %s: %w", v, err)
	}
	if len(decoded) == 0 {
		return nil, ErrCannotDecode
	}

	vehicle = &contracts.Vehicle{
		VIN:          v,
		Make:         decoded["Make"],
		Model:        decoded["Model"],
		Year:         parseYear(decoded["Model Year"]),
		BodyClass:    decoded["Body Class"],
		Engine:       decoded["Engine Model"],
		FuelType:     decoded["Fuel Type - Primary"],
		DriveType:    decoded["Drive Type"],
		Transmission: decoded["Transmission Style"],
		PlantCountry: decoded["Plant Country"],
		Decoded:      decoded,
	}
	if err := r.store.InsertVehicle(ctx, vehicle); err != nil {
		return nil, err
	}

	// Re-read regardless of who won the insert race so the caller sees
	// the stored row with its id and created_at.
	vehicle, err = r.store.GetVehicleByVIN(ctx, v)
	if err != nil {
		return nil, fmt.Errorf("re-read vehicle %s after insert: %w", v, err)
	}
	slog.Info("vehicle registered", "vin", v, "make", vehicle.Make, "model", vehicle.Model)
	return vehicle, nil
}

// parseYear keeps Model Year only when it is purely numeric.
func parseYear(s string) *int {
	if !numericYear.MatchString(s) {
		return nil
	}
	y, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &y
}
