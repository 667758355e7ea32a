package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/autoverif/vinledger/pkg/contracts"
)

const vehicleColumns = `id, vin, make, model, year, body_class, engine,
	fuel_type, drive_type, transmission, plant_country, decoded, created_at`

// GetVehicleByVIN loads the canonical vehicle row for a VIN.
// Returns ErrNotFound when the VIN has never been sighted.
func (s *Store) GetVehicleByVIN(ctx context.Context, vin string) (*contracts.Vehicle, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE vin = $1`, vin)
	v, err := scanVehicle(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get vehicle %s: %w", vin, err)
	}
	return v, nil
}

// InsertVehicle inserts a vehicle row, tolerating a concurrent insert
// of the same VIN: on conflict the statement is a no-op and the caller
// re-reads the winning row.
func (s *Store) InsertVehicle(ctx context.Context, v *contracts.Vehicle) error {
	decoded, err := json.Marshal(v.Decoded)
	if err != nil {
		return fmt.Errorf("marshal decoded attributes: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO vehicles (vin, make, model, year, body_class, engine,
			fuel_type, drive_type, transmission, plant_country, decoded)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (vin) DO NOTHING`,
		v.VIN, v.Make, v.Model, v.Year, v.BodyClass, v.Engine,
		v.FuelType, v.DriveType, v.Transmission, v.PlantCountry, string(decoded))
	if err != nil {
		return fmt.Errorf("insert vehicle %s: %w", v.VIN, err)
	}
	return nil
}

// VehicleCount counts canonical vehicle rows.
func (s *Store) VehicleCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vehicles`).Scan(&n)
	return n, err
}

func scanVehicle(r rowScanner) (*contracts.Vehicle, error) {
	var v contracts.Vehicle
	var year sql.NullInt64
	var make_, model, body, engine, fuel, drive, trans, plant sql.NullString
	var decoded sql.NullString

	err := r.Scan(&v.ID, &v.VIN, &make_, &model, &year, &body, &engine,
		&fuel, &drive, &trans, &plant, &decoded, &v.CreatedAt)
	if err != nil {
		return nil, err
	}

	v.Make = make_.String
	v.Model = model.String
	if year.Valid {
		y := int(year.Int64)
		v.Year = &y
	}
	v.BodyClass = body.String
	v.Engine = engine.String
	v.FuelType = fuel.String
	v.DriveType = drive.String
	v.Transmission = trans.String
	v.PlantCountry = plant.String
	if decoded.Valid && decoded.String != "" {
		_ = json.Unmarshal([]byte(decoded.String), &v.Decoded)
	}
	return &v, nil
}
