package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/autoverif/vinledger/pkg/contracts"
)

const odometerColumns = `id, vin, reading_date, km, unit, source,
	submission_id, ecu_km, fraud_flag, fraud_reason`

// LatestReading returns the most recent prior reading for a VIN,
// ordered by (reading_date DESC, id DESC). Same-day readings tie-break
// on insertion order. Returns nil when the VIN has no readings.
func (s *Store) LatestReading(ctx context.Context, tx *sql.Tx, vin string) (*contracts.OdometerReading, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+odometerColumns+` FROM odometer_readings
		WHERE vin = $1
		ORDER BY reading_date DESC, id DESC
		LIMIT 1`, vin)
	r, err := scanReading(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest reading for %s: %w", vin, err)
	}
	return r, nil
}

// InsertReading appends one odometer reading within tx.
func (s *Store) InsertReading(ctx context.Context, tx *sql.Tx, r *contracts.OdometerReading) error {
	row := tx.QueryRowContext(ctx, `
		INSERT INTO odometer_readings (vin, reading_date, km, unit, source,
			submission_id, ecu_km, fraud_flag, fraud_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		r.VIN, r.ReadingDate, r.Kilometers, r.Unit, r.Source,
		r.SubmissionID, r.ECUKm, r.FraudFlag, nullIfEmpty(r.FraudReason))
	if err := row.Scan(&r.ID); err != nil {
		return fmt.Errorf("insert odometer reading: %w", err)
	}
	return nil
}

// OdometerHistory returns all readings for a VIN ordered by
// (reading_date ASC, id ASC).
func (s *Store) OdometerHistory(ctx context.Context, vin string) ([]*contracts.OdometerReading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+odometerColumns+` FROM odometer_readings
		WHERE vin = $1
		ORDER BY reading_date ASC, id ASC`, vin)
	if err != nil {
		return nil, fmt.Errorf("odometer history for %s: %w", vin, err)
	}
	defer func() { _ = rows.Close() }()

	var readings []*contracts.OdometerReading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// FraudAlertCount counts readings flagged by the detector.
func (s *Store) FraudAlertCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM odometer_readings WHERE fraud_flag`).Scan(&n)
	return n, err
}

func scanReading(r rowScanner) (*contracts.OdometerReading, error) {
	var reading contracts.OdometerReading
	var source, reason sql.NullString
	var submissionID, ecuKm sql.NullInt64

	err := r.Scan(&reading.ID, &reading.VIN, &reading.ReadingDate,
		&reading.Kilometers, &reading.Unit, &source,
		&submissionID, &ecuKm, &reading.FraudFlag, &reason)
	if err != nil {
		return nil, err
	}

	reading.Source = source.String
	reading.FraudReason = reason.String
	if submissionID.Valid {
		reading.SubmissionID = &submissionID.Int64
	}
	if ecuKm.Valid {
		reading.ECUKm = &ecuKm.Int64
	}
	return &reading, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
