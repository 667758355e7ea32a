// Package odometer records per-VIN odometer readings and flags
// rollback and ECU-mismatch anomalies.
package odometer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/autoverif/vinledger/pkg/contracts"
	"github.com/autoverif/vinledger/pkg/store"
)

// ECU readings further than this from the declared value are flagged.
const ecuToleranceKm = 5000

// Tracker persists odometer readings and applies the fraud rules.
// It is advisory: a flagged reading is still stored and never fails
// the parent submission.
type Tracker struct {
	store *store.Store
}

// New builds a Tracker over the given store.
func New(s *store.Store) *Tracker {
	return &Tracker{store: s}
}

// Reading is the input to MaybeRecord.
type Reading struct {
	VIN          string
	Kilometers   int64
	Source       string
	SubmissionID int64
	ReadingDate  string // YYYY-MM-DD; defaults to today (UTC)
	ECUKm        *int64
}

// MaybeRecord inserts a reading for r.VIN within tx, flagging it when
// the rollback or ECU-mismatch rule fires. A non-positive km is a
// no-op and returns (nil, nil).
func (t *Tracker) MaybeRecord(ctx context.Context, tx *sql.Tx, r Reading) (*contracts.OdometerReading, error) {
	if r.Kilometers <= 0 {
		return nil, nil
	}

	prior, err := t.store.LatestReading(ctx, tx, r.VIN)
	if err != nil {
		return nil, err
	}

	var reasons []string
	if prior != nil && r.Kilometers < prior.Kilometers {
		reasons = append(reasons, fmt.Sprintf("Rollback suspect: %d km < precedent %d km",
			r.Kilometers, prior.Kilometers))
	}
	if r.ECUKm != nil && abs(*r.ECUKm-r.Kilometers) > ecuToleranceKm {
		reasons = append(reasons, fmt.Sprintf("ECU mismatch: ECU=%d vs declared=%d",
			*r.ECUKm, r.Kilometers))
	}

	date := r.ReadingDate
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}

	reading := &contracts.OdometerReading{
		VIN:          r.VIN,
		ReadingDate:  date,
		Kilometers:   r.Kilometers,
		Unit:         "km",
		Source:       r.Source,
		SubmissionID: &r.SubmissionID,
		ECUKm:        r.ECUKm,
		FraudFlag:    len(reasons) > 0,
		FraudReason:  strings.Join(reasons, " "),
	}
	if err := t.store.InsertReading(ctx, tx, reading); err != nil {
		return nil, err
	}

	if reading.FraudFlag {
		details, _ := json.Marshal(map[string]any{
			"vin":    reading.VIN,
			"km":     reading.Kilometers,
			"reason": reading.FraudReason,
		})
		if err := t.store.InsertAuditTx(ctx, tx, &contracts.AuditEntry{
			Action:      "odometer_fraud_alert",
			TargetTable: "odometer_readings",
			TargetID:    &reading.ID,
			Details:     details,
		}); err != nil {
			return nil, err
		}
		slog.Warn("odometer fraud alert",
			"vin", reading.VIN, "km", reading.Kilometers, "reason", reading.FraudReason)
	}
	return reading, nil
}

// FromDetail extracts the odometer inputs of a submission's detail
// data: declared km from odometer_km or odometer_at_import, plus an
// optional ecu_odometer_km, with the detail date as reading date.
func FromDetail(data map[string]any) (km int64, ecuKm *int64, date string, ok bool) {
	km, ok = store.CoerceInt(data["odometer_km"])
	if !ok {
		km, ok = store.CoerceInt(data["odometer_at_import"])
	}
	if !ok {
		return 0, nil, "", false
	}
	if v, found := store.CoerceInt(data["ecu_odometer_km"]); found {
		ecuKm = &v
	}
	if d, isStr := data["date"].(string); isStr {
		date = d
	}
	return km, ecuKm, date, true
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
