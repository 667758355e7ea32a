// Package lookup assembles the full recorded history of a VIN:
// vehicle identity, submissions grouped by report type with their
// detail rows, and the odometer timeline.
package lookup

import (
	"context"

	"github.com/autoverif/vinledger/pkg/contracts"
	"github.com/autoverif/vinledger/pkg/store"
	"github.com/autoverif/vinledger/pkg/vin"
)

// Record is one submission projected for history readers.
type Record struct {
	SubmissionID  int64                    `json:"submission_id"`
	ReportType    contracts.ReportType     `json:"report_type"`
	SubmittedAt   string                   `json:"submitted_at"`
	SubmitterName string                   `json:"submitter_name"`
	Status        contracts.SubmissionStatus `json:"status"`
	IntegrityHash *string                  `json:"integrity_hash"`
	Detail        map[string]any           `json:"detail,omitempty"`
}

// History is the assembled answer for one VIN.
type History struct {
	Vehicle         *contracts.Vehicle           `json:"vehicle"`
	Records         map[string][]Record          `json:"records"`
	OdometerHistory []*contracts.OdometerReading `json:"odometer_history"`
	TotalRecords    int                          `json:"total_records"`
}

// Service performs read-only history assembly.
type Service struct {
	store *store.Store
}

// New builds a lookup Service.
func New(s *store.Store) *Service {
	return &Service{store: s}
}

// Lookup returns the history for v. Returns store.ErrNotFound when no
// vehicle row exists for the VIN.
func (l *Service) Lookup(ctx context.Context, v string) (*History, error) {
	v = vin.Normalize(v)

	vehicle, err := l.store.GetVehicleByVIN(ctx, v)
	if err != nil {
		return nil, err
	}

	subs, err := l.store.ListByVIN(ctx, v)
	if err != nil {
		return nil, err
	}

	// All fourteen buckets are present even when empty.
	records := make(map[string][]Record, len(contracts.ReportTypes))
	for _, rt := range contracts.ReportTypes {
		records[string(rt)] = []Record{}
	}

	for _, sub := range subs {
		detail, err := l.store.SelectDetail(ctx, sub.ReportType, sub.ID)
		if err != nil {
			return nil, err
		}
		bucket := string(sub.ReportType)
		records[bucket] = append(records[bucket], Record{
			SubmissionID:  sub.ID,
			ReportType:    sub.ReportType,
			SubmittedAt:   sub.SubmittedAt,
			SubmitterName: sub.Submitter.Name,
			Status:        sub.Status,
			IntegrityHash: sub.IntegrityHash,
			Detail:        detail,
		})
	}

	odo, err := l.store.OdometerHistory(ctx, v)
	if err != nil {
		return nil, err
	}
	if odo == nil {
		odo = []*contracts.OdometerReading{}
	}

	return &History{
		Vehicle:         vehicle,
		Records:         records,
		OdometerHistory: odo,
		TotalRecords:    len(subs),
	}, nil
}
