// Package submission orchestrates one contribution end to end:
// validation, vehicle resolution, chained insert, typed detail,
// odometer side-effect and audit, in a single transaction.
package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/autoverif/vinledger/pkg/canonical"
	"github.com/autoverif/vinledger/pkg/chain"
	"github.com/autoverif/vinledger/pkg/contracts"
	"github.com/autoverif/vinledger/pkg/odometer"
	"github.com/autoverif/vinledger/pkg/registry"
	"github.com/autoverif/vinledger/pkg/store"
	"github.com/autoverif/vinledger/pkg/vin"
)

// Error is a user-caused submission failure with a stable code.
type Error struct {
	Code    string // INVALID_VIN | INVALID_TYPE | INVALID_DATA | CANNOT_DECODE
	Message string
}

func (e *Error) Error() string { return e.Message }

// UserError reports whether err is caused by the caller's input, as
// opposed to an operational failure.
func UserError(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Request is one contribution to submit.
type Request struct {
	VIN        string
	ReportType contracts.ReportType
	Submitter  contracts.Submitter
	Data       map[string]any
	ClientIP   string
}

// Result is the outcome of a successful submission.
type Result struct {
	SubmissionID  int64  `json:"submission_id"`
	IntegrityHash string `json:"integrity_hash"`
}

// Service runs the contribution pipeline.
type Service struct {
	store    *store.Store
	registry *registry.Registry
	chain    *chain.Chain
	odometer *odometer.Tracker
}

// New builds a Service over its collaborators.
func New(s *store.Store, r *registry.Registry, c *chain.Chain, t *odometer.Tracker) *Service {
	return &Service{store: s, registry: r, chain: c, odometer: t}
}

// Submit validates and persists one contribution. Everything after the
// vehicle lookup runs in one transaction: a failure at any step leaves
// no submission row, no orphaned detail and no dangling hash.
func (s *Service) Submit(ctx context.Context, req Request) (*Result, error) {
	v := vin.Normalize(req.VIN)
	if !vin.Valid(v) {
		return nil, &Error{Code: "INVALID_VIN", Message: fmt.Sprintf("invalid VIN format: %s", req.VIN)}
	}
	if !req.ReportType.Valid() {
		return nil, &Error{Code: "INVALID_TYPE", Message: fmt.Sprintf("unknown report type: %s", req.ReportType)}
	}
	if req.Submitter.Name == "" {
		return nil, &Error{Code: "INVALID_DATA", Message: "submitter name is required"}
	}
	if err := store.ValidateDetail(req.ReportType, req.Data); err != nil {
		return nil, &Error{Code: "INVALID_DATA", Message: err.Error()}
	}

	if _, err := s.registry.GetOrCreate(ctx, v); err != nil {
		if errors.Is(err, registry.ErrCannotDecode) {
			return nil, &Error{Code: "CANNOT_DECODE", Message: fmt.Sprintf("VIN %s cannot be decoded", v)}
		}
		return nil, err
	}

	// Captured once; the same string goes into the row and the hash.
	submittedAt := time.Now().UTC().Format(time.RFC3339)

	snapshot, err := canonical.Marshal(map[string]any{
		"vin":          v,
		"report_type":  string(req.ReportType),
		"submitter":    req.Submitter,
		"data":         req.Data,
		"submitted_at": submittedAt,
		"ip":           req.ClientIP,
	})
	if err != nil {
		return nil, fmt.Errorf("build data snapshot: %w", err)
	}

	sub := &contracts.Submission{
		VIN:          v,
		ReportType:   req.ReportType,
		Submitter:    req.Submitter,
		SubmittedAt:  submittedAt,
		ClientIP:     req.ClientIP,
		DataSnapshot: snapshot,
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	id, hash, err := s.chain.AppendTx(ctx, tx, sub)
	if err != nil {
		return nil, err
	}

	if err := s.store.InsertDetail(ctx, tx, id, req.ReportType, req.Data); err != nil {
		return nil, err
	}

	if km, ecuKm, date, ok := odometer.FromDetail(req.Data); ok {
		if _, err := s.odometer.MaybeRecord(ctx, tx, odometer.Reading{
			VIN:          v,
			Kilometers:   km,
			Source:       string(req.ReportType),
			SubmissionID: id,
			ReadingDate:  date,
			ECUKm:        ecuKm,
		}); err != nil {
			return nil, err
		}
	}

	auditDetails, _ := json.Marshal(map[string]any{
		"vin": v, "report_type": req.ReportType, "integrity_hash": hash,
	})
	if err := s.store.InsertAuditTx(ctx, tx, &contracts.AuditEntry{
		Action:      "submission_created",
		TargetTable: "submissions",
		TargetID:    &id,
		Details:     auditDetails,
		ClientIP:    req.ClientIP,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit submission: %w", err)
	}

	slog.Info("submission recorded",
		"id", id, "vin", v, "type", req.ReportType, "hash", hash)
	return &Result{SubmissionID: id, IntegrityHash: hash}, nil
}
