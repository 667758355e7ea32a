// Package ingest provides the bulk contribution surfaces: CSV upload
// and JSON batch. Both funnel each row through the submission pipeline
// in its own transaction, so one bad row never aborts a batch.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/autoverif/vinledger/pkg/contracts"
	"github.com/autoverif/vinledger/pkg/store"
	"github.com/autoverif/vinledger/pkg/submission"
)

const (
	// MaxCSVBytes bounds an uploaded CSV body.
	MaxCSVBytes = 2 << 20
	// MaxCSVRows bounds the data rows of one CSV batch.
	MaxCSVRows = 500
	// MaxJSONRecords bounds one JSON batch.
	MaxJSONRecords = 100
)

// Ingestor runs batches against the submission pipeline.
type Ingestor struct {
	store *store.Store
	svc   *submission.Service
}

// New builds an Ingestor.
func New(s *store.Store, svc *submission.Service) *Ingestor {
	return &Ingestor{store: s, svc: svc}
}

// newBatchRef generates a reference like CSV-3F2A9C01.
func newBatchRef(prefix string) string {
	hex := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return prefix + "-" + hex[:8]
}

// row is one unit of work extracted from either ingest surface.
// A non-empty fail marks a row rejected during parsing, before it
// could reach the submission pipeline.
type row struct {
	index      int // 1-based position within the batch
	vin        string
	reportType contracts.ReportType
	data       map[string]any
	fail       string
}

// run creates the batch row, pushes every extracted row through the
// submission service and finalizes the batch exactly once.
func (g *Ingestor) run(ctx context.Context, batch *contracts.ImportBatch, rows []row, clientIP, auditAction string) (*contracts.ImportBatch, error) {
	if err := g.store.CreateBatch(ctx, batch); err != nil {
		return nil, err
	}

	batch.TotalRows = len(rows)
	for _, r := range rows {
		if r.fail != "" {
			batch.ErrorCount++
			batch.Errors = append(batch.Errors, contracts.BatchError{
				Row: r.index, VIN: r.vin, Message: r.fail,
			})
			continue
		}
		res, err := g.svc.Submit(ctx, submission.Request{
			VIN:        r.vin,
			ReportType: r.reportType,
			Submitter:  batch.Submitter,
			Data:       r.data,
			ClientIP:   clientIP,
		})
		if err != nil {
			batch.ErrorCount++
			batch.Errors = append(batch.Errors, contracts.BatchError{
				Row: r.index, VIN: r.vin, Message: err.Error(),
			})
			continue
		}
		batch.SuccessCount++
		batch.SubmissionIDs = append(batch.SubmissionIDs, res.SubmissionID)
	}

	batch.Status = contracts.BatchCompleted
	if batch.TotalRows > 0 && batch.SuccessCount == 0 {
		batch.Status = contracts.BatchFailed
	}
	if err := g.store.CompleteBatch(ctx, batch); err != nil {
		return nil, err
	}

	details, _ := json.Marshal(map[string]any{
		"batch_ref": batch.BatchRef,
		"total":     batch.TotalRows,
		"success":   batch.SuccessCount,
		"errors":    batch.ErrorCount,
	})
	if err := g.store.InsertAudit(ctx, &contracts.AuditEntry{
		Action:      auditAction,
		TargetTable: "import_batches",
		TargetID:    &batch.ID,
		Details:     details,
		ClientIP:    clientIP,
	}); err != nil {
		return nil, err
	}

	slog.Info("batch ingested", "ref", batch.BatchRef,
		"total", batch.TotalRows, "success", batch.SuccessCount, "errors", batch.ErrorCount)
	return batch, nil
}

// detectReportType applies the column heuristic for rows without an
// explicit report_type, in rule order.
func detectReportType(data map[string]any) contracts.ReportType {
	has := func(keys ...string) bool {
		for _, k := range keys {
			if _, ok := data[k]; ok {
				return true
			}
		}
		return false
	}

	switch {
	case has("severity", "impact_point", "airbag_deployed"):
		return contracts.ReportAccident
	case has("service_type") || (has("facility_name") && has("cost")):
		return contracts.ReportService
	case has("previous_owner_type", "new_owner_type", "sale_price"):
		return contracts.ReportOwnership
	case isPassFail(data["result"]):
		return contracts.ReportInspection
	case has("recall_number"):
		return contracts.ReportRecallCompletion
	case has("date") && has("odometer_km"):
		return contracts.ReportService
	default:
		return contracts.ReportService
	}
}

func isPassFail(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pass", "fail":
		return true
	}
	return false
}

func reportTypeOf(data map[string]any) contracts.ReportType {
	if raw, ok := data["report_type"]; ok {
		if s, isStr := raw.(string); isStr && s != "" {
			delete(data, "report_type")
			return contracts.ReportType(strings.ToLower(strings.TrimSpace(s)))
		}
	}
	return detectReportType(data)
}

// EnvelopeError is a malformed-batch failure (as opposed to per-row
// errors, which are collected in the batch result).
type EnvelopeError struct{ Message string }

func (e *EnvelopeError) Error() string { return e.Message }

func envelopeErrorf(format string, args ...any) error {
	return &EnvelopeError{Message: fmt.Sprintf(format, args...)}
}
