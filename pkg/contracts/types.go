// Package contracts holds the shared domain types of the VIN ledger:
// vehicles, submissions, odometer readings, audit entries and import batches.
package contracts

import (
	"encoding/json"
	"time"
)

// ReportType enumerates the closed set of contribution record types.
type ReportType string

const (
	ReportAccident         ReportType = "accident"
	ReportService          ReportType = "service"
	ReportOwnership        ReportType = "ownership"
	ReportInspection       ReportType = "inspection"
	ReportRecallCompletion ReportType = "recall_completion"
	ReportTitleBrand       ReportType = "title_brand"
	ReportLien             ReportType = "lien"
	ReportTheft            ReportType = "theft"
	ReportOBDDiagnostic    ReportType = "obd_diagnostic"
	ReportAuction          ReportType = "auction"
	ReportFleetHistory     ReportType = "fleet_history"
	ReportImportExport     ReportType = "import_export"
	ReportEmissions        ReportType = "emissions"
	ReportModification     ReportType = "modification"
)

// ReportTypes lists all valid report types in a stable order.
var ReportTypes = []ReportType{
	ReportAccident,
	ReportService,
	ReportOwnership,
	ReportInspection,
	ReportRecallCompletion,
	ReportTitleBrand,
	ReportLien,
	ReportTheft,
	ReportOBDDiagnostic,
	ReportAuction,
	ReportFleetHistory,
	ReportImportExport,
	ReportEmissions,
	ReportModification,
}

// Valid reports whether rt is a member of the closed report-type set.
func (rt ReportType) Valid() bool {
	for _, t := range ReportTypes {
		if rt == t {
			return true
		}
	}
	return false
}

// SubmissionStatus is the author-facing review state of a submission.
type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "pending"
	SubmissionVerified SubmissionStatus = "verified"
	SubmissionRejected SubmissionStatus = "rejected"
)

// BatchStatus is the lifecycle state of an import batch.
type BatchStatus string

const (
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// Vehicle is the canonical per-VIN row, populated from the decoder on
// first sighting and never deleted while submissions reference it.
type Vehicle struct {
	ID           int64             `json:"id"`
	VIN          string            `json:"vin"`
	Make         string            `json:"make"`
	Model        string            `json:"model"`
	Year         *int              `json:"year"`
	BodyClass    string            `json:"body,omitempty"`
	Engine       string            `json:"engine,omitempty"`
	FuelType     string            `json:"fuel,omitempty"`
	DriveType    string            `json:"drivetrain,omitempty"`
	Transmission string            `json:"transmission,omitempty"`
	PlantCountry string            `json:"plant_country,omitempty"`
	Decoded      map[string]string `json:"decoded,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Submitter identifies the author of a contribution.
type Submitter struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Type    string `json:"type,omitempty"`
	Company string `json:"company,omitempty"`
}

// Submission is one append-only entry in the integrity chain. The only
// permitted mutation is filling IntegrityHash inside the inserting
// transaction.
type Submission struct {
	ID            int64            `json:"id"`
	VIN           string           `json:"vin"`
	ReportType    ReportType       `json:"report_type"`
	Submitter     Submitter        `json:"submitter"`
	Status        SubmissionStatus `json:"status"`
	SubmittedAt   string           `json:"submitted_at"` // RFC 3339, UTC; the exact string that was hashed
	ClientIP      string           `json:"client_ip,omitempty"`
	PreviousHash  *string          `json:"previous_hash"`
	IntegrityHash *string          `json:"integrity_hash"`
	DataSnapshot  json.RawMessage  `json:"data_snapshot"`
}

// OdometerReading is one recorded reading, append-only, optionally
// flagged by the fraud detector.
type OdometerReading struct {
	ID           int64  `json:"id"`
	VIN          string `json:"vin"`
	ReadingDate  string `json:"reading_date"` // YYYY-MM-DD
	Kilometers   int64  `json:"km"`
	Unit         string `json:"unit"`
	Source       string `json:"source"`
	SubmissionID *int64 `json:"submission_id,omitempty"`
	ECUKm        *int64 `json:"ecu_km,omitempty"`
	FraudFlag    bool   `json:"fraud_flag"`
	FraudReason  string `json:"fraud_reason,omitempty"`
}

// AuditEntry records one operator-visible action against the store.
type AuditEntry struct {
	ID          int64           `json:"id"`
	Action      string          `json:"action"`
	TargetTable string          `json:"target_table"`
	TargetID    *int64          `json:"target_id,omitempty"`
	Details     json.RawMessage `json:"details,omitempty"`
	ClientIP    string          `json:"client_ip,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// BatchError is one per-row failure collected during batch ingest.
type BatchError struct {
	Row     int    `json:"row"`
	VIN     string `json:"vin"`
	Message string `json:"message"`
}

// ImportBatch tracks one CSV or JSON batch ingest from start to
// completion. Created with status processing and updated exactly once.
type ImportBatch struct {
	ID            int64        `json:"id"`
	BatchRef      string       `json:"batch_ref"`
	Submitter     Submitter    `json:"submitter"`
	Filename      string       `json:"filename,omitempty"`
	TotalRows     int          `json:"total_rows"`
	SuccessCount  int          `json:"success_count"`
	ErrorCount    int          `json:"error_count"`
	Errors        []BatchError `json:"errors,omitempty"`
	SubmissionIDs []int64      `json:"submission_ids,omitempty"`
	Status        BatchStatus  `json:"status"`
	StartedAt     time.Time    `json:"started_at"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
}

// ChainAnchor is a periodic snapshot of the chain tip, usable as an
// external commitment point.
type ChainAnchor struct {
	ID                int64     `json:"id"`
	AnchorHash        string    `json:"anchor_hash"`
	SubmissionCount   int64     `json:"submission_count"`
	FirstSubmissionID int64     `json:"first_submission_id"`
	LastSubmissionID  int64     `json:"last_submission_id"`
	CreatedAt         time.Time `json:"created_at"`
}
