package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/autoverif/vinledger/pkg/api"
	"github.com/autoverif/vinledger/pkg/contracts"
	"github.com/autoverif/vinledger/pkg/ingest"
	"github.com/autoverif/vinledger/pkg/store"
	"github.com/autoverif/vinledger/pkg/submission"
	"github.com/autoverif/vinledger/pkg/uploads"
	"github.com/autoverif/vinledger/pkg/vin"
)

const maxJSONBody = 1 << 20

// handleVINCheck decodes a VIN and reports whether it is already
// tracked. Decoder failures yield an empty decoded map, never a 500.
func (s *Server) handleVINCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w)
		return
	}
	v := vin.Normalize(pathTail(r.URL.Path, "/api/collecte/vin-check/"))
	if !vin.Valid(v) {
		api.WriteBadRequest(w, "invalid VIN format")
		return
	}

	resp := map[string]any{
		"vin":     v,
		"valid":   true,
		"tracked": false,
		"decoded": map[string]string{},
	}

	vehicle, err := s.store.GetVehicleByVIN(r.Context(), v)
	switch {
	case err == nil:
		resp["tracked"] = true
		resp["vehicle"] = vehicle
		resp["decoded"] = vehicle.Decoded
		if n, err := s.store.CountByVIN(r.Context(), v); err == nil {
			resp["submission_count"] = n
		}
	case errors.Is(err, store.ErrNotFound):
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()
		if decoded, err := s.decoder.Decode(ctx, v); err == nil && decoded != nil {
			resp["decoded"] = decoded
		}
	default:
		api.WriteInternal(w, err)
		return
	}

	api.WriteJSON(w, http.StatusOK, resp)
}

type submitRequest struct {
	VIN        string              `json:"vin"`
	ReportType string              `json:"report_type"`
	Submitter  contracts.Submitter `json:"submitter"`
	Data       map[string]any      `json:"data"`
}

// handleSubmit accepts one contribution.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.WriteMethodNotAllowed(w)
		return
	}

	var req submitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		api.WriteBadRequest(w, "malformed JSON body")
		return
	}

	res, err := s.submit.Submit(r.Context(), submission.Request{
		VIN:        req.VIN,
		ReportType: contracts.ReportType(req.ReportType),
		Submitter:  req.Submitter,
		Data:       req.Data,
		ClientIP:   clientIP(r),
	})
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}

	api.WriteJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"submission_id":  res.SubmissionID,
		"integrity_hash": res.IntegrityHash,
		"message":        "contribution enregistrée",
	})
}

func (s *Server) writeSubmitError(w http.ResponseWriter, err error) {
	if se, ok := submission.UserError(err); ok {
		if se.Code == "CANNOT_DECODE" {
			api.WriteNotFound(w, se.Message)
			return
		}
		api.WriteBadRequest(w, se.Message)
		return
	}
	api.WriteInternal(w, err)
}

// handleBatch accepts up to 100 contributions as one JSON array.
// Per-record failures are part of the 200 response; only a malformed
// envelope is a 400.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.WriteMethodNotAllowed(w)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		api.WriteBadRequest(w, "unreadable request body")
		return
	}

	batch, err := s.ingestor.IngestJSON(r.Context(), body, clientIP(r))
	if err != nil {
		s.writeBatchError(w, err)
		return
	}
	writeBatchResult(w, batch)
}

// handleImportCSV accepts a multipart CSV upload with submitter fields.
func (s *Server) handleImportCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.WriteMethodNotAllowed(w)
		return
	}
	if err := r.ParseMultipartForm(ingest.MaxCSVBytes + (1 << 20)); err != nil {
		api.WriteBadRequest(w, "malformed multipart body")
		return
	}

	submitter := contracts.Submitter{
		Name:    r.FormValue("submitter_name"),
		Email:   r.FormValue("submitter_email"),
		Type:    r.FormValue("submitter_type"),
		Company: r.FormValue("submitter_company"),
	}
	if submitter.Name == "" {
		api.WriteBadRequest(w, "submitter_name is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		api.WriteBadRequest(w, "missing file field")
		return
	}
	defer func() { _ = file.Close() }()

	body, err := io.ReadAll(io.LimitReader(file, ingest.MaxCSVBytes+1))
	if err != nil {
		api.WriteBadRequest(w, "unreadable file")
		return
	}

	batch, err := s.ingestor.IngestCSV(r.Context(), header.Filename, body, submitter, clientIP(r))
	if err != nil {
		s.writeBatchError(w, err)
		return
	}
	writeBatchResult(w, batch)
}

func (s *Server) writeBatchError(w http.ResponseWriter, err error) {
	var ee *ingest.EnvelopeError
	if errors.As(err, &ee) {
		api.WriteBadRequest(w, ee.Message)
		return
	}
	api.WriteInternal(w, err)
}

func writeBatchResult(w http.ResponseWriter, b *contracts.ImportBatch) {
	api.WriteJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"batch_ref":      b.BatchRef,
		"status":         b.Status,
		"total_rows":     b.TotalRows,
		"success_count":  b.SuccessCount,
		"error_count":    b.ErrorCount,
		"errors":         b.Errors,
		"submission_ids": b.SubmissionIDs,
	})
}

type uploadedFile struct {
	Original string `json:"original"`
	Stored   string `json:"stored"`
	Size     int64  `json:"size"`
}

// handleUpload stores up to five contribution photos.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.WriteMethodNotAllowed(w)
		return
	}
	if err := r.ParseMultipartForm(uploads.MaxFileBytes * uploads.MaxFilesPerRequest); err != nil {
		api.WriteBadRequest(w, "malformed multipart body")
		return
	}

	var headers []*multipartFile
	for _, field := range []string{"photos", "files"} {
		for _, fh := range r.MultipartForm.File[field] {
			headers = append(headers, &multipartFile{header: fh})
		}
	}
	if len(headers) == 0 {
		api.WriteBadRequest(w, "no files in photos or files field")
		return
	}
	if len(headers) > uploads.MaxFilesPerRequest {
		api.WriteBadRequest(w, "too many files: limit is 5 per request")
		return
	}

	// All files validate before any of them is stored.
	for _, f := range headers {
		ext, err := uploads.ValidateFile(f.header.Filename, f.header.Size)
		if err != nil {
			api.WriteBadRequest(w, err.Error())
			return
		}
		f.ext = ext
	}

	results := make([]uploadedFile, 0, len(headers))
	for _, f := range headers {
		file, err := f.header.Open()
		if err != nil {
			api.WriteInternal(w, err)
			return
		}
		data, err := io.ReadAll(io.LimitReader(file, uploads.MaxFileBytes))
		_ = file.Close()
		if err != nil {
			api.WriteInternal(w, err)
			return
		}

		stored, err := s.uploads.Save(r.Context(), f.ext, data)
		if err != nil {
			api.WriteInternal(w, err)
			return
		}
		results = append(results, uploadedFile{
			Original: f.header.Filename,
			Stored:   stored,
			Size:     int64(len(data)),
		})
	}

	if detail, err := json.Marshal(map[string]any{"count": len(results)}); err == nil {
		_ = s.store.InsertAudit(r.Context(), &contracts.AuditEntry{
			Action:      "photo_upload",
			TargetTable: "uploads",
			Details:     detail,
			ClientIP:    clientIP(r),
		})
	}

	api.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"files":   results,
	})
}

// handleStats returns aggregate counters.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w)
		return
	}
	ctx := r.Context()

	total, uniqueVINs, chained, err := s.store.SubmissionStats(ctx)
	if err != nil {
		api.WriteInternal(w, err)
		return
	}
	vehicles, err := s.store.VehicleCount(ctx)
	if err != nil {
		api.WriteInternal(w, err)
		return
	}
	fraudAlerts, err := s.store.FraudAlertCount(ctx)
	if err != nil {
		api.WriteInternal(w, err)
		return
	}
	batches, err := s.store.BatchCount(ctx)
	if err != nil {
		api.WriteInternal(w, err)
		return
	}

	api.WriteJSON(w, http.StatusOK, map[string]any{
		"total_submissions":   total,
		"unique_vins":         uniqueVINs,
		"chained_submissions": chained,
		"vehicles":            vehicles,
		"fraud_alerts":        fraudAlerts,
		"import_batches":      batches,
	})
}

// handleVerifyAll runs full-chain verification.
func (s *Server) handleVerifyAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w)
		return
	}
	report, err := s.chain.VerifyAll(r.Context())
	if err != nil {
		api.WriteInternal(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, report)
}

// handleVerifyOne verifies one submission by id.
func (s *Server) handleVerifyOne(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w)
		return
	}
	raw := pathTail(r.URL.Path, "/api/collecte/verify/")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		api.WriteBadRequest(w, "invalid submission id")
		return
	}

	result, err := s.chain.VerifyOne(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			api.WriteNotFound(w, "submission not found")
			return
		}
		api.WriteInternal(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, result)
}

// handleLookup assembles the history of one VIN.
func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w)
		return
	}
	v := vin.Normalize(pathTail(r.URL.Path, "/api/collecte/lookup/"))
	if !vin.Valid(v) {
		api.WriteBadRequest(w, "invalid VIN format")
		return
	}

	history, err := s.lookup.Lookup(r.Context(), v)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			api.WriteNotFound(w, "no records for this VIN")
			return
		}
		api.WriteInternal(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, history)
}

// handleHealth reports liveness including database reachability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w)
		return
	}
	if err := s.store.DB().PingContext(r.Context()); err != nil {
		api.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "degraded", "database": "unreachable",
		})
		return
	}
	resp := map[string]any{"status": "ok", "database": "ok"}
	if total, _, _, err := s.store.SubmissionStats(r.Context()); err == nil {
		resp["total_submissions"] = total
	}
	api.WriteJSON(w, http.StatusOK, resp)
}

type multipartFile struct {
	header *multipart.FileHeader
	ext    string
}
