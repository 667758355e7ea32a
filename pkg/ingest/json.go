package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/autoverif/vinledger/pkg/contracts"
)

const batchSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["submitter", "records"],
  "properties": {
    "submitter": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name":    {"type": "string", "minLength": 1},
        "email":   {"type": "string"},
        "type":    {"type": "string"},
        "company": {"type": "string"}
      }
    },
    "records": {
      "type": "array",
      "minItems": 1,
      "maxItems": 100,
      "items": {
        "type": "object",
        "required": ["vin", "report_type"],
        "properties": {
          "vin":         {"type": "string", "minLength": 1},
          "report_type": {"type": "string", "minLength": 1},
          "data":        {"type": "object"}
        }
      }
    }
  }
}`

var batchSchema = jsonschema.MustCompileString("batch.json", batchSchemaJSON)

// batchEnvelope is the JSON batch request shape.
type batchEnvelope struct {
	Submitter contracts.Submitter `json:"submitter"`
	Records   []struct {
		VIN        string         `json:"vin"`
		ReportType string         `json:"report_type"`
		Data       map[string]any `json:"data"`
	} `json:"records"`
}

// IngestJSON validates and submits one JSON batch. Envelope failures
// (malformed JSON, schema violation, too many records) return an
// EnvelopeError; per-record failures are collected in the batch.
func (g *Ingestor) IngestJSON(ctx context.Context, body []byte, clientIP string) (*contracts.ImportBatch, error) {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, envelopeErrorf("malformed JSON body: %v", err)
	}
	if err := batchSchema.Validate(raw); err != nil {
		return nil, envelopeErrorf("invalid batch: %v", err)
	}

	var envelope batchEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, envelopeErrorf("malformed JSON body: %v", err)
	}
	if len(envelope.Records) > MaxJSONRecords {
		return nil, envelopeErrorf("batch exceeds %d records", MaxJSONRecords)
	}

	rows := make([]row, 0, len(envelope.Records))
	for i, rec := range envelope.Records {
		data := rec.Data
		if data == nil {
			data = map[string]any{}
		}
		rows = append(rows, row{
			index:      i + 1,
			vin:        rec.VIN,
			reportType: contracts.ReportType(strings.ToLower(strings.TrimSpace(rec.ReportType))),
			data:       data,
		})
	}

	batch := &contracts.ImportBatch{
		BatchRef:  newBatchRef("API"),
		Submitter: envelope.Submitter,
	}
	return g.run(ctx, batch, rows, clientIP, "batch_import")
}
