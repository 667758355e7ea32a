package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/autoverif/vinledger/pkg/contracts"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// IngestCSV parses and submits one uploaded CSV file. The body may be
// UTF-8 (optional BOM) or Windows-1252. Envelope failures (oversize,
// bad header) return an EnvelopeError; row failures are collected in
// the returned batch.
func (g *Ingestor) IngestCSV(ctx context.Context, filename string, body []byte, submitter contracts.Submitter, clientIP string) (*contracts.ImportBatch, error) {
	if len(body) == 0 {
		return nil, envelopeErrorf("empty file")
	}
	if len(body) > MaxCSVBytes {
		return nil, envelopeErrorf("file exceeds %d bytes", MaxCSVBytes)
	}

	text, err := decodeBody(body)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = detectDelimiter(text)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, envelopeErrorf("unreadable CSV header: %v", err)
	}
	columns := make([]string, len(header))
	hasVIN := false
	for i, h := range header {
		columns[i] = strings.ToLower(strings.TrimSpace(h))
		if columns[i] == "vin" {
			hasVIN = true
		}
	}
	if !hasVIN {
		return nil, envelopeErrorf("CSV header must include a vin column")
	}

	var rows []row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rows = append(rows, row{index: len(rows) + 1,
				fail: fmt.Sprintf("unparseable row: %v", err)})
			continue
		}
		if len(rows) >= MaxCSVRows {
			return nil, envelopeErrorf("CSV exceeds %d rows", MaxCSVRows)
		}

		data := make(map[string]any, len(columns))
		for i, col := range columns {
			if i >= len(record) {
				break
			}
			val := strings.TrimSpace(record[i])
			if val == "" {
				continue
			}
			data[col] = val
		}

		r := row{index: len(rows) + 1}
		if v, ok := data["vin"].(string); ok {
			r.vin = v
			delete(data, "vin")
		}
		r.reportType = reportTypeOf(data)
		r.data = data
		rows = append(rows, r)
	}

	batch := &contracts.ImportBatch{
		BatchRef:  newBatchRef("CSV"),
		Submitter: submitter,
		Filename:  filename,
	}
	return g.run(ctx, batch, rows, clientIP, "csv_import")
}

// decodeBody strips a UTF-8 BOM and falls back to Windows-1252 when
// the body is not valid UTF-8.
func decodeBody(body []byte) (string, error) {
	body = bytes.TrimPrefix(body, utf8BOM)
	if utf8.Valid(body) {
		return string(body), nil
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(body)
	if err != nil {
		return "", envelopeErrorf("undecodable file encoding: %v", err)
	}
	return string(decoded), nil
}

// detectDelimiter picks ',' or ';' by occurrence count in the header
// line.
func detectDelimiter(text string) rune {
	line := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		line = text[:i]
	}
	if strings.Count(line, ";") > strings.Count(line, ",") {
		return ';'
	}
	return ','
}
