package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/autoverif/vinledger/pkg/contracts"
)

// fieldKind drives SQL column typing, value coercion and projection.
type fieldKind int

const (
	kindText fieldKind = iota
	kindInt
	kindDecimal
	kindBool
	kindDate
	kindJSON
)

// detailField maps one data key to one detail-table column.
type detailField struct {
	column   string
	kind     fieldKind
	required bool
	enum     []string
	def      any // applied when the key is absent
}

// detailSpec describes the 1:1 detail table for one report type.
type detailSpec struct {
	table  string
	fields []detailField
}

// detailSpecs is the closed dispatch for the 14 report types. Unknown
// data keys are ignored; keys listed here are coerced per kind.
var detailSpecs = map[contracts.ReportType]detailSpec{
	contracts.ReportAccident: {table: "accident_reports", fields: []detailField{
		{column: "date", kind: kindDate, required: true},
		{column: "severity", kind: kindText, required: true, enum: []string{"minor", "moderate", "severe", "total_loss"}},
		{column: "impact_point", kind: kindText, required: true},
		{column: "airbag_deployed", kind: kindBool},
		{column: "structural_damage", kind: kindBool},
		{column: "flood_damage", kind: kindBool},
		{column: "fire_damage", kind: kindBool},
		{column: "theft_vandalism", kind: kindBool},
		{column: "towing_required", kind: kindBool},
		{column: "drivable", kind: kindBool, def: true},
		{column: "total_loss", kind: kindBool},
		{column: "rollover", kind: kindBool},
		{column: "hail_damage", kind: kindBool},
		{column: "estimated_cost", kind: kindDecimal},
		{column: "police_report_number", kind: kindText},
		{column: "insurance_claim_number", kind: kindText},
		{column: "insurance_company", kind: kindText},
		{column: "accident_location", kind: kindText},
		{column: "description", kind: kindText},
		{column: "odometer_km", kind: kindInt},
	}},
	contracts.ReportService: {table: "service_records", fields: []detailField{
		{column: "date", kind: kindDate},
		{column: "odometer_km", kind: kindInt},
		{column: "service_type", kind: kindText},
		{column: "facility_name", kind: kindText},
		{column: "description", kind: kindText},
		{column: "cost", kind: kindDecimal},
		{column: "parts_type", kind: kindText, enum: []string{"oem", "aftermarket", "na"}},
		{column: "ev_battery_soh", kind: kindDecimal},
		{column: "ev_battery_kwh", kind: kindDecimal},
		{column: "ev_service_type", kind: kindText},
	}},
	contracts.ReportOwnership: {table: "ownership_records", fields: []detailField{
		{column: "date", kind: kindDate},
		{column: "previous_owner_type", kind: kindText},
		{column: "new_owner_type", kind: kindText},
		{column: "province", kind: kindText, def: "QC"},
		{column: "sale_price", kind: kindDecimal},
		{column: "odometer_km", kind: kindInt},
		{column: "title_brand", kind: kindText},
		{column: "usage_type", kind: kindText},
	}},
	contracts.ReportInspection: {table: "inspection_records", fields: []detailField{
		{column: "date", kind: kindDate},
		{column: "result", kind: kindText, enum: []string{"pass", "fail"}},
		{column: "odometer_km", kind: kindInt},
		{column: "inspection_type", kind: kindText, def: "saaq_mecanique"},
		{column: "inspector_name", kind: kindText},
		{column: "facility_name", kind: kindText},
		{column: "facility_permit", kind: kindText},
		{column: "notes", kind: kindText},
	}},
	contracts.ReportRecallCompletion: {table: "recall_completions", fields: []detailField{
		{column: "recall_number", kind: kindText},
		{column: "date", kind: kindDate},
		{column: "facility_name", kind: kindText},
		{column: "recall_description", kind: kindText},
		{column: "component", kind: kindText},
		{column: "remedy_type", kind: kindText},
		{column: "odometer_km", kind: kindInt},
	}},
	contracts.ReportTitleBrand: {table: "title_brand_records", fields: []detailField{
		{column: "date", kind: kindDate},
		{column: "brand_type", kind: kindText},
		{column: "province", kind: kindText},
		{column: "previous_brand", kind: kindText},
		{column: "insurance_company", kind: kindText},
		{column: "total_loss_amount", kind: kindDecimal},
		{column: "source", kind: kindText},
		{column: "notes", kind: kindText},
	}},
	contracts.ReportLien: {table: "lien_records", fields: []detailField{
		{column: "lien_holder", kind: kindText},
		{column: "lien_type", kind: kindText},
		{column: "lien_amount", kind: kindDecimal},
		{column: "registration_date", kind: kindDate},
		{column: "discharge_date", kind: kindDate},
		{column: "lien_status", kind: kindText, def: "active"},
		{column: "province", kind: kindText},
		{column: "registration_number", kind: kindText},
		{column: "notes", kind: kindText},
	}},
	contracts.ReportTheft: {table: "theft_records", fields: []detailField{
		{column: "date_stolen", kind: kindDate},
		{column: "police_report_number", kind: kindText},
		{column: "police_jurisdiction", kind: kindText},
		{column: "date_recovered", kind: kindDate},
		{column: "recovery_location", kind: kindText},
		{column: "condition_at_recovery", kind: kindText},
		{column: "parts_missing", kind: kindText},
		{column: "insurance_claim", kind: kindText},
		{column: "notes", kind: kindText},
	}},
	contracts.ReportOBDDiagnostic: {table: "obd_diagnostics", fields: []detailField{
		{column: "date", kind: kindDate},
		{column: "odometer_km", kind: kindInt},
		{column: "scan_tool", kind: kindText},
		{column: "mil_status", kind: kindText},
		{column: "dtc_active", kind: kindText},
		{column: "dtc_pending", kind: kindText},
		{column: "dtc_permanent", kind: kindText},
		{column: "readiness_monitors", kind: kindJSON},
		{column: "ecu_odometer_km", kind: kindInt},
		{column: "freeze_frame", kind: kindJSON},
		{column: "notes", kind: kindText},
	}},
	contracts.ReportAuction: {table: "auction_records", fields: []detailField{
		{column: "date", kind: kindDate},
		{column: "auction_house", kind: kindText},
		{column: "auction_location", kind: kindText},
		{column: "lot_number", kind: kindText},
		{column: "sale_type", kind: kindText},
		{column: "seller_type", kind: kindText},
		{column: "naaa_grade", kind: kindDecimal},
		{column: "exterior_grade", kind: kindDecimal},
		{column: "interior_grade", kind: kindDecimal},
		{column: "mechanical_grade", kind: kindDecimal},
		{column: "tire_tread_fl", kind: kindDecimal},
		{column: "tire_tread_fr", kind: kindDecimal},
		{column: "tire_tread_rl", kind: kindDecimal},
		{column: "tire_tread_rr", kind: kindDecimal},
		{column: "odor", kind: kindText},
		{column: "keys_count", kind: kindInt},
		{column: "run_drive", kind: kindBool},
		{column: "sale_price", kind: kindDecimal},
		{column: "damage_announcements", kind: kindText},
		{column: "notes", kind: kindText},
	}},
	contracts.ReportFleetHistory: {table: "fleet_history_records", fields: []detailField{
		{column: "usage_type", kind: kindText},
		{column: "company_name", kind: kindText},
		{column: "date_entered", kind: kindDate},
		{column: "date_left", kind: kindDate},
		{column: "mileage_during", kind: kindInt},
		{column: "estimated_drivers", kind: kindInt},
		{column: "province", kind: kindText},
		{column: "notes", kind: kindText},
	}},
	contracts.ReportImportExport: {table: "import_export_records", fields: []detailField{
		{column: "direction", kind: kindText, enum: []string{"import", "export"}},
		{column: "country_origin", kind: kindText},
		{column: "country_destination", kind: kindText},
		{column: "date", kind: kindDate},
		{column: "riv_number", kind: kindText},
		{column: "customs_declaration", kind: kindText},
		{column: "odometer_at_import", kind: kindInt},
		{column: "odometer_unit", kind: kindText, def: "km"},
		{column: "tc_compliance", kind: kindBool},
		{column: "recalls_cleared", kind: kindBool},
		{column: "notes", kind: kindText},
	}},
	contracts.ReportEmissions: {table: "emissions_tests", fields: []detailField{
		{column: "date", kind: kindDate},
		{column: "test_type", kind: kindText},
		{column: "result", kind: kindText},
		{column: "station_name", kind: kindText},
		{column: "station_number", kind: kindText},
		{column: "inspector_id", kind: kindText},
		{column: "hc_ppm", kind: kindDecimal},
		{column: "co_percent", kind: kindDecimal},
		{column: "nox_ppm", kind: kindDecimal},
		{column: "co2_percent", kind: kindDecimal},
		{column: "o2_percent", kind: kindDecimal},
		{column: "certificate_number", kind: kindText},
		{column: "certificate_expiry", kind: kindDate},
		{column: "exemption_reason", kind: kindText},
		{column: "notes", kind: kindText},
	}},
	contracts.ReportModification: {table: "modification_records", fields: []detailField{
		{column: "date", kind: kindDate},
		{column: "mod_type", kind: kindText},
		{column: "description", kind: kindText},
		{column: "part_brand", kind: kindText},
		{column: "part_number", kind: kindText},
		{column: "installed_by", kind: kindText},
		{column: "homologated", kind: kindBool},
		{column: "saaq_approved", kind: kindBool},
		{column: "insurance_notified", kind: kindBool},
		{column: "notes", kind: kindText},
	}},
}

// DetailTable returns the detail table name for a report type.
func DetailTable(rt contracts.ReportType) string {
	return detailSpecs[rt].table
}

// detailTableDDL generates the idempotent CREATE TABLE statements for
// all detail tables from their field specs.
func detailTableDDL(d Dialect) []string {
	stmts := make([]string, 0, len(detailSpecs))
	for _, rt := range contracts.ReportTypes {
		spec := detailSpecs[rt]
		var b strings.Builder
		fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", spec.table)
		fmt.Fprintf(&b, "\tid %s,\n", d.SerialPK())
		b.WriteString("\tsubmission_id BIGINT NOT NULL UNIQUE")
		for _, f := range spec.fields {
			fmt.Fprintf(&b, ",\n\t%s %s", f.column, sqlType(f.kind, d))
		}
		b.WriteString("\n)")
		stmts = append(stmts, b.String())
	}
	return stmts
}

func sqlType(k fieldKind, d Dialect) string {
	switch k {
	case kindInt:
		return "BIGINT"
	case kindDecimal:
		return "NUMERIC(12,2)"
	case kindBool:
		return "BOOLEAN"
	case kindJSON:
		return d.JSONType()
	default: // text and dates both travel as TEXT
		return "TEXT"
	}
}

// ValidateDetail checks required fields and closed enums for one report
// type. Unknown keys in data are deliberately not an error.
func ValidateDetail(rt contracts.ReportType, data map[string]any) error {
	spec, ok := detailSpecs[rt]
	if !ok {
		return fmt.Errorf("unknown report type %q", rt)
	}
	for _, f := range spec.fields {
		v, present := data[f.column]
		if f.required && (!present || isEmpty(v)) {
			return fmt.Errorf("%s: missing required field %q", rt, f.column)
		}
		if present && len(f.enum) > 0 {
			s, _ := CoerceString(v)
			if s != "" && !containsString(f.enum, strings.ToLower(s)) {
				return fmt.Errorf("%s: field %q must be one of %s", rt, f.column, strings.Join(f.enum, ", "))
			}
		}
	}
	return nil
}

// InsertDetail writes the 1:1 detail row for a submission within tx.
// Each field is coerced per its kind; absent fields take their default
// or NULL.
func (s *Store) InsertDetail(ctx context.Context, tx *sql.Tx, submissionID int64, rt contracts.ReportType, data map[string]any) error {
	spec, ok := detailSpecs[rt]
	if !ok {
		return fmt.Errorf("unknown report type %q", rt)
	}

	columns := []string{"submission_id"}
	args := []any{submissionID}
	for _, f := range spec.fields {
		v, present := data[f.column]
		if !present || isEmpty(v) {
			if f.def == nil {
				continue
			}
			v = f.def
		}
		coerced, err := coerceKind(v, f.kind)
		if err != nil {
			return fmt.Errorf("%s: field %q: %w", rt, f.column, err)
		}
		if coerced == nil {
			continue
		}
		columns = append(columns, f.column)
		args = append(args, coerced)
	}

	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		spec.table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert %s detail: %w", rt, err)
	}
	return nil
}

// SelectDetail loads the detail row for one submission, projected as a
// map. Monetary decimals surface as float64, dates as strings; NULL
// columns are omitted.
func (s *Store) SelectDetail(ctx context.Context, rt contracts.ReportType, submissionID int64) (map[string]any, error) {
	spec, ok := detailSpecs[rt]
	if !ok {
		return nil, fmt.Errorf("unknown report type %q", rt)
	}

	columns := make([]string, len(spec.fields))
	for i, f := range spec.fields {
		columns[i] = f.column
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE submission_id = $1",
		strings.Join(columns, ", "), spec.table)

	dest := make([]any, len(spec.fields))
	for i, f := range spec.fields {
		switch f.kind {
		case kindInt:
			dest[i] = new(sql.NullInt64)
		case kindDecimal:
			dest[i] = new(sql.NullFloat64)
		case kindBool:
			dest[i] = new(sql.NullBool)
		default:
			dest[i] = new(sql.NullString)
		}
	}

	if err := s.db.QueryRowContext(ctx, query, submissionID).Scan(dest...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("select %s detail: %w", rt, err)
	}

	out := make(map[string]any)
	for i, f := range spec.fields {
		switch v := dest[i].(type) {
		case *sql.NullInt64:
			if v.Valid {
				out[f.column] = v.Int64
			}
		case *sql.NullFloat64:
			if v.Valid {
				out[f.column] = v.Float64
			}
		case *sql.NullBool:
			if v.Valid {
				out[f.column] = v.Bool
			}
		case *sql.NullString:
			if !v.Valid {
				continue
			}
			if f.kind == kindJSON {
				out[f.column] = json.RawMessage(v.String)
			} else {
				out[f.column] = v.String
			}
		}
	}
	return out, nil
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func containsString(set []string, s string) bool {
	for _, m := range set {
		if m == s {
			return true
		}
	}
	return false
}

func coerceKind(v any, k fieldKind) (any, error) {
	switch k {
	case kindInt:
		n, ok := CoerceInt(v)
		if !ok {
			return nil, fmt.Errorf("not an integer: %v", v)
		}
		return n, nil
	case kindDecimal:
		f, ok := CoerceFloat(v)
		if !ok {
			return nil, fmt.Errorf("not a number: %v", v)
		}
		return f, nil
	case kindBool:
		return CoerceBool(v), nil
	case kindJSON:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(raw), nil
	default:
		s, ok := CoerceString(v)
		if !ok || s == "" {
			return nil, nil
		}
		return s, nil
	}
}

// CoerceString renders scalar values as trimmed strings.
func CoerceString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return strings.TrimSpace(t), true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

// CoerceInt parses integer-ish values, truncating decimals.
func CoerceInt(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		return int64(t), true
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		if f, err := t.Float64(); err == nil {
			return int64(f), true
		}
		return 0, false
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// CoerceFloat parses decimal values.
func CoerceFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// CoerceBool accepts true|1|oui|yes (case-insensitive) as true.
func CoerceBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "oui", "yes":
			return true
		}
		return false
	case float64:
		return t == 1
	case json.Number:
		return t.String() == "1"
	case int:
		return t == 1
	default:
		return false
	}
}
