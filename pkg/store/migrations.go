package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Migrate creates or upgrades the schema. Every statement is idempotent
// (create-if-not-exists / add-column-if-not-exists) so a newer build can
// run against an older database without data loss.
func (s *Store) Migrate(ctx context.Context) error {
	d := s.dialect

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS vehicles (
			id %s,
			vin VARCHAR(17) NOT NULL UNIQUE,
			make VARCHAR(100),
			model VARCHAR(100),
			year INTEGER,
			body_class VARCHAR(100),
			engine VARCHAR(100),
			fuel_type VARCHAR(100),
			drive_type VARCHAR(100),
			transmission VARCHAR(100),
			plant_country VARCHAR(100),
			decoded %s,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`, d.SerialPK(), d.JSONType()),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS submissions (
			id %s,
			vin VARCHAR(17) NOT NULL,
			report_type VARCHAR(32) NOT NULL,
			submitter_name VARCHAR(200),
			submitter_email VARCHAR(200),
			submitter_type VARCHAR(50),
			submitter_company VARCHAR(200),
			status VARCHAR(16) NOT NULL DEFAULT 'pending',
			submitted_at TEXT NOT NULL,
			client_ip VARCHAR(45),
			data_snapshot %s
		)`, d.SerialPK(), d.JSONType()),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS odometer_readings (
			id %s,
			vin VARCHAR(17) NOT NULL,
			reading_date TEXT NOT NULL,
			km BIGINT NOT NULL,
			unit VARCHAR(8) NOT NULL DEFAULT 'km',
			source VARCHAR(64),
			submission_id BIGINT,
			ecu_km BIGINT,
			fraud_flag BOOLEAN NOT NULL DEFAULT FALSE,
			fraud_reason TEXT
		)`, d.SerialPK()),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS audit_log (
			id %s,
			action VARCHAR(64) NOT NULL,
			target_table VARCHAR(64),
			target_id BIGINT,
			details %s,
			client_ip VARCHAR(45),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`, d.SerialPK(), d.JSONType()),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS import_batches (
			id %s,
			batch_ref VARCHAR(32) NOT NULL UNIQUE,
			submitter_name VARCHAR(200),
			submitter_email VARCHAR(200),
			submitter_type VARCHAR(50),
			submitter_company VARCHAR(200),
			filename VARCHAR(255),
			total_rows INTEGER NOT NULL DEFAULT 0,
			success_count INTEGER NOT NULL DEFAULT 0,
			error_count INTEGER NOT NULL DEFAULT 0,
			errors %s,
			submission_ids %s,
			status VARCHAR(16) NOT NULL DEFAULT 'processing',
			started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			completed_at TIMESTAMP
		)`, d.SerialPK(), d.JSONType(), d.JSONType()),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chain_anchors (
			id %s,
			anchor_hash VARCHAR(64) NOT NULL,
			submission_count BIGINT NOT NULL,
			first_submission_id BIGINT NOT NULL,
			last_submission_id BIGINT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`, d.SerialPK()),
	}

	stmts = append(stmts, detailTableDDL(d)...)

	stmts = append(stmts,
		`CREATE INDEX IF NOT EXISTS idx_submissions_vin ON submissions(vin)`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_type ON submissions(report_type)`,
		`CREATE INDEX IF NOT EXISTS idx_odometer_vin ON odometer_readings(vin)`,
		`CREATE INDEX IF NOT EXISTS idx_odometer_date ON odometer_readings(reading_date)`,
	)

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed (%s...): %w", firstLine(stmt), err)
		}
	}

	// Chain columns arrived after the original submissions table; rows
	// predating them keep NULL hashes and are skipped by verification.
	if err := s.ensureColumn(ctx, "submissions", "previous_hash", "VARCHAR(64)"); err != nil {
		return err
	}
	if err := s.ensureColumn(ctx, "submissions", "integrity_hash", "VARCHAR(64)"); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_submissions_hash ON submissions(integrity_hash)`); err != nil {
		return fmt.Errorf("migration failed (hash index): %w", err)
	}
	return nil
}

// ensureColumn adds a column when it does not exist yet.
func (s *Store) ensureColumn(ctx context.Context, table, column, ddl string) error {
	if s.dialect.Name() == "postgres" {
		_, err := s.db.ExecContext(ctx,
			fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s", table, column, ddl))
		if err != nil {
			return fmt.Errorf("add column %s.%s: %w", table, column, err)
		}
		return nil
	}

	// SQLite has no ADD COLUMN IF NOT EXISTS; probe table_info first.
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("inspect table %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	exists := false
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return err
		}
		if name == column {
			exists = true
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if exists {
		return nil
	}
	if _, err := s.db.ExecContext(ctx,
		fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, ddl)); err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}

func firstLine(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	if i := strings.IndexByte(stmt, '\n'); i > 0 {
		return stmt[:i]
	}
	if len(stmt) > 60 {
		return stmt[:60]
	}
	return stmt
}
