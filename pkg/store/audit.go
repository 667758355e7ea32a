package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/autoverif/vinledger/pkg/contracts"
)

// InsertAuditTx appends an audit entry within an existing transaction.
func (s *Store) InsertAuditTx(ctx context.Context, tx *sql.Tx, e *contracts.AuditEntry) error {
	return insertAudit(ctx, tx, e)
}

// InsertAudit appends an audit entry outside any caller transaction.
func (s *Store) InsertAudit(ctx context.Context, e *contracts.AuditEntry) error {
	return insertAudit(ctx, s.db, e)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertAudit(ctx context.Context, ex execer, e *contracts.AuditEntry) error {
	var details any
	if len(e.Details) > 0 {
		details = string(e.Details)
	}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO audit_log (action, target_table, target_id, details, client_ip)
		VALUES ($1, $2, $3, $4, $5)`,
		e.Action, nullIfEmpty(e.TargetTable), e.TargetID, details, nullIfEmpty(e.ClientIP))
	if err != nil {
		return fmt.Errorf("insert audit entry %q: %w", e.Action, err)
	}
	return nil
}

// AuditEntriesByAction returns audit entries for one action name in
// insertion order. Used by tests and operator tooling.
func (s *Store) AuditEntriesByAction(ctx context.Context, action string) ([]*contracts.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, target_table, target_id, details, client_ip, created_at
		FROM audit_log WHERE action = $1 ORDER BY id ASC`, action)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*contracts.AuditEntry
	for rows.Next() {
		var e contracts.AuditEntry
		var table, details, ip sql.NullString
		var targetID sql.NullInt64
		if err := rows.Scan(&e.ID, &e.Action, &table, &targetID, &details, &ip, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.TargetTable = table.String
		e.ClientIP = ip.String
		if targetID.Valid {
			e.TargetID = &targetID.Int64
		}
		if details.Valid {
			e.Details = []byte(details.String)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
