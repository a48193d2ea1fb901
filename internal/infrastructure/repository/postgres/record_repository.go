package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/rpps-atas-assistant/internal/core/domain"
)

// RecordRepository persists document records keyed by their index position.
type RecordRepository struct {
	db *sql.DB
}

func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *RecordRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker/indexer startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101601)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS atas_records (
	position INTEGER PRIMARY KEY,
	id TEXT NOT NULL,
	path TEXT NOT NULL,
	text TEXT NOT NULL DEFAULT '',
	entities JSONB NOT NULL DEFAULT '[]'::jsonb,
	manager TEXT NOT NULL DEFAULT '',
	year INTEGER NOT NULL DEFAULT 0,
	month INTEGER NOT NULL DEFAULT 0,
	class TEXT NOT NULL DEFAULT '',
	flags JSONB NOT NULL DEFAULT '{}'::jsonb
);

CREATE INDEX IF NOT EXISTS idx_atas_records_year ON atas_records(year DESC, month DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// LoadAll returns every record ordered by position. Gaps in positions are a
// configuration error since they would misalign the vector index.
func (r *RecordRepository) LoadAll(ctx context.Context) ([]domain.DocumentRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT position, id, path, text, entities, manager, year, month, class, flags
FROM atas_records
ORDER BY position
`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []domain.DocumentRecord
	for rows.Next() {
		var (
			position     int
			rec          domain.DocumentRecord
			class        string
			entitiesJSON []byte
			flagsJSON    []byte
		)
		if err := rows.Scan(
			&position, &rec.ID, &rec.Path, &rec.Text, &entitiesJSON, &rec.Manager,
			&rec.Year, &rec.Month, &class, &flagsJSON,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if position != len(out) {
			return nil, domain.WrapError(domain.ErrConfiguration, "load records",
				fmt.Errorf("expected position %d, found %d", len(out), position))
		}
		if err := json.Unmarshal(entitiesJSON, &rec.Entities); err != nil {
			return nil, fmt.Errorf("unmarshal entities: %w", err)
		}
		if err := json.Unmarshal(flagsJSON, &rec.Flags); err != nil {
			return nil, fmt.Errorf("unmarshal flags: %w", err)
		}
		rec.Class = domain.DocumentClass(class)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// ReplaceAll swaps the full record set in one transaction.
func (r *RecordRepository) ReplaceAll(ctx context.Context, records []domain.DocumentRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM atas_records`); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	for pos, rec := range records {
		entitiesJSON, err := json.Marshal(nonNilStrings(rec.Entities))
		if err != nil {
			return fmt.Errorf("marshal entities: %w", err)
		}
		flagsJSON, err := json.Marshal(nonNilFlags(rec.Flags))
		if err != nil {
			return fmt.Errorf("marshal flags: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO atas_records (position, id, path, text, entities, manager, year, month, class, flags)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
			pos, rec.Key(), rec.Path, rec.Text, entitiesJSON, rec.Manager,
			rec.Year, rec.Month, string(rec.Class), flagsJSON,
		)
		if err != nil {
			return fmt.Errorf("insert record %d: %w", pos, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace tx: %w", err)
	}
	return nil
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func nonNilFlags(v map[string]bool) map[string]bool {
	if v == nil {
		return map[string]bool{}
	}
	return v
}
