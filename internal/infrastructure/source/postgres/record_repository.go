package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
)

const DefaultTable = "complaint_records"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// RecordRepository stores normalized records as JSONB rows ordered by id.
type RecordRepository struct {
	db    *sql.DB
	table string
}

func NewRecordRepository(db *sql.DB, table string) (*RecordRepository, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, domain.WrapError(domain.ErrConfig, "postgres source", fmt.Errorf("invalid table name %q", table))
	}
	return &RecordRepository{db: db, table: table}, nil
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *RecordRepository) Name() string {
	return "postgres:" + r.table
}

func (r *RecordRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WrapError(domain.ErrIO, "ensure record schema", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize DDL between concurrent importers.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101601)); err != nil {
		return domain.WrapError(domain.ErrIO, "acquire schema lock", err)
	}
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	record JSONB NOT NULL,
	imported_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, r.table)
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return domain.WrapError(domain.ErrIO, "execute record ddl", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.WrapError(domain.ErrIO, "commit record schema", err)
	}
	return nil
}

// Records implements ports.RecordSource.
func (r *RecordRepository) Records(ctx context.Context) ([]domain.Record, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`SELECT record FROM %s ORDER BY id`, r.table))
	if err != nil {
		return nil, domain.WrapError(domain.ErrIO, "query records", err)
	}
	defer rows.Close()

	var records []domain.Record
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, domain.WrapError(domain.ErrIO, "scan record", err)
		}
		var record domain.Record
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, domain.WrapError(domain.ErrIO, "decode record", fmt.Errorf("row %d: %w", len(records), err))
		}
		if record == nil {
			return nil, domain.WrapError(domain.ErrIO, "decode record", fmt.Errorf("row %d is not an object", len(records)))
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrIO, "iterate records", err)
	}
	return records, nil
}

// Replace swaps the table contents for records in a single transaction.
func (r *RecordRepository) Replace(ctx context.Context, records []domain.Record) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WrapError(domain.ErrIO, "begin import", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`TRUNCATE %s RESTART IDENTITY`, r.table)); err != nil {
		return domain.WrapError(domain.ErrIO, "truncate records", err)
	}
	insert := fmt.Sprintf(`INSERT INTO %s (record) VALUES ($1)`, r.table)
	for i, record := range records {
		raw, err := json.Marshal(record)
		if err != nil {
			return domain.WrapError(domain.ErrIO, "encode record", fmt.Errorf("record %d: %w", i, err))
		}
		if _, err := tx.ExecContext(ctx, insert, raw); err != nil {
			return domain.WrapError(domain.ErrIO, "insert record", fmt.Errorf("record %d: %w", i, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.WrapError(domain.ErrIO, "commit import", err)
	}
	return nil
}
