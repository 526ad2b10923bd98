package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dunamismax/styleflow/internal/domain"
	_ "github.com/lib/pq"
)

const recordSchemaSQL = `
CREATE TABLE IF NOT EXISTS transform_records (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	style_id TEXT NOT NULL,
	status TEXT NOT NULL,
	source_bytes BIGINT NOT NULL DEFAULT 0,
	result_bytes BIGINT NOT NULL DEFAULT 0,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS transform_records_session_created_idx
	ON transform_records (session_id, created_at DESC);
`

type PostgresRecordStore struct {
	db *sql.DB
}

func NewPostgresRecordStore(ctx context.Context, dsn string) (*PostgresRecordStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresRecordStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresRecordStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, recordSchemaSQL); err != nil {
		return fmt.Errorf("ensure transform_records schema: %w", err)
	}
	return nil
}

func (s *PostgresRecordStore) Close() error {
	return s.db.Close()
}

func (s *PostgresRecordStore) CreateTransformRecord(ctx context.Context, record domain.TransformRecord) error {
	if record.SessionID == "" {
		return ErrMissingSessionID
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO transform_records (id, session_id, style_id, status, source_bytes, result_bytes, duration_ms, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		record.ID,
		record.SessionID,
		record.StyleID,
		record.Status,
		record.SourceBytes,
		record.ResultBytes,
		record.DurationMS,
		record.Error,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transform record: %w", err)
	}
	return nil
}

func (s *PostgresRecordStore) ListTransformRecords(ctx context.Context, sessionID string, limit int) ([]domain.TransformRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, session_id, style_id, status, source_bytes, result_bytes, duration_ms, error, created_at
		 FROM transform_records
		 WHERE session_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		sessionID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query transform records: %w", err)
	}
	defer rows.Close()

	var records []domain.TransformRecord
	for rows.Next() {
		var record domain.TransformRecord
		if err := rows.Scan(
			&record.ID,
			&record.SessionID,
			&record.StyleID,
			&record.Status,
			&record.SourceBytes,
			&record.ResultBytes,
			&record.DurationMS,
			&record.Error,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan transform record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transform records: %w", err)
	}
	return records, nil
}

func (s *PostgresRecordStore) DeleteTransformRecords(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM transform_records WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete transform records: %w", err)
	}
	return nil
}
