package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type tableDB interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// TableSink keeps artifacts in the archived_artifacts table next to live data.
type TableSink struct {
	db  tableDB
	now func() time.Time
}

// NewTableSink wraps a pool or transaction.
func NewTableSink(db tableDB) *TableSink {
	return &TableSink{db: db, now: time.Now}
}

func (s *TableSink) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO archived_artifacts (key, data, archived_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, archived_at = EXCLUDED.archived_at`,
		key, data, s.now().UTC())
	if err != nil {
		return fmt.Errorf("archive: table put %s: %w", key, err)
	}
	return nil
}

func (s *TableSink) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(ctx, `SELECT data FROM archived_artifacts WHERE key = $1`, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("archive: table get %s: %w", key, err)
	}
	return data, nil
}
