package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// Session wraps one dedicated connection for the duration of a cell.
type Session struct {
	conn   *pgx.Conn
	logger zerolog.Logger
}

// NewSession wraps an acquired connection.
func NewSession(conn *pgx.Conn, logger zerolog.Logger) *Session {
	return &Session{conn: conn, logger: logger}
}

// ExecuteAll runs the statement and consumes the entire result set,
// returning the row count. Full materialization keeps timing fair
// across plan shapes with different early-termination behavior.
func (s *Session) ExecuteAll(ctx context.Context, sql string) (int64, error) {
	rows, err := s.conn.Query(ctx, sql)
	if err != nil {
		return 0, Classify(err)
	}
	defer rows.Close()

	var count int64
	for rows.Next() {
		count++
	}
	if err := rows.Err(); err != nil {
		return count, Classify(err)
	}
	return count, nil
}

// Explain captures the engine's execution plan for the statement as a
// JSON document. ANALYZE runs the query for real so actual row counts
// and timings are present in the capture.
func (s *Session) Explain(ctx context.Context, sql string) ([]byte, error) {
	var doc []byte
	err := s.conn.QueryRow(ctx, "EXPLAIN (ANALYZE, FORMAT JSON) "+sql).Scan(&doc)
	if err != nil {
		return nil, Classify(err)
	}
	return doc, nil
}

// Exec runs a statement discarding any result, used for DDL.
func (s *Session) Exec(ctx context.Context, sql string) error {
	if _, err := s.conn.Exec(ctx, sql); err != nil {
		return Classify(err)
	}
	return nil
}

// IndexNames lists the indexes currently present in the public schema.
func (s *Session) IndexNames(ctx context.Context) ([]string, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT indexname FROM pg_indexes WHERE schemaname = 'public' ORDER BY indexname`)
	if err != nil {
		return nil, Classify(err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, Classify(err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, Classify(err)
	}
	return names, nil
}

// Close releases the underlying connection.
func (s *Session) Close(ctx context.Context) {
	if s.conn == nil || s.conn.IsClosed() {
		return
	}
	if err := s.conn.Close(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to close session")
	}
}
