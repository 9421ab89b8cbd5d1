package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/I2S9/sql-query-optimization-benchmarking/pkg/models"
)

// Ledger records the outcome of every attempted cell in SQLite. It
// backs idempotent resume (skip cells that already completed) and the
// final attempted-cell report, which must never silently omit a cell.
type Ledger struct {
	db     *sql.DB
	logger zerolog.Logger
}

// OpenLedger opens (or creates) the ledger database at dbPath.
func OpenLedger(dbPath string, logger zerolog.Logger) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, &StoreError{Op: "open ledger", Err: err}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, &StoreError{Op: "open ledger", Err: err}
	}
	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	l := &Ledger{
		db:     db,
		logger: logger.With().Str("component", "ledger").Logger(),
	}
	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cells (
		query_id TEXT NOT NULL,
		scale TEXT NOT NULL,
		index_config TEXT NOT NULL,
		status TEXT NOT NULL,
		samples INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (query_id, scale, index_config)
	);

	CREATE INDEX IF NOT EXISTS idx_cells_status ON cells(status);
	`
	if _, err := l.db.Exec(schema); err != nil {
		return &StoreError{Op: "init ledger schema", Err: err}
	}
	return nil
}

// Record upserts the outcome for a cell.
func (l *Ledger) Record(outcome models.CellOutcome) error {
	_, err := l.db.Exec(`
		INSERT INTO cells (query_id, scale, index_config, status, samples, error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(query_id, scale, index_config) DO UPDATE SET
			status = excluded.status,
			samples = excluded.samples,
			error = excluded.error,
			updated_at = excluded.updated_at`,
		outcome.Cell.QueryID, outcome.Cell.Scale, outcome.Cell.IndexConfig,
		string(outcome.Status), outcome.Samples, outcome.Error, time.Now().UTC())
	if err != nil {
		return &StoreError{Op: "record cell", Err: err}
	}
	return nil
}

// IsComplete reports whether the cell already has a complete set of
// samples, meaning a resume run may skip it.
func (l *Ledger) IsComplete(cell models.CellKey, measurementCount int) (bool, error) {
	var status string
	var samples int
	err := l.db.QueryRow(`
		SELECT status, samples FROM cells
		WHERE query_id = ? AND scale = ? AND index_config = ?`,
		cell.QueryID, cell.Scale, cell.IndexConfig).Scan(&status, &samples)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, &StoreError{Op: "query cell", Err: err}
	}
	return status == string(models.CellComplete) && samples >= measurementCount, nil
}

// Outcomes returns every recorded cell, ordered for a stable report.
func (l *Ledger) Outcomes() ([]models.CellOutcome, error) {
	rows, err := l.db.Query(`
		SELECT query_id, scale, index_config, status, samples, COALESCE(error, ''), updated_at
		FROM cells
		ORDER BY scale, index_config, query_id`)
	if err != nil {
		return nil, &StoreError{Op: "list cells", Err: err}
	}
	defer rows.Close()

	var outcomes []models.CellOutcome
	for rows.Next() {
		var o models.CellOutcome
		var status string
		if err := rows.Scan(&o.Cell.QueryID, &o.Cell.Scale, &o.Cell.IndexConfig,
			&status, &o.Samples, &o.Error, &o.UpdatedAt); err != nil {
			return nil, &StoreError{Op: "scan cell", Err: err}
		}
		o.Status = models.CellStatus(status)
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "list cells", Err: err}
	}
	return outcomes, nil
}

// Close releases the ledger database.
func (l *Ledger) Close() error {
	if err := l.db.Close(); err != nil {
		return &StoreError{Op: "close ledger", Err: err}
	}
	return nil
}

// Summarize counts outcomes by status for exit-code decisions.
func Summarize(outcomes []models.CellOutcome) (complete, incomplete, failed int) {
	for _, o := range outcomes {
		switch o.Status {
		case models.CellComplete:
			complete++
		case models.CellIncomplete:
			incomplete++
		case models.CellFailed:
			failed++
		}
	}
	return
}
