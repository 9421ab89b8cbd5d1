package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/I2S9/sql-query-optimization-benchmarking/pkg/models"
)

// StoreError marks a durable-write failure. Silent loss of benchmark
// samples is unacceptable, so callers treat it as fatal to the run.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("result store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// RunLog is the append-only raw record log, one JSON-encoded RunRecord
// per line. Every append is flushed and fsynced before returning, so a
// crash mid-suite loses at most the in-flight cell.
type RunLog struct {
	path   string
	file   *os.File
	logger zerolog.Logger
}

// OpenRunLog opens (or creates) the run log at path for appending.
func OpenRunLog(path string, logger zerolog.Logger) (*RunLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}
	return &RunLog{
		path:   path,
		file:   file,
		logger: logger.With().Str("component", "run-log").Logger(),
	}, nil
}

// Append writes the records and syncs them to disk before returning.
func (l *RunLog) Append(records []models.RunRecord) error {
	if len(records) == 0 {
		return nil
	}

	buf := bufio.NewWriter(l.file)
	enc := json.NewEncoder(buf)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return &StoreError{Op: "append", Err: err}
		}
	}
	if err := buf.Flush(); err != nil {
		return &StoreError{Op: "append", Err: err}
	}
	if err := l.file.Sync(); err != nil {
		return &StoreError{Op: "sync", Err: err}
	}

	l.logger.Debug().Int("records", len(records)).Msg("Records appended")
	return nil
}

// LoadAll replays every record in the log in append order. A torn final
// line (crash mid-write) is skipped; corruption anywhere else fails.
func (l *RunLog) LoadAll() ([]models.RunRecord, error) {
	return LoadRecords(l.path)
}

// Close releases the underlying file.
func (l *RunLog) Close() error {
	if err := l.file.Close(); err != nil {
		return &StoreError{Op: "close", Err: err}
	}
	return nil
}

// LoadRecords reads a run log without keeping it open for appending.
func LoadRecords(path string) ([]models.RunRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &StoreError{Op: "load", Err: err}
	}
	defer file.Close()

	var records []models.RunRecord
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec models.RunRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			// A torn trailing line is the expected crash artifact.
			if !scanner.Scan() {
				break
			}
			return nil, &StoreError{Op: "load", Err: fmt.Errorf("corrupt record at line %d: %w", lineNum, err)}
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, &StoreError{Op: "load", Err: err}
	}
	return records, nil
}
