package db

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorKind classifies database failures so callers can decide between
// retrying, recording the sample as failed, or aborting the suite.
type ErrorKind string

const (
	KindConnection ErrorKind = "connection" // transient, retryable
	KindTimeout    ErrorKind = "timeout"    // statement exceeded its bound
	KindStatement  ErrorKind = "statement"  // query-level failure, not retried
)

// Error wraps a database failure with its classification.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Classify wraps err with the taxonomy kind it belongs to.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var dbErr *Error
	if errors.As(err, &dbErr) {
		return dbErr
	}
	return &Error{Kind: classifyKind(err), Err: err}
}

// SQLSTATE class 08 is connection_exception, 57014 is query_canceled
// (raised by statement_timeout and context cancellation server-side).
func classifyKind(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "57014":
			return KindTimeout
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08":
			return KindConnection
		default:
			return KindStatement
		}
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return KindConnection
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindConnection
	}

	if pgconn.Timeout(err) {
		return KindTimeout
	}

	return KindStatement
}

// IsDuplicateObject reports whether err is Postgres complaining that the
// object being created already exists (42P07 duplicate_table, which also
// covers indexes, and 42710 duplicate_object).
func IsDuplicateObject(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42P07" || pgErr.Code == "42710"
	}
	return false
}

// IsUndefinedObject reports whether err is Postgres complaining that the
// object being dropped does not exist.
func IsUndefinedObject(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42704" || pgErr.Code == "42P01"
	}
	return false
}
