package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassify_Timeout(t *testing.T) {
	e := Classify(context.DeadlineExceeded)
	if e.Kind != KindTimeout {
		t.Errorf("expected timeout kind, got %s", e.Kind)
	}

	e = Classify(&pgconn.PgError{Code: "57014", Message: "canceling statement due to statement timeout"})
	if e.Kind != KindTimeout {
		t.Errorf("expected timeout kind for 57014, got %s", e.Kind)
	}
}

func TestClassify_Connection(t *testing.T) {
	e := Classify(&pgconn.PgError{Code: "08006", Message: "connection failure"})
	if e.Kind != KindConnection {
		t.Errorf("expected connection kind for class 08, got %s", e.Kind)
	}
}

func TestClassify_Statement(t *testing.T) {
	e := Classify(&pgconn.PgError{Code: "42703", Message: "column does not exist"})
	if e.Kind != KindStatement {
		t.Errorf("expected statement kind for 42703, got %s", e.Kind)
	}

	e = Classify(errors.New("something else"))
	if e.Kind != KindStatement {
		t.Errorf("expected statement kind for unknown error, got %s", e.Kind)
	}
}

func TestClassify_Wrapped(t *testing.T) {
	inner := &pgconn.PgError{Code: "57014"}
	wrapped := fmt.Errorf("running query: %w", inner)
	if e := Classify(wrapped); e.Kind != KindTimeout {
		t.Errorf("expected timeout kind through wrapping, got %s", e.Kind)
	}

	// Already-classified errors keep their kind
	pre := &Error{Kind: KindConnection, Err: errors.New("dial failed")}
	if e := Classify(fmt.Errorf("outer: %w", pre)); e.Kind != KindConnection {
		t.Errorf("expected classification preserved, got %s", e.Kind)
	}
}

func TestClassify_Nil(t *testing.T) {
	if Classify(nil) != nil {
		t.Error("expected nil for nil error")
	}
}

func TestIsDuplicateObject(t *testing.T) {
	if !IsDuplicateObject(&pgconn.PgError{Code: "42P07"}) {
		t.Error("expected 42P07 to be duplicate object")
	}
	if !IsDuplicateObject(&pgconn.PgError{Code: "42710"}) {
		t.Error("expected 42710 to be duplicate object")
	}
	if IsDuplicateObject(&pgconn.PgError{Code: "42703"}) {
		t.Error("did not expect 42703 to be duplicate object")
	}
	if IsDuplicateObject(errors.New("not a pg error")) {
		t.Error("did not expect plain error to be duplicate object")
	}
}

func TestIsUndefinedObject(t *testing.T) {
	if !IsUndefinedObject(&pgconn.PgError{Code: "42704"}) {
		t.Error("expected 42704 to be undefined object")
	}
	if IsUndefinedObject(&pgconn.PgError{Code: "42P07"}) {
		t.Error("did not expect 42P07 to be undefined object")
	}
}
