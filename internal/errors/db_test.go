package errors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapDBError_NilError(t *testing.T) {
	err := MapDBError(nil)
	if err != nil {
		t.Errorf("MapDBError(nil) = %v, want nil", err)
	}
}

func TestMapDBError_ContextErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode ErrorCode
	}{
		{
			name:     "deadline exceeded",
			err:      context.DeadlineExceeded,
			wantCode: ErrCodeTimeout,
		},
		{
			name:     "canceled",
			err:      context.Canceled,
			wantCode: ErrCodeCanceled,
		},
		{
			name:     "wrapped deadline",
			err:      fmt.Errorf("query: %w", context.DeadlineExceeded),
			wantCode: ErrCodeTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.err)
			if !IsAppError(err, tt.wantCode) {
				t.Errorf("MapDBError() code = %v, want %v", GetCode(err), tt.wantCode)
			}
		})
	}
}

func TestMapDBError_NoRows(t *testing.T) {
	for _, in := range []error{pgx.ErrNoRows, sql.ErrNoRows} {
		err := MapDBError(in)
		if !IsNotFound(err) {
			t.Errorf("MapDBError(%v) should be NotFound, got %v", in, GetCode(err))
		}
	}
}

func TestMapDBError_PgErrors(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		wantCode ErrorCode
	}{
		{name: "undefined table", code: pgerrcode.UndefinedTable, wantCode: ErrCodeConfiguration},
		{name: "connection failure", code: pgerrcode.ConnectionFailure, wantCode: ErrCodeInternal},
		{name: "too many connections", code: pgerrcode.TooManyConnections, wantCode: ErrCodeInternal},
		{name: "unknown code", code: "99999", wantCode: ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pgErr := &pgconn.PgError{Code: tt.code, Message: "pg failure"}
			err := MapDBError(pgErr)
			if !IsAppError(err, tt.wantCode) {
				t.Errorf("MapDBError() code = %v, want %v", GetCode(err), tt.wantCode)
			}
			var got *pgconn.PgError
			if !errors.As(err, &got) {
				t.Error("MapDBError() should keep the pg error as cause")
			}
		})
	}
}

func TestMapDBError_StandardError(t *testing.T) {
	stdErr := errors.New("standard error")
	err := MapDBError(stdErr)
	if !errors.Is(err, stdErr) {
		t.Errorf("MapDBError() should return original error for non-db errors, got %v", err)
	}
}
