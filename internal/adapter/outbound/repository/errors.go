package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Common error types
var (
	ErrNotFound            = errors.New("record not found")
	ErrAlreadyExists       = errors.New("record already exists")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrConnectionFailed    = errors.New("database connection failed")
	ErrSchemaMissing       = errors.New("schema not provisioned")
)

// IsNotFoundError checks if an error is a "not found" error
func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, ErrNotFound)
}

// IsConstraintViolationError checks if an error is a constraint violation
func IsConstraintViolationError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 23505 unique, 23503 foreign key, 23514 check, 23502 not null
		switch pgErr.Code {
		case "23505", "23503", "23514", "23502":
			return true
		}
	}

	return errors.Is(err, ErrConstraintViolation) || errors.Is(err, ErrAlreadyExists)
}

// IsConnectionError checks if an error is a connection-related error
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "08": // Connection exception
			return true
		case "57": // Operator intervention (includes admin shutdown)
			return true
		}
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	return errors.Is(err, ErrConnectionFailed)
}

// IsTransientError reports whether retrying the same statement may succeed:
// connection loss, serialization failures, deadlocks and lock timeouts.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	if IsConnectionError(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03", "53300":
			return true
		}
	}

	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}

// IsSchemaError reports whether err means the table, a column or the vector type is missing.
func IsSchemaError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 42P01 undefined table, 42703 undefined column, 42704 undefined object
		switch pgErr.Code {
		case "42P01", "42703", "42704":
			return true
		}
	}
	return errors.Is(err, ErrSchemaMissing)
}

// WrapError wraps a database error with appropriate context
func WrapError(err error, operation string) error {
	if err == nil {
		return nil
	}

	switch {
	case IsNotFoundError(err):
		return fmt.Errorf("%s failed: %w", operation, ErrNotFound)
	case IsConstraintViolationError(err):
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%s failed: %w", operation, ErrAlreadyExists)
		}
		return fmt.Errorf("%s failed: %w: %w", operation, ErrConstraintViolation, err)
	case IsSchemaError(err):
		return fmt.Errorf("%s failed: %w: %w", operation, ErrSchemaMissing, err)
	case IsConnectionError(err):
		return fmt.Errorf("%s failed: %w: %w", operation, ErrConnectionFailed, err)
	}

	return fmt.Errorf("%s failed: %w", operation, err)
}

// RepositoryError represents a repository-specific error
type RepositoryError struct {
	Operation string
	Err       error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository operation '%s' failed: %v", e.Operation, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// NewRepositoryError creates a new repository error
func NewRepositoryError(operation string, err error) *RepositoryError {
	return &RepositoryError{
		Operation: operation,
		Err:       WrapError(err, operation),
	}
}
