package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedDialect is returned for dialect names outside the known profile set
	ErrUnsupportedDialect = errors.New("unsupported dialect")

	// ErrCyclicSchema is matched by every CyclicSchemaError
	ErrCyclicSchema = errors.New("cyclic schema")

	// ErrInvalidConfig is returned when connection or schema configuration is malformed
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ConnectionError wraps a transport, authentication or availability failure
type ConnectionError struct {
	Dialect  string
	Host     string
	Database string
	Err      error
}

func (e *ConnectionError) Error() string {
	target := e.Database
	if e.Host != "" {
		target = e.Host + "/" + e.Database
	}
	return fmt.Sprintf("connect to %s (%s): %v", target, e.Dialect, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// CyclicSchemaError lists the groups of tables that depend on each other
type CyclicSchemaError struct {
	Cycles [][]string
}

func (e *CyclicSchemaError) Error() string {
	groups := make([]string, 0, len(e.Cycles))
	for _, cycle := range e.Cycles {
		groups = append(groups, "["+strings.Join(cycle, ", ")+"]")
	}
	return "cyclic schema: " + strings.Join(groups, " ")
}

func (e *CyclicSchemaError) Is(target error) bool {
	return target == ErrCyclicSchema
}

// BackendError is a database failure with the statement context it happened in
type BackendError struct {
	Dialect    string
	Phase      Phase
	Table      string
	Index      int
	Statement  string
	Code       string
	VendorCode int
	Ignorable  bool
	Err        error
}

func (e *BackendError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Dialect, e.Phase)
	if e.Table != "" {
		fmt.Fprintf(&b, " table %s", e.Table)
	}
	if e.Index >= 0 {
		fmt.Fprintf(&b, " statement %d", e.Index)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " [%s]", e.Code)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// SQLState returns the backend code of the failure
func (e *BackendError) SQLState() string {
	return e.Code
}

// BatchError reports the first failing statement of a batch together with
// the update counts of every statement attempted before and including it
type BatchError struct {
	UpdateCounts []int64
	Index        int
	Err          error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch statement %d failed after %d succeeded: %v", e.Index, e.Index, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}
