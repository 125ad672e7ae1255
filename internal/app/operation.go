package app

import (
	"strings"
	"time"
)

// Operation statuses.
const (
	OperationSuccess = "success"
	OperationError   = "error"
)

// Operation tracks one CLI invocation. Its ID tags every log line the
// invocation writes. Mutating operations mirror the session catalog to the
// vault when they finish successfully.
type Operation struct {
	ID         string
	Name       string
	Parameters string
	Mutating   bool
	Status     string
	StartedAt  time.Time
}

// NewOperation creates an operation that starts out successful.
func NewOperation(name string, mutating bool, now time.Time, parameters ...string) *Operation {
	return &Operation{
		ID:         now.UTC().Format("20060102T150405.000Z"),
		Name:       name,
		Parameters: strings.Join(parameters, " "),
		Mutating:   mutating,
		Status:     OperationSuccess,
		StartedAt:  now,
	}
}

// Fail records that the operation returned an error.
func (op *Operation) Fail() {
	op.Status = OperationError
}

// Succeeded reports whether the operation has not failed.
func (op *Operation) Succeeded() bool {
	return op.Status == OperationSuccess
}
