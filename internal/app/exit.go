package app

import (
	"errors"

	"CPITracker/internal/domain"
	"CPITracker/internal/usecase"
)

var (
	// ErrConfiguration marks unreadable or invalid configuration and product lists.
	ErrConfiguration = errors.New("configuration error")
	// ErrPartialRun marks a finished collection pass where some products yielded no price.
	ErrPartialRun = errors.New("partial collection")
)

// Process exit codes.
const (
	ExitOK            = 0
	ExitStorage       = 1
	ExitConfiguration = 2
	ExitPartial       = 3
	ExitNoIndex       = 4
)

// ExitCode maps an entry-point error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrConfiguration):
		return ExitConfiguration
	case errors.Is(err, ErrPartialRun):
		return ExitPartial
	case errors.Is(err, usecase.ErrInsufficientData), errors.Is(err, usecase.ErrZeroBaseCost):
		return ExitNoIndex
	case errors.Is(err, domain.ErrStorage):
		return ExitStorage
	default:
		return ExitStorage
	}
}
