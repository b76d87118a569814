// pkg/core/errors.go
package core

import "errors"

// Error kinds shared by the engine, storage and transport layers.
// Callers wrap them with fmt.Errorf("...: %w", ErrX) and test with errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidInput        = errors.New("invalid input")
	ErrAlreadyCollected    = errors.New("already collected")
	ErrOutOfRange          = errors.New("out of range")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Kind names returned by KindOf.
const (
	KindNotFound            = "NotFound"
	KindForbidden           = "Forbidden"
	KindInvalidAmount       = "InvalidAmount"
	KindInvalidInput        = "InvalidInput"
	KindAlreadyCollected    = "AlreadyCollected"
	KindOutOfRange          = "OutOfRange"
	KindUpstreamUnavailable = "UpstreamUnavailable"
	KindInternal            = "Internal"
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrNotFound, KindNotFound},
	{ErrForbidden, KindForbidden},
	{ErrInvalidAmount, KindInvalidAmount},
	{ErrInvalidInput, KindInvalidInput},
	{ErrAlreadyCollected, KindAlreadyCollected},
	{ErrOutOfRange, KindOutOfRange},
	{ErrUpstreamUnavailable, KindUpstreamUnavailable},
}

// KindOf returns the kind name of the first sentinel found in err's chain,
// or KindInternal.
func KindOf(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// IsRetryable reports whether err is a transient collaborator failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable)
}
