package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/tKV/lib/matcher"
	"github.com/ValentinKolb/tKV/lib/topology"
)

var (
	// ErrOutdatedTopology signals that the topology changed while an operation
	// was in flight. The operation must be retried under the new topology.
	ErrOutdatedTopology = errors.New("outdated topology")

	// ErrTimeout is matched by every timeout error.
	ErrTimeout = errors.New("timeout")

	ErrUnknownCommand  = errors.New("unknown command")
	ErrUnknownFunction = errors.New("unknown function")
)

// IsRetryable reports whether an operation that failed with err can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrOutdatedTopology)
}

// TimeoutError is returned when an operation did not finish in time.
type TimeoutError struct {
	Op    string
	After time.Duration
	Err   error
}

func (e *TimeoutError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s timed out after %s: %v", e.Op, e.After, e.Err)
	}
	return fmt.Sprintf("%s timed out after %s", e.Op, e.After)
}

func (e *TimeoutError) Timeout() bool { return true }
func (e *TimeoutError) Unwrap() error { return e.Err }
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// ErrorKind classifies errors that cross the wire.
type ErrorKind uint8

const (
	KindGeneric ErrorKind = iota
	KindOutdatedTopology
	KindTimeout
)

// RemoteError is an error that happened on another node.
type RemoteError struct {
	Origin  topology.Address
	Kind    ErrorKind
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error on %s: %s", e.Origin, e.Message)
}

// Unwrap exposes the local sentinel of the error kind, so errors.Is works
// across nodes.
func (e *RemoteError) Unwrap() error {
	switch e.Kind {
	case KindOutdatedTopology:
		return ErrOutdatedTopology
	case KindTimeout:
		return ErrTimeout
	default:
		return nil
	}
}

func errInvalidMatcher(m matcher.ValueMatcher) error {
	return fmt.Errorf("invalid value matcher %d", uint8(m))
}
