package etl

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ConfigurationError is fatal to the whole job and is reported before any
// table is attempted.
type ConfigurationError struct {
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %v", e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// TransientNetworkError covers failures expected to resolve on retry:
// timeouts, refused connections, 429 and 5xx responses.
type TransientNetworkError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransientNetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: transient failure (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// FatalRequestError marks a request the remote system rejected in a way
// retrying cannot fix.
type FatalRequestError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *FatalRequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: request rejected (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: request rejected: %v", e.Op, e.Err)
}

func (e *FatalRequestError) Unwrap() error { return e.Err }

// DecodeSkip drops a single record. It is counted, never fatal.
type DecodeSkip struct {
	Row    int
	Field  string
	Reason string
}

func (e *DecodeSkip) Error() string {
	return fmt.Sprintf("row %d skipped: field %s: %s", e.Row, e.Field, e.Reason)
}

// PersistenceError reports a batch the sink rejected after all attempts.
type PersistenceError struct {
	Table    string
	Batch    int
	Records  int
	Attempts int
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("table %s batch %d (%d records) failed after %d attempt(s): %v",
		e.Table, e.Batch, e.Records, e.Attempts, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// transientError lets sinks flag driver errors as retryable without
// knowing about the network error types above.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// MarkTransient wraps err so that IsTransient reports true for it.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var tn *TransientNetworkError
	if errors.As(err, &tn) {
		return true
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
