package contentsync

import (
	"errors"
	"fmt"
)

var (
	ErrNotConfigured = errors.New("no repository configured")
	ErrNoBranch      = errors.New("no branch configured")
	ErrStaleContent  = errors.New("site is outdated, please update your content first")
)

// ConfigurationError reports a controller that cannot operate: no repository
// or no branch. It is never retried.
type ConfigurationError struct {
	Op     string
	Reason error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Reason
}

// StaleContentError reports that the remote branch moved while an edit was
// prepared against an older revision. The working copy has already been reset
// to Old when this error is returned. UpdateURL is where the editor can
// synchronize before applying the edit again.
type StaleContentError struct {
	UpdateURL string
	Old       string
	New       string
}

func (e *StaleContentError) Error() string {
	return fmt.Sprintf("%v: %s", ErrStaleContent, e.UpdateURL)
}

func (*StaleContentError) Is(target error) bool {
	return target == ErrStaleContent
}

// BackendError wraps a failing repository operation.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("repository %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

func notConfigured(op string) error {
	return &ConfigurationError{Op: op, Reason: ErrNotConfigured}
}

func backend(op string, err error) error {
	return &BackendError{Op: op, Err: err}
}
