package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested document or record was not found
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a document revision did not match the stored one
	ErrConflict = errors.New("revision conflict")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrLocked indicates a sync cycle already holds the lock
	ErrLocked = errors.New("sync already in progress")

	// ErrUnknownService indicates a service name that is not configured
	ErrUnknownService = errors.New("unknown service")

	// ErrUnauthorized indicates authentication failed or missing
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTokenExpired indicates the operator token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid indicates the operator token is malformed or invalid
	ErrTokenInvalid = errors.New("token invalid")
)

// LockError is returned when a cycle (or purge) cannot take the sync lock.
// The caller should retry later; it is never fatal.
type LockError struct {
	Name  string
	Cause error
}

func (e *LockError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("lock %q unavailable: %v", e.Name, e.Cause)
	}
	return fmt.Sprintf("lock %q is held by a running sync, retry later", e.Name)
}

func (e *LockError) Unwrap() error { return e.Cause }

// Is makes errors.Is(err, ErrLocked) hold for every LockError.
func (e *LockError) Is(target error) bool { return target == ErrLocked }

// FetchError wraps a remote fetch failure for one service.
type FetchError struct {
	Service string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Service, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// MappingError reports a declared field that has no conversion rule
// for a service.
type MappingError struct {
	Service   string
	Field     string
	Direction string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("%s: no %s mapping for declared field %q", e.Service, e.Direction, e.Field)
}

// ValidationError reports an item missing a required identifying field.
type ValidationError struct {
	Service string
	Field   string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid item: %s %s", e.Service, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

// RemoteWriteError reports a failed remote mutation, including 2xx responses
// that carry an embedded error payload.
type RemoteWriteError struct {
	Service string
	Op      string
	ID      string
	Status  int
	Message string
	Err     error
}

func (e *RemoteWriteError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Service, e.Op)
	if e.ID != "" {
		fmt.Fprintf(&b, " %s", e.ID)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *RemoteWriteError) Unwrap() error { return e.Err }

// PurgeError aggregates the outcome of a bulk remote deletion in which at
// least one deletion failed.
type PurgeError struct {
	Service   string
	Succeeded int
	Failed    int
	Errs      []error
}

func (e *PurgeError) Error() string {
	return fmt.Sprintf("purge %s: %d succeeded, %d failed", e.Service, e.Succeeded, e.Failed)
}

func (e *PurgeError) Unwrap() []error { return e.Errs }

// StoreError wraps a local document store failure other than "not found".
type StoreError struct {
	Store string
	Op    string
	Key   string
	Err   error
}

func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("store %s: %s %q: %v", e.Store, e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("store %s: %s: %v", e.Store, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ArgumentError reports a malformed call, such as a pairing lookup with no id.
type ArgumentError struct {
	Op     string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *ArgumentError) Is(target error) bool { return target == ErrInvalidInput }

// PairingError reports a failed create or update of a paired item.
// Step names the sub-step that failed.
type PairingError struct {
	ID   string
	Step string
	Err  error
}

func (e *PairingError) Error() string {
	return fmt.Sprintf("pairing %s failed at %s: %v", e.ID, e.Step, e.Err)
}

func (e *PairingError) Unwrap() error { return e.Err }

// InitError reports a resource binding failure at adapter start-up.
type InitError struct {
	Service string
	Err     error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("init %s: %v", e.Service, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }
