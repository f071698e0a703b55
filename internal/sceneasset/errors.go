package sceneasset

import (
	"context"
	"errors"
	"fmt"
)

type Kind string

const (
	KindUnauthenticated  Kind = "unauthenticated"
	KindExpiredSession   Kind = "expired_session"
	KindUpstreamFailure  Kind = "upstream_failure"
	KindMalformedArchive Kind = "malformed_archive"
	KindMissingManifest  Kind = "missing_manifest"
	KindInvalidManifest  Kind = "invalid_manifest"
	KindInvalidRequest   Kind = "invalid_request"
)

// Error is the single failure type returned by every pipeline stage.
// Status is only set for upstream failures (0 means the request never
// produced a response).
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.Kind)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so callers can write errors.Is(err, ErrMissingManifest).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t == nil || e == nil {
		return false
	}
	return t.Kind == e.Kind && t.Status == 0 && t.Message == "" && t.Err == nil
}

var (
	ErrUnauthenticated  = &Error{Kind: KindUnauthenticated}
	ErrExpiredSession   = &Error{Kind: KindExpiredSession}
	ErrUpstreamFailure  = &Error{Kind: KindUpstreamFailure}
	ErrMalformedArchive = &Error{Kind: KindMalformedArchive}
	ErrMissingManifest  = &Error{Kind: KindMissingManifest}
	ErrInvalidManifest  = &Error{Kind: KindInvalidManifest}
	ErrInvalidRequest   = &Error{Kind: KindInvalidRequest}
)

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func upstreamFailure(status int, msg string, err error) *Error {
	return &Error{Kind: KindUpstreamFailure, Status: status, Message: msg, Err: err}
}

// KindOf returns the Kind carried by err, or "" if err is not a pipeline error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether retrying the same request can succeed.
// Corrupt packages are never retried; an unchanged artifact stays corrupt.
func IsRetryable(err error) bool {
	return KindOf(err) == KindUpstreamFailure
}

// IsSessionError reports whether the caller must re-authenticate.
func IsSessionError(err error) bool {
	switch KindOf(err) {
	case KindUnauthenticated, KindExpiredSession:
		return true
	default:
		return false
	}
}

// IsCancelled reports whether err is the caller's own cancellation rather
// than a failure.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// PartialDecodeWarning describes a single entry whose scene graph could not
// be decoded. It is logged, never returned.
type PartialDecodeWarning struct {
	Entry string
	Err   error
}

func (w PartialDecodeWarning) Error() string {
	return fmt.Sprintf("partial decode of %q: %v", w.Entry, w.Err)
}

func (w PartialDecodeWarning) Unwrap() error { return w.Err }
