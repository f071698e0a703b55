package apierr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/yungbote/neurobridge-viewer/internal/sceneasset"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// FromScene maps a pipeline failure onto the HTTP status a viewer client
// acts on: 401 means log in again, 502 may be retried, 422 never will be.
func FromScene(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	kind := sceneasset.KindOf(err)
	switch kind {
	case sceneasset.KindUnauthenticated, sceneasset.KindExpiredSession:
		return New(http.StatusUnauthorized, string(kind), err)
	case sceneasset.KindUpstreamFailure:
		return New(http.StatusBadGateway, string(kind), err)
	case sceneasset.KindMalformedArchive, sceneasset.KindMissingManifest, sceneasset.KindInvalidManifest:
		return New(http.StatusUnprocessableEntity, string(kind), err)
	case sceneasset.KindInvalidRequest:
		return New(http.StatusBadRequest, string(kind), err)
	default:
		return New(http.StatusInternalServerError, "internal", err)
	}
}
