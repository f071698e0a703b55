package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-viewer/internal/platform/apierr"
	"github.com/yungbote/neurobridge-viewer/internal/sceneasset"
)

type APIError struct {
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	Relogin   bool   `json:"relogin,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondSceneError renders a pipeline failure with the flags the viewer
// uses to decide between "log in again", "retry" and "cannot be loaded".
func RespondSceneError(c *gin.Context, err error) {
	apiErr := apierr.FromScene(err)
	env := ErrorEnvelope{Error: APIError{
		Message:   userMessage(apiErr, err),
		Code:      apiErr.Code,
		Retryable: sceneasset.IsRetryable(err),
		Relogin:   sceneasset.IsSessionError(err),
	}}
	c.JSON(apiErr.Status, env)
}

func userMessage(apiErr *apierr.Error, err error) string {
	var se *sceneasset.Error
	if !errors.As(err, &se) {
		if apiErr.Status >= http.StatusInternalServerError {
			return "internal error"
		}
		return apiErr.Error()
	}
	switch {
	case sceneasset.IsSessionError(err):
		return "please log in again"
	case se.Kind == sceneasset.KindUpstreamFailure:
		return "scene service unavailable, try again"
	case se.Kind == sceneasset.KindInvalidRequest:
		return se.Error()
	default:
		return "this scene could not be loaded"
	}
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
