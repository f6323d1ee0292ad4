package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/talkform/talkform-backend/internal/pkg/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError writes the JSON error envelope. An *apierr.Error anywhere in
// the chain supplies the HTTP status and code; anything else becomes a
// generic 500.
func RespondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	msg := "unknown error"

	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		if apiErr.Status != 0 {
			status = apiErr.Status
		}
		code = apiErr.Code
		msg = apiErr.Error()
	} else if err != nil {
		msg = err.Error()
	}

	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
