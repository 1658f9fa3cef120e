package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/clinicalmdr-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// Paged wraps list payloads with their pagination total.
type Paged struct {
	Items any `json:"items"`
	Total int `json:"total"`
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

// RespondAPIError maps an error kind to its HTTP status. Unclassified
// errors surface as 500.
func RespondAPIError(c *gin.Context, err error) {
	kind := apierr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case apierr.KindNotFound:
		status = http.StatusNotFound
	case apierr.KindValidation, apierr.KindBusinessLogic, apierr.KindVersioning:
		status = http.StatusBadRequest
	case apierr.KindConflict:
		status = http.StatusConflict
	case apierr.KindConsistency:
		status = http.StatusInternalServerError
	}
	RespondError(c, status, string(kind), err)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}

func RespondNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
