package apihandlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docq/internal/models"
	"docq/internal/store"
)

// APIError is the error body of every non-2xx response.
// Example: { "error": { "code": "not_found", "message": "job abc: resource not found" } }
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error APIError `json:"error"`
}

// JSONError sends a structured error response.
func JSONError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, errorResponse{Error: APIError{Code: code, Message: msg}})
}

func BadRequest(c *gin.Context, msg string) {
	JSONError(c, http.StatusBadRequest, "bad_request", msg)
}

// RespondError maps the engine's sentinel errors onto HTTP statuses: a
// missing record is 404, a state conflict (cancelling a finished job,
// leasing a non-queued one) is 409, rejected input is 400, anything else
// surfaces as 500.
func RespondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		JSONError(c, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, store.ErrConflict):
		JSONError(c, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, models.ErrValidation):
		BadRequest(c, err.Error())
	default:
		JSONError(c, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
