package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sheet-tracker/backend/internal/domain"
)

// statusFor maps domain errors to an HTTP status
func statusFor(err error) int {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrProblemNotFound), errors.Is(err, domain.ErrUserNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidDifficulty),
		errors.Is(err, domain.ErrEmptyUpdate),
		errors.Is(err, domain.ErrInvalidAction),
		errors.Is(err, domain.ErrUnsupportedFormat),
		errors.Is(err, domain.ErrNothingToImport),
		errors.Is(err, domain.ErrBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrImportRejected):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, domain.ErrInvalidToken), errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrUserAlreadyExists):
		status = http.StatusConflict
	}
	return status
}

// respondError writes {"error", "details"}. Unknown errors keep their
// details out of the response and are attached to the context for logging.
func respondError(c *gin.Context, err error, title string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(status, gin.H{
			"error":   title,
			"details": domain.ErrInternalServer.Error(),
		})
		return
	}
	c.JSON(status, gin.H{
		"error":   title,
		"details": err.Error(),
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
}
