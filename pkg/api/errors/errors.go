package errors

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jordanlanch/reportdb/pkg/domain"
	"github.com/jordanlanch/reportdb/pkg/models"
)

// Respond maps a domain error to its HTTP status and client-safe body.
// Internal detail (wrapped errors, paths, SQL) is logged server-side only.
func Respond(c echo.Context, err error) error {
	code := domain.GetErrorCode(err)

	status := http.StatusInternalServerError
	switch {
	case domain.IsNotFound(err):
		status = http.StatusNotFound
	case domain.IsValidation(err), domain.HasCode(err, domain.ErrCodePathTraversal):
		status = http.StatusBadRequest
	case domain.HasCode(err, domain.ErrCodeRateLimitExceeded):
		status = http.StatusTooManyRequests
	}

	if status == http.StatusInternalServerError {
		log.Printf("[INTERNAL ERROR] Path: %s, Error: %v", c.Request().URL.Path, err)
	}

	return c.JSON(status, models.ErrorResponse{
		Error:   code,
		Message: domain.ClientMessage(err),
	})
}

// ValidationError returns a generic validation error without exposing internal details
func ValidationError(c echo.Context, err error) error {
	log.Printf("[VALIDATION ERROR] Path: %s, Error: %v", c.Request().URL.Path, err)

	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   domain.ErrCodeValidation,
		Message: "Invalid request data. Please check your input and try again.",
	})
}

// UnauthorizedError returns a generic unauthorized error
func UnauthorizedError(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
		Error:   "unauthorized",
		Message: "You are not authorized to access this resource.",
	})
}
