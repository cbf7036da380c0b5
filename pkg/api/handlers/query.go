package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jordanlanch/reportdb/pkg/api/errors"
	"github.com/jordanlanch/reportdb/pkg/models"
	"github.com/jordanlanch/reportdb/pkg/query"
)

// QueryHandler handles ad-hoc query endpoints
type QueryHandler struct {
	queries *query.Service
}

// NewQueryHandler creates a new query handler
func NewQueryHandler(queries *query.Service) *QueryHandler {
	return &QueryHandler{queries: queries}
}

// Run executes an ad-hoc query and returns its rows
func (h *QueryHandler) Run(c echo.Context) error {
	if _, ok := userID(c); !ok {
		return errors.UnauthorizedError(c)
	}

	var req models.QueryRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, err)
	}

	result, err := h.queries.Run(c.Request().Context(), req, nil)
	if err != nil {
		return errors.Respond(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// Count returns only the row count of a query, for pagination
func (h *QueryHandler) Count(c echo.Context) error {
	if _, ok := userID(c); !ok {
		return errors.UnauthorizedError(c)
	}

	var req models.QueryRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, err)
	}

	count, err := h.queries.Count(c.Request().Context(), req, nil)
	if err != nil {
		return errors.Respond(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"count": count})
}
