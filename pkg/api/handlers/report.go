package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/jordanlanch/reportdb/pkg/api/errors"
	"github.com/jordanlanch/reportdb/pkg/models"
	"github.com/jordanlanch/reportdb/pkg/report"
)

// ReportHandler handles report definition endpoints
type ReportHandler struct {
	reports *report.Service
}

// NewReportHandler creates a new report handler
func NewReportHandler(reports *report.Service) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Create handles creating a new report definition
func (h *ReportHandler) Create(c echo.Context) error {
	uid, ok := userID(c)
	if !ok {
		return errors.UnauthorizedError(c)
	}

	var req models.ReportCreateRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, err)
	}

	created, err := h.reports.Create(c.Request().Context(), uid, req)
	if err != nil {
		return errors.Respond(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

// Get handles retrieving a single report
func (h *ReportHandler) Get(c echo.Context) error {
	uid, ok := userID(c)
	if !ok {
		return errors.UnauthorizedError(c)
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	found, err := h.reports.Get(c.Request().Context(), id, uid)
	if err != nil {
		return errors.Respond(c, err)
	}
	return c.JSON(http.StatusOK, found)
}

// Update handles a partial report update
func (h *ReportHandler) Update(c echo.Context) error {
	uid, ok := userID(c)
	if !ok {
		return errors.UnauthorizedError(c)
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	var req models.ReportUpdateRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, err)
	}

	updated, err := h.reports.Update(c.Request().Context(), id, uid, req)
	if err != nil {
		return errors.Respond(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

// Delete handles removing a report
func (h *ReportHandler) Delete(c echo.Context) error {
	uid, ok := userID(c)
	if !ok {
		return errors.UnauthorizedError(c)
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	if err := h.reports.Delete(c.Request().Context(), id, uid); err != nil {
		return errors.Respond(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// List handles listing the caller's reports
func (h *ReportHandler) List(c echo.Context) error {
	uid, ok := userID(c)
	if !ok {
		return errors.UnauthorizedError(c)
	}

	page, limit := pagination(c)
	reports, total, err := h.reports.List(c.Request().Context(), uid, limit, (page-1)*limit)
	if err != nil {
		return errors.Respond(c, err)
	}

	totalPages := (total + limit - 1) / limit
	return c.JSON(http.StatusOK, map[string]interface{}{
		"reports": reports,
		"pagination": models.PaginationInfo{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
			HasPrev:    page > 1,
		},
	})
}

var badID = echo.NewHTTPError(http.StatusBadRequest, "ID must be a number")

// pathID parses the :id path parameter
func pathID(c echo.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return 0, badID
	}
	return id, nil
}

// pagination parses page and limit query parameters with sane bounds
func pagination(c echo.Context) (int, int) {
	page := 1
	if p, err := strconv.Atoi(c.QueryParam("page")); err == nil && p > 0 {
		page = p
	}
	limit := 20
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 && l <= 100 {
		limit = l
	}
	return page, limit
}
