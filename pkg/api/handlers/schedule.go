package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jordanlanch/reportdb/pkg/api/errors"
	"github.com/jordanlanch/reportdb/pkg/models"
	"github.com/jordanlanch/reportdb/pkg/schedule"
)

// ScheduleHandler handles export schedule endpoints
type ScheduleHandler struct {
	schedules *schedule.Service
}

// NewScheduleHandler creates a new schedule handler
func NewScheduleHandler(schedules *schedule.Service) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules}
}

// Create handles creating a new schedule
func (h *ScheduleHandler) Create(c echo.Context) error {
	uid, ok := userID(c)
	if !ok {
		return errors.UnauthorizedError(c)
	}

	var req models.ScheduleCreateRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, err)
	}

	created, err := h.schedules.Create(c.Request().Context(), uid, req)
	if err != nil {
		return errors.Respond(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

// Get handles retrieving a single schedule
func (h *ScheduleHandler) Get(c echo.Context) error {
	uid, ok := userID(c)
	if !ok {
		return errors.UnauthorizedError(c)
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	found, err := h.schedules.Get(c.Request().Context(), id, uid)
	if err != nil {
		return errors.Respond(c, err)
	}
	return c.JSON(http.StatusOK, found)
}

// Update handles a partial schedule update
func (h *ScheduleHandler) Update(c echo.Context) error {
	uid, ok := userID(c)
	if !ok {
		return errors.UnauthorizedError(c)
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	var req models.ScheduleUpdateRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, err)
	}

	updated, err := h.schedules.Update(c.Request().Context(), id, uid, req)
	if err != nil {
		return errors.Respond(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

// Delete handles removing a schedule and its run history
func (h *ScheduleHandler) Delete(c echo.Context) error {
	uid, ok := userID(c)
	if !ok {
		return errors.UnauthorizedError(c)
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	if err := h.schedules.Delete(c.Request().Context(), id, uid); err != nil {
		return errors.Respond(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// List handles listing the caller's schedules
func (h *ScheduleHandler) List(c echo.Context) error {
	uid, ok := userID(c)
	if !ok {
		return errors.UnauthorizedError(c)
	}

	page, limit := pagination(c)
	schedules, total, err := h.schedules.List(c.Request().Context(), uid, limit, (page-1)*limit)
	if err != nil {
		return errors.Respond(c, err)
	}

	totalPages := (total + limit - 1) / limit
	return c.JSON(http.StatusOK, map[string]interface{}{
		"schedules": schedules,
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

// Pause handles pausing a schedule
func (h *ScheduleHandler) Pause(c echo.Context) error {
	uid, ok := userID(c)
	if !ok {
		return errors.UnauthorizedError(c)
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	paused, err := h.schedules.Pause(c.Request().Context(), id, uid)
	if err != nil {
		return errors.Respond(c, err)
	}
	return c.JSON(http.StatusOK, paused)
}

// Resume handles resuming a paused schedule
func (h *ScheduleHandler) Resume(c echo.Context) error {
	uid, ok := userID(c)
	if !ok {
		return errors.UnauthorizedError(c)
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	resumed, err := h.schedules.Resume(c.Request().Context(), id, uid)
	if err != nil {
		return errors.Respond(c, err)
	}
	return c.JSON(http.StatusOK, resumed)
}

// Executions handles listing a schedule's run history
func (h *ScheduleHandler) Executions(c echo.Context) error {
	uid, ok := userID(c)
	if !ok {
		return errors.UnauthorizedError(c)
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	page, limit := pagination(c)
	executions, total, err := h.schedules.Executions(c.Request().Context(), id, uid, limit, (page-1)*limit)
	if err != nil {
		return errors.Respond(c, err)
	}

	totalPages := (total + limit - 1) / limit
	return c.JSON(http.StatusOK, map[string]interface{}{
		"executions": executions,
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
