package handlers

import (
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/jordanlanch/reportdb/pkg/api/errors"
	"github.com/jordanlanch/reportdb/pkg/export"
	"github.com/jordanlanch/reportdb/pkg/models"
)

// ExportHandler handles export endpoints
type ExportHandler struct {
	exports *export.Service
	signer  *export.LinkSigner
}

// NewExportHandler creates a new export handler
func NewExportHandler(exports *export.Service, signer *export.LinkSigner) *ExportHandler {
	return &ExportHandler{exports: exports, signer: signer}
}

// Create handles creating a new ad-hoc export
func (h *ExportHandler) Create(c echo.Context) error {
	uid, ok := userID(c)
	if !ok {
		return errors.UnauthorizedError(c)
	}

	var req models.ExportRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, err)
	}

	created, err := h.exports.Create(c.Request().Context(), uid, req)
	if err != nil {
		return errors.Respond(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

// Get handles retrieving a single export
func (h *ExportHandler) Get(c echo.Context) error {
	uid, ok := userID(c)
	if !ok {
		return errors.UnauthorizedError(c)
	}

	found, err := h.exports.Get(c.Request().Context(), uid, c.Param("id"))
	if err != nil {
		return errors.Respond(c, err)
	}
	return c.JSON(http.StatusOK, found)
}

// List handles listing the caller's exports
func (h *ExportHandler) List(c echo.Context) error {
	uid, ok := userID(c)
	if !ok {
		return errors.UnauthorizedError(c)
	}

	page, limit := pagination(c)
	exports, info, err := h.exports.List(c.Request().Context(), uid, page, limit)
	if err != nil {
		return errors.Respond(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"exports":    exports,
		"pagination": info,
	})
}

// Download streams an export file. Two callers reach it: the owner with a
// session, and email recipients bearing a signed time-limited link. The
// HMAC token authorizes exactly one export until its expiry.
func (h *ExportHandler) Download(c echo.Context) error {
	exportID := c.Param("id")

	if token := c.QueryParam("token"); token != "" {
		expires, err := strconv.ParseInt(c.QueryParam("expires"), 10, 64)
		if err != nil {
			return errors.UnauthorizedError(c)
		}
		if err := h.signer.Verify(exportID, expires, token); err != nil {
			return errors.Respond(c, err)
		}

		path, err := h.exports.FilePathSigned(c.Request().Context(), exportID)
		if err != nil {
			return errors.Respond(c, err)
		}
		return sendFile(c, path)
	}

	uid, ok := userID(c)
	if !ok {
		return errors.UnauthorizedError(c)
	}
	path, err := h.exports.FilePath(c.Request().Context(), uid, exportID)
	if err != nil {
		return errors.Respond(c, err)
	}
	return sendFile(c, path)
}

func sendFile(c echo.Context, path string) error {
	c.Response().Header().Set("Content-Disposition", "attachment; filename="+filepath.Base(path))
	c.Response().Header().Set("Content-Type", "application/octet-stream")
	return c.File(path)
}
