package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/wms-audit-api/internal/dto"
	"github.com/noah-isme/wms-audit-api/internal/middleware"
	"github.com/noah-isme/wms-audit-api/internal/models"
	"github.com/noah-isme/wms-audit-api/internal/service"
	appErrors "github.com/noah-isme/wms-audit-api/pkg/errors"
	"github.com/noah-isme/wms-audit-api/pkg/response"
)

type flagService interface {
	List(ctx context.Context, query dto.FlagListQuery) (models.FlagPage, error)
	CheckRecovery(ctx context.Context, id int64) (models.RecoveryCheck, error)
	Resolve(ctx context.Context, id int64, req dto.ResolveFlagRequest, actorID string) (*service.FlagActionResult, error)
	Reject(ctx context.Context, id int64, req dto.RejectFlagRequest, actorID string) (*service.FlagActionResult, error)
}

type flagExporter interface {
	Export(ctx context.Context, query dto.FlagExportQuery) (*service.FlagExport, error)
}

type auditHistory interface {
	History(ctx context.Context, resource, resourceID string) ([]models.AuditLog, error)
}

// FlagHandler exposes the supervisor flag resolution endpoints.
type FlagHandler struct {
	flags    flagService
	exporter flagExporter
	history  auditHistory
}

// NewFlagHandler constructs the handler. exporter and history may be nil.
func NewFlagHandler(flags flagService, exporter flagExporter, history auditHistory) *FlagHandler {
	return &FlagHandler{flags: flags, exporter: exporter, history: history}
}

// List godoc
// @Summary List audit flags
// @Tags Flags
// @Produce json
// @Param type query string false "Flag type or ALL"
// @Param status query string false "PENDING, RESOLVED or REJECTED"
// @Param identifier query string false "Identifier"
// @Param crateId query string false "Alias of identifier"
// @Param date query string false "Creation date (YYYY-MM-DD)"
// @Param timeStart query int false "Created at or after (epoch seconds)"
// @Param timeEnd query int false "Created at or before (epoch seconds)"
// @Success 200 {object} response.Envelope
// @Router /audit/flags [get]
func (h *FlagHandler) List(c *gin.Context) {
	var query dto.FlagListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid flag query"))
		return
	}
	page, err := h.flags.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	views := flagViews(page.Flags)
	if page.Degraded {
		middleware.SetDegraded(c, service.DegradedWarning)
	}
	response.JSON(c, http.StatusOK, dto.FlagListResponse{Flags: views, Total: len(views)}, middleware.ExtractMeta(c))
}

// RecoveryCheck godoc
// @Summary Check recovery for an excess flag
// @Tags Flags
// @Produce json
// @Param id path int true "Flag ID"
// @Success 200 {object} response.Envelope
// @Router /audit/flags/{id}/recovery-check [get]
func (h *FlagHandler) RecoveryCheck(c *gin.Context) {
	id, err := flagIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	check, err := h.flags.CheckRecovery(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, check)
}

// Resolve godoc
// @Summary Resolve a pending flag
// @Tags Flags
// @Accept json
// @Produce json
// @Param id path int true "Flag ID"
// @Param payload body dto.ResolveFlagRequest true "Resolution payload"
// @Success 200 {object} response.Envelope
// @Router /audit/flags/{id}/resolve [post]
func (h *FlagHandler) Resolve(c *gin.Context) {
	id, err := flagIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.ResolveFlagRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid resolution payload"))
			return
		}
	}
	result, err := h.flags.Resolve(c.Request.Context(), id, req, actorID(c))
	h.respondAction(c, result, err)
}

// Reject godoc
// @Summary Reject a pending flag
// @Tags Flags
// @Accept json
// @Produce json
// @Param id path int true "Flag ID"
// @Param payload body dto.RejectFlagRequest true "Rejection payload"
// @Success 200 {object} response.Envelope
// @Router /audit/flags/{id}/reject [post]
func (h *FlagHandler) Reject(c *gin.Context) {
	id, err := flagIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.RejectFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Invalid("reason", "rejection reason is required"))
		return
	}
	result, err := h.flags.Reject(c.Request.Context(), id, req, actorID(c))
	h.respondAction(c, result, err)
}

// Export godoc
// @Summary Export audit flags
// @Tags Flags
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Router /audit/flags/export [get]
func (h *FlagHandler) Export(c *gin.Context) {
	if h.exporter == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	var query dto.FlagExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid export query"))
		return
	}
	export, err := h.exporter.Export(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	if export.Degraded {
		c.Header("X-Data-Degraded", "true")
	}
	response.Attachment(c, export.Filename, export.ContentType, export.Body)
}

// History godoc
// @Summary Audit trail of a flag
// @Tags Flags
// @Produce json
// @Param id path int true "Flag ID"
// @Success 200 {object} response.Envelope
// @Router /audit/flags/{id}/history [get]
func (h *FlagHandler) History(c *gin.Context) {
	if h.history == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	id, err := flagIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	logs, err := h.history.History(c.Request.Context(), models.AuditResourceFlag, strconv.FormatInt(id, 10))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, logs)
}

func (h *FlagHandler) respondAction(c *gin.Context, result *service.FlagActionResult, err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.Degraded {
		middleware.SetDegraded(c, service.DegradedWarning)
	}
	response.JSON(c, http.StatusOK, dto.FlagActionResponse{
		Flag:  dto.NewFlagView(result.Flag),
		Flags: flagViews(result.Flags),
	}, middleware.ExtractMeta(c))
}

func flagViews(flags []models.Flag) []dto.FlagView {
	views := make([]dto.FlagView, 0, len(flags))
	for _, flag := range flags {
		views = append(views, dto.NewFlagView(flag))
	}
	return views
}

func actorID(c *gin.Context) string {
	if claims := claimsFromContext(c); claims != nil {
		return claims.UserID
	}
	return ""
}
