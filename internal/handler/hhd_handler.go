package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/wms-audit-api/internal/dto"
	appErrors "github.com/noah-isme/wms-audit-api/pkg/errors"
	"github.com/noah-isme/wms-audit-api/pkg/response"
)

type hhdService interface {
	Session(ctx context.Context, auditorID string) (*dto.HHDResponse, error)
	Start(ctx context.Context, auditorID string) (*dto.HHDResponse, error)
	ScanRack(ctx context.Context, auditorID string, req dto.ScanRackRequest) (*dto.HHDResponse, error)
	ScanBox(ctx context.Context, auditorID string, req dto.ScanBoxRequest) (*dto.HHDResponse, error)
	VerifyEAN(ctx context.Context, auditorID string, req dto.VerifyEANRequest) (*dto.HHDResponse, error)
	SubmitBox(ctx context.Context, auditorID string, req dto.BoxAuditRequest) (*dto.HHDResponse, error)
	CompleteRack(ctx context.Context, auditorID string, req dto.ConfirmRequest) (*dto.HHDResponse, error)
	SkipRack(ctx context.Context, auditorID string, req dto.ConfirmRequest) (*dto.HHDResponse, error)
	Exit(ctx context.Context, auditorID string, req dto.ConfirmRequest) (*dto.HHDResponse, error)
}

// HHDHandler drives the handheld stepwise audit for the authenticated auditor.
type HHDHandler struct {
	service hhdService
}

// NewHHDHandler constructs the handler.
func NewHHDHandler(service hhdService) *HHDHandler {
	return &HHDHandler{service: service}
}

// Session godoc
// @Summary Current HHD audit session
// @Tags HHD
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /hhd/session [get]
func (h *HHDHandler) Session(c *gin.Context) {
	auditor, ok := auditorID(c)
	if !ok {
		return
	}
	resp, err := h.service.Session(c.Request.Context(), auditor)
	respondHHD(c, resp, err)
}

// Start godoc
// @Summary Start the assigned work task
// @Tags HHD
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /hhd/start [post]
func (h *HHDHandler) Start(c *gin.Context) {
	auditor, ok := auditorID(c)
	if !ok {
		return
	}
	resp, err := h.service.Start(c.Request.Context(), auditor)
	respondHHD(c, resp, err)
}

// ScanRack godoc
// @Summary Scan the expected rack
// @Tags HHD
// @Accept json
// @Produce json
// @Param payload body dto.ScanRackRequest true "Rack barcode"
// @Success 200 {object} response.Envelope
// @Router /hhd/rack/scan [post]
func (h *HHDHandler) ScanRack(c *gin.Context) {
	var req dto.ScanRackRequest
	auditor, ok := bindHHD(c, &req)
	if !ok {
		return
	}
	resp, err := h.service.ScanRack(c.Request.Context(), auditor, req)
	respondHHD(c, resp, err)
}

// ScanBox godoc
// @Summary Scan a box on the current rack
// @Tags HHD
// @Accept json
// @Produce json
// @Param payload body dto.ScanBoxRequest true "Box barcode"
// @Success 200 {object} response.Envelope
// @Router /hhd/box/scan [post]
func (h *HHDHandler) ScanBox(c *gin.Context) {
	var req dto.ScanBoxRequest
	auditor, ok := bindHHD(c, &req)
	if !ok {
		return
	}
	resp, err := h.service.ScanBox(c.Request.Context(), auditor, req)
	respondHHD(c, resp, err)
}

// VerifyEAN godoc
// @Summary Verify the product EAN of the current box
// @Tags HHD
// @Accept json
// @Produce json
// @Param payload body dto.VerifyEANRequest true "EAN"
// @Success 200 {object} response.Envelope
// @Router /hhd/box/ean [post]
func (h *HHDHandler) VerifyEAN(c *gin.Context) {
	var req dto.VerifyEANRequest
	auditor, ok := bindHHD(c, &req)
	if !ok {
		return
	}
	resp, err := h.service.VerifyEAN(c.Request.Context(), auditor, req)
	respondHHD(c, resp, err)
}

// SubmitBox godoc
// @Summary Submit the item details of the current box
// @Tags HHD
// @Accept json
// @Produce json
// @Param payload body dto.BoxAuditRequest true "Box audit"
// @Success 200 {object} response.Envelope
// @Router /hhd/box/submit [post]
func (h *HHDHandler) SubmitBox(c *gin.Context) {
	var req dto.BoxAuditRequest
	auditor, ok := bindHHD(c, &req)
	if !ok {
		return
	}
	resp, err := h.service.SubmitBox(c.Request.Context(), auditor, req)
	respondHHD(c, resp, err)
}

// CompleteRack godoc
// @Summary Complete the current rack
// @Tags HHD
// @Accept json
// @Produce json
// @Param payload body dto.ConfirmRequest true "Confirmation"
// @Success 200 {object} response.Envelope
// @Router /hhd/rack/complete [post]
func (h *HHDHandler) CompleteRack(c *gin.Context) {
	var req dto.ConfirmRequest
	auditor, ok := bindHHD(c, &req)
	if !ok {
		return
	}
	resp, err := h.service.CompleteRack(c.Request.Context(), auditor, req)
	respondHHD(c, resp, err)
}

// SkipRack godoc
// @Summary Skip the current rack
// @Tags HHD
// @Accept json
// @Produce json
// @Param payload body dto.ConfirmRequest true "Confirmation"
// @Success 200 {object} response.Envelope
// @Router /hhd/rack/skip [post]
func (h *HHDHandler) SkipRack(c *gin.Context) {
	var req dto.ConfirmRequest
	auditor, ok := bindHHD(c, &req)
	if !ok {
		return
	}
	resp, err := h.service.SkipRack(c.Request.Context(), auditor, req)
	respondHHD(c, resp, err)
}

// Exit godoc
// @Summary Leave the walkthrough
// @Tags HHD
// @Accept json
// @Produce json
// @Param payload body dto.ConfirmRequest true "Confirmation"
// @Success 200 {object} response.Envelope
// @Router /hhd/exit [post]
func (h *HHDHandler) Exit(c *gin.Context) {
	var req dto.ConfirmRequest
	auditor, ok := bindHHD(c, &req)
	if !ok {
		return
	}
	resp, err := h.service.Exit(c.Request.Context(), auditor, req)
	respondHHD(c, resp, err)
}

func auditorID(c *gin.Context) (string, bool) {
	claims := claimsFromContext(c)
	if claims == nil || claims.UserID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", false
	}
	return claims.UserID, true
}

func bindHHD(c *gin.Context, req interface{}) (string, bool) {
	auditor, ok := auditorID(c)
	if !ok {
		return "", false
	}
	if c.Request.ContentLength == 0 {
		return auditor, true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request payload"))
		return "", false
	}
	return auditor, true
}

// respondHHD always returns the session snapshot so the device can fall back to a safe step.
func respondHHD(c *gin.Context, resp *dto.HHDResponse, err error) {
	if err != nil {
		if resp != nil {
			response.ErrorWithData(c, err, resp)
			return
		}
		response.Error(c, err)
		return
	}
	response.OK(c, resp)
}
