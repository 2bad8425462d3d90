package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/formacore/progression-api/internal/models"
	appErrors "github.com/formacore/progression-api/pkg/errors"
	"github.com/formacore/progression-api/pkg/response"
)

type riskService interface {
	Alerts(ctx context.Context, thresholdOverride *float64) ([]models.StudentRiskAlert, error)
	WhatIf(ctx context.Context, studentID, formationID string) (*models.RiskOutcome, error)
	Recompute(ctx context.Context, studentID, formationID string) (*models.RiskOutcome, error)
	RunBatch(ctx context.Context) (int, int)
}

// RiskHandler exposes the dropout-risk scorer.
type RiskHandler struct {
	service riskService
}

// NewRiskHandler builds a new handler.
func NewRiskHandler(service riskService) *RiskHandler {
	return &RiskHandler{service: service}
}

// Alerts godoc
// @Summary List students at risk of dropout
// @Tags Risk
// @Produce json
// @Param threshold query number false "Risk score threshold override (0-100)"
// @Success 200 {object} response.Envelope
// @Router /risk/alerts [get]
func (h *RiskHandler) Alerts(c *gin.Context) {
	var override *float64
	if raw := c.Query("threshold"); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "threshold must be a number"))
			return
		}
		override = &value
	}
	alerts, err := h.service.Alerts(c.Request.Context(), override)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, alerts, nil)
}

// Evaluate godoc
// @Summary Compute a student's risk without persisting it
// @Tags Risk
// @Produce json
// @Param studentId path string true "Student ID"
// @Param formationId path string true "Formation ID"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/formations/{formationId}/risk [get]
func (h *RiskHandler) Evaluate(c *gin.Context) {
	outcome, err := h.service.WhatIf(c.Request.Context(), c.Param("studentId"), c.Param("formationId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, outcome, nil)
}

// Recompute godoc
// @Summary Recompute and persist a student's risk
// @Tags Risk
// @Produce json
// @Param studentId path string true "Student ID"
// @Param formationId path string true "Formation ID"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/formations/{formationId}/risk/recompute [post]
func (h *RiskHandler) Recompute(c *gin.Context) {
	outcome, err := h.service.Recompute(c.Request.Context(), c.Param("studentId"), c.Param("formationId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, outcome, nil)
}

// RunBatch godoc
// @Summary Trigger the full risk sweep
// @Tags Risk
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /risk/batch [post]
func (h *RiskHandler) RunBatch(c *gin.Context) {
	succeeded, failed := h.service.RunBatch(c.Request.Context())
	response.JSON(c, http.StatusOK, gin.H{"succeeded": succeeded, "failed": failed}, nil)
}
