package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/formacore/progression-api/internal/models"
	"github.com/formacore/progression-api/pkg/response"
)

type progressReader interface {
	State(ctx context.Context, studentID, formationID string) (*models.ProgressView, error)
	Rebuild(ctx context.Context, studentID, formationID string) (*models.ProgressView, error)
}

// ProgressHandler exposes the materialized progress read model.
type ProgressHandler struct {
	progress progressReader
}

// NewProgressHandler builds a new handler.
func NewProgressHandler(progress progressReader) *ProgressHandler {
	return &ProgressHandler{progress: progress}
}

// Get godoc
// @Summary Get a student's progress in a formation
// @Tags Progress
// @Produce json
// @Param studentId path string true "Student ID"
// @Param formationId path string true "Formation ID"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/formations/{formationId}/progress [get]
func (h *ProgressHandler) Get(c *gin.Context) {
	view, err := h.progress.State(c.Request.Context(), c.Param("studentId"), c.Param("formationId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Rebuild godoc
// @Summary Replay the event log and rebuild the progress state
// @Tags Progress
// @Produce json
// @Param studentId path string true "Student ID"
// @Param formationId path string true "Formation ID"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/formations/{formationId}/progress/rebuild [post]
func (h *ProgressHandler) Rebuild(c *gin.Context) {
	view, err := h.progress.Rebuild(c.Request.Context(), c.Param("studentId"), c.Param("formationId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}
