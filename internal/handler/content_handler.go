package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/formacore/progression-api/internal/service"
	"github.com/formacore/progression-api/pkg/response"
)

type contentTreeRegistry interface {
	Tree(ctx context.Context, formationID string) (*service.ContentTree, error)
	Rebuild(ctx context.Context, formationID string) (*service.ContentTree, error)
}

// ContentHandler exposes the content-tree registry. Authoring happens in a
// separate system; this service only reacts to structure-change signals.
type ContentHandler struct {
	trees contentTreeRegistry
}

// NewContentHandler builds a new handler.
func NewContentHandler(trees contentTreeRegistry) *ContentHandler {
	return &ContentHandler{trees: trees}
}

// StructureChanged godoc
// @Summary Signal that a formation's structure changed
// @Tags Content
// @Produce json
// @Param formationId path string true "Formation ID"
// @Success 200 {object} response.Envelope
// @Router /formations/{formationId}/structure-changed [post]
func (h *ContentHandler) StructureChanged(c *gin.Context) {
	tree, err := h.trees.Rebuild(c.Request.Context(), c.Param("formationId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"formationId":     tree.FormationID(),
		"durationMinutes": tree.TotalDurationMinutes(),
		"leafWeights":     tree.LeafWeights(),
	}, nil)
}

// Summary godoc
// @Summary Get a formation's tree summary and leaf weights
// @Tags Content
// @Produce json
// @Param formationId path string true "Formation ID"
// @Success 200 {object} response.Envelope
// @Router /formations/{formationId}/summary [get]
func (h *ContentHandler) Summary(c *gin.Context) {
	tree, err := h.trees.Tree(c.Request.Context(), c.Param("formationId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"formationId":     tree.FormationID(),
		"durationMinutes": tree.TotalDurationMinutes(),
		"leafWeights":     tree.LeafWeights(),
	}, nil)
}
