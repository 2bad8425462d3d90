package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/formacore/progression-api/internal/dto"
	"github.com/formacore/progression-api/internal/models"
	appErrors "github.com/formacore/progression-api/pkg/errors"
	"github.com/formacore/progression-api/pkg/response"
)

type eventIngestor interface {
	SubmitCompletion(event models.CompletionEvent) error
	SubmitCoordination(event models.CoordinationEvent) error
}

// IngestHandler accepts completion and coordination events for asynchronous
// processing. Both endpoints answer 202: the progress update happens on the
// student's ingestion lane, not in the request.
type IngestHandler struct {
	ingest   eventIngestor
	validate *validator.Validate
}

// NewIngestHandler builds a new handler.
func NewIngestHandler(ingest eventIngestor, validate *validator.Validate) *IngestHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &IngestHandler{ingest: ingest, validate: validate}
}

// SubmitCompletion godoc
// @Summary Submit a completion event
// @Tags Events
// @Accept json
// @Produce json
// @Param payload body dto.SubmitCompletionRequest true "Completion event"
// @Success 202 {object} response.Envelope
// @Router /events/completions [post]
func (h *IngestHandler) SubmitCompletion(c *gin.Context) {
	var req dto.SubmitCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid completion payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid completion payload"))
		return
	}
	event := req.ToModel()
	if err := h.ingest.SubmitCompletion(event); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, dto.IngestAck{EventID: event.ID, Status: "accepted"}, nil)
}

// SubmitCoordination godoc
// @Summary Record a coordination event
// @Tags Events
// @Accept json
// @Produce json
// @Param payload body dto.RecordCoordinationRequest true "Coordination event"
// @Success 202 {object} response.Envelope
// @Router /events/coordination [post]
func (h *IngestHandler) SubmitCoordination(c *gin.Context) {
	var req dto.RecordCoordinationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid coordination payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid coordination payload"))
		return
	}
	event := req.ToModel()
	if err := h.ingest.SubmitCoordination(event); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, dto.IngestAck{EventID: event.ID, Status: "accepted"}, nil)
}
