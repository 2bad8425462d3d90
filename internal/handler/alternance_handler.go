package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/formacore/progression-api/internal/dto"
	"github.com/formacore/progression-api/internal/models"
	"github.com/formacore/progression-api/internal/service"
	appErrors "github.com/formacore/progression-api/pkg/errors"
	"github.com/formacore/progression-api/pkg/response"
)

type alternanceService interface {
	CreateDraft(ctx context.Context, contract models.AlternanceContract) (*models.AlternanceContract, error)
	Validate(ctx context.Context, contractID string) (*models.GenerationReport, error)
	Transition(ctx context.Context, contractID string, next models.ContractStatus) (*models.AlternanceContract, error)
	Amend(ctx context.Context, contractID string, req service.AmendmentRequest) (*models.GenerationReport, error)
	Calendar(ctx context.Context, studentID string, from, to time.Time) ([]models.CalendarEntry, error)
	ConfirmEntry(ctx context.Context, entryID, actor string) (*models.CalendarEntry, error)
}

// AlternanceHandler exposes contract lifecycle and calendar endpoints.
type AlternanceHandler struct {
	service  alternanceService
	validate *validator.Validate
}

// NewAlternanceHandler builds a new handler.
func NewAlternanceHandler(service alternanceService, validate *validator.Validate) *AlternanceHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &AlternanceHandler{service: service, validate: validate}
}

// CreateContract godoc
// @Summary Create a draft alternance contract
// @Tags Alternance
// @Accept json
// @Produce json
// @Param payload body dto.CreateContractRequest true "Contract payload"
// @Success 201 {object} response.Envelope
// @Router /contracts [post]
func (h *AlternanceHandler) CreateContract(c *gin.Context) {
	var req dto.CreateContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid contract payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid contract payload"))
		return
	}
	contract, err := h.service.CreateDraft(c.Request.Context(), req.ToModel())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, contract)
}

// ValidateContract godoc
// @Summary Validate a draft contract and generate its calendar
// @Tags Alternance
// @Produce json
// @Param id path string true "Contract ID"
// @Success 200 {object} response.Envelope
// @Router /contracts/{id}/validate [post]
func (h *AlternanceHandler) ValidateContract(c *gin.Context) {
	report, err := h.service.Validate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// TransitionContract godoc
// @Summary Move a contract to its next lifecycle status
// @Tags Alternance
// @Accept json
// @Produce json
// @Param id path string true "Contract ID"
// @Param payload body dto.TransitionContractRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Router /contracts/{id}/transition [post]
func (h *AlternanceHandler) TransitionContract(c *gin.Context) {
	var req dto.TransitionContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid transition payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid transition payload"))
		return
	}
	contract, err := h.service.Transition(c.Request.Context(), c.Param("id"), models.ContractStatus(req.Status))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, contract, nil)
}

// AmendContract godoc
// @Summary Amend a contract and regenerate future weeks
// @Tags Alternance
// @Accept json
// @Produce json
// @Param id path string true "Contract ID"
// @Param payload body dto.AmendContractRequest true "Amendment payload"
// @Success 200 {object} response.Envelope
// @Router /contracts/{id}/amend [post]
func (h *AlternanceHandler) AmendContract(c *gin.Context) {
	var req dto.AmendContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid amendment payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid amendment payload"))
		return
	}
	report, err := h.service.Amend(c.Request.Context(), c.Param("id"), service.AmendmentRequest{
		EndDate:           req.EndDate,
		CenterPercentage:  req.CenterPercentage,
		CompanyPercentage: req.CompanyPercentage,
		Rhythm:            req.Rhythm,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Calendar godoc
// @Summary Get a student's alternance calendar
// @Tags Alternance
// @Produce json
// @Param studentId path string true "Student ID"
// @Param from query string false "Range start (RFC 3339), defaults to now"
// @Param to query string false "Range end (RFC 3339), defaults to +26 weeks"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/calendar [get]
func (h *AlternanceHandler) Calendar(c *gin.Context) {
	from, err := parseTimeQuery(c, "from")
	if err != nil {
		response.Error(c, err)
		return
	}
	to, err := parseTimeQuery(c, "to")
	if err != nil {
		response.Error(c, err)
		return
	}
	start := time.Now().UTC()
	if from != nil {
		start = *from
	}
	end := start.AddDate(0, 0, 26*7)
	if to != nil {
		end = *to
	}
	entries, err := h.service.Calendar(c.Request.Context(), c.Param("studentId"), start, end)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// ConfirmEntry godoc
// @Summary Confirm one calendar week
// @Tags Alternance
// @Accept json
// @Produce json
// @Param id path string true "Calendar entry ID"
// @Param payload body dto.ConfirmEntryRequest true "Confirmation payload"
// @Success 200 {object} response.Envelope
// @Router /calendar/entries/{id}/confirm [post]
func (h *AlternanceHandler) ConfirmEntry(c *gin.Context) {
	var req dto.ConfirmEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid confirmation payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid confirmation payload"))
		return
	}
	entry, err := h.service.ConfirmEntry(c.Request.Context(), c.Param("id"), req.ConfirmedBy)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}
