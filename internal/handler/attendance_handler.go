package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/formacore/progression-api/internal/dto"
	"github.com/formacore/progression-api/internal/models"
	appErrors "github.com/formacore/progression-api/pkg/errors"
	"github.com/formacore/progression-api/pkg/response"
)

type attendanceService interface {
	Record(ctx context.Context, record models.AttendanceRecord) (*models.AttendanceSummary, error)
	Summary(ctx context.Context, studentID string, from, to *time.Time) (*models.AttendanceSummary, error)
}

// AttendanceHandler exposes attendance recording and summaries.
type AttendanceHandler struct {
	service  attendanceService
	validate *validator.Validate
}

// NewAttendanceHandler builds a new handler.
func NewAttendanceHandler(service attendanceService, validate *validator.Validate) *AttendanceHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &AttendanceHandler{service: service, validate: validate}
}

// Record godoc
// @Summary Record attendance for a session
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body dto.RecordAttendanceRequest true "Attendance record"
// @Success 201 {object} response.Envelope
// @Router /attendance [post]
func (h *AttendanceHandler) Record(c *gin.Context) {
	var req dto.RecordAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid attendance payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid attendance payload"))
		return
	}
	summary, err := h.service.Record(c.Request.Context(), req.ToModel())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, summary)
}

// Summary godoc
// @Summary Get a student's attendance summary
// @Tags Attendance
// @Produce json
// @Param studentId path string true "Student ID"
// @Param from query string false "Range start (RFC 3339)"
// @Param to query string false "Range end (RFC 3339)"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/attendance [get]
func (h *AttendanceHandler) Summary(c *gin.Context) {
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
	summary, err := h.service.Summary(c.Request.Context(), c.Param("studentId"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

func parseTimeQuery(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, name+" must be RFC 3339")
	}
	return &t, nil
}
