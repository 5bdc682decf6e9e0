package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/pulse-metrics-api/internal/dto"
	"github.com/noah-isme/pulse-metrics-api/internal/models"
	"github.com/noah-isme/pulse-metrics-api/internal/service"
	appErrors "github.com/noah-isme/pulse-metrics-api/pkg/errors"
	"github.com/noah-isme/pulse-metrics-api/pkg/response"
)

// BackfillHandler exposes the operational aggregate recomputation trigger.
type BackfillHandler struct {
	backfill *service.BackfillService
	logger   *zap.Logger
}

// NewBackfillHandler constructs the handler.
func NewBackfillHandler(backfill *service.BackfillService, logger *zap.Logger) *BackfillHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BackfillHandler{backfill: backfill, logger: logger}
}

// Trigger godoc
// @Summary Recompute stored aggregates for a historical range
// @Tags operations
// @Accept json
// @Produce json
// @Param request body dto.BackfillRequest true "range to recompute"
// @Success 202 {object} response.Envelope
// @Router /backfill [post]
func (h *BackfillHandler) Trigger(c *gin.Context) {
	org, err := organizationID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.BackfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid backfill request"))
		return
	}
	from, err := parseTime(req.From)
	if err != nil {
		response.Error(c, err)
		return
	}
	to, err := parseTime(req.To)
	if err != nil {
		response.Error(c, err)
		return
	}

	ack, err := h.backfill.Trigger(c.Request.Context(), org, models.DateRange{From: from, To: to})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, dto.BackfillResponse{
		JobID:  ack.JobID,
		Status: ack.Status,
		From:   ack.Range.From.Format(time.RFC3339),
		To:     ack.Range.To.Format(time.RFC3339),
	})
}
