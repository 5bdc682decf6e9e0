package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/pulse-metrics-api/internal/models"
	"github.com/noah-isme/pulse-metrics-api/internal/service"
	appErrors "github.com/noah-isme/pulse-metrics-api/pkg/errors"
	"github.com/noah-isme/pulse-metrics-api/pkg/response"
)

// AnalyticsHandler serves the metric read endpoints.
type AnalyticsHandler struct {
	aggregator     *service.AggregatorService
	exports        *service.ExportService
	instr          *service.InstrumentationService
	logger         *zap.Logger
	exportsEnabled bool
}

// NewAnalyticsHandler constructs the handler.
func NewAnalyticsHandler(aggregator *service.AggregatorService, exports *service.ExportService, instr *service.InstrumentationService, logger *zap.Logger, exportsEnabled bool) *AnalyticsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsHandler{
		aggregator:     aggregator,
		exports:        exports,
		instr:          instr,
		logger:         logger,
		exportsEnabled: exportsEnabled,
	}
}

// Pulse godoc
// @Summary Bucketed mood average series
// @Tags analytics
// @Produce json
// @Param scope query string false "organization, team or user" default(organization)
// @Param id query string false "entity id, required for team and user scopes"
// @Param period query string false "day, week, month, quarter or year" default(week)
// @Param from query string false "range start, RFC3339 or YYYY-MM-DD"
// @Param to query string false "range end, RFC3339 or YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /analytics/pulse [get]
func (h *AnalyticsHandler) Pulse(c *gin.Context) {
	start := time.Now()
	q, err := metricQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	series, meta, err := h.aggregator.Pulse(c.Request.Context(), q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, models.MetricResult{Kind: models.MetricPulse, Pulse: series}, readMeta(meta, start))
}

// Shoutouts godoc
// @Summary Bucketed shoutout counts
// @Tags analytics
// @Produce json
// @Param direction query string false "given, received or all" default(all)
// @Param visibility query string false "public, private or all" default(all)
// @Success 200 {object} response.Envelope
// @Router /analytics/shoutouts [get]
func (h *AnalyticsHandler) Shoutouts(c *gin.Context) {
	start := time.Now()
	q, err := metricQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	series, meta, err := h.aggregator.Shoutouts(c.Request.Context(), service.ShoutoutQuery{
		MetricQuery: q,
		Direction:   models.ShoutoutDirection(c.Query("direction")),
		Visibility:  models.ShoutoutVisibility(c.Query("visibility")),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, models.MetricResult{Kind: models.MetricShoutout, Shoutouts: series}, readMeta(meta, start))
}

// Compliance godoc
// @Summary On-time compliance series for check-ins or reviews
// @Tags analytics
// @Produce json
// @Param kind query string false "compliance_checkin or compliance_review" default(compliance_checkin)
// @Success 200 {object} response.Envelope
// @Router /analytics/compliance [get]
func (h *AnalyticsHandler) Compliance(c *gin.Context) {
	start := time.Now()
	q, err := metricQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	kind := models.MetricType(c.DefaultQuery("kind", string(models.MetricComplianceCheckin)))
	report, meta, err := h.aggregator.Compliance(c.Request.Context(), service.ComplianceQuery{MetricQuery: q, Kind: kind})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, models.MetricResult{Kind: kind, Compliance: report}, readMeta(meta, start))
}

// Leaderboard godoc
// @Summary Ranked users for a metric over the range
// @Tags analytics
// @Produce json
// @Param metric query string false "shoutouts_received, shoutouts_given or pulse_avg" default(shoutouts_received)
// @Param limit query int false "maximum entries returned"
// @Success 200 {object} response.Envelope
// @Router /analytics/leaderboard [get]
func (h *AnalyticsHandler) Leaderboard(c *gin.Context) {
	start := time.Now()
	org, err := organizationID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	r, err := parseRange(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	limit, err := parseLimit(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	entries, meta, err := h.aggregator.Leaderboard(c.Request.Context(), service.LeaderboardQuery{
		OrganizationID: org,
		Scope:          models.ScopeType(c.DefaultQuery("scope", string(models.ScopeOrganization))),
		EntityID:       c.Query("id"),
		Metric:         models.LeaderboardMetric(c.DefaultQuery("metric", string(models.LeaderboardShoutoutsReceived))),
		Range:          r,
		Limit:          limit,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, models.MetricResult{Kind: models.MetricLeaderboard, Leaderboard: entries}, readMeta(meta, start))
}

// Overview godoc
// @Summary Composite organization dashboard
// @Tags analytics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /analytics/overview [get]
func (h *AnalyticsHandler) Overview(c *gin.Context) {
	start := time.Now()
	org, err := organizationID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	r, err := parseRange(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	summary, meta, err := h.aggregator.Overview(c.Request.Context(), service.OverviewQuery{OrganizationID: org, Range: r})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, models.MetricResult{Kind: models.MetricOverview, Overview: summary}, readMeta(meta, start))
}

// System godoc
// @Summary Engine instrumentation snapshot
// @Tags analytics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /analytics/system [get]
func (h *AnalyticsHandler) System(c *gin.Context) {
	if _, err := organizationID(c); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, h.instr.Snapshot())
}

// Export godoc
// @Summary Download a metric series as CSV or PDF
// @Tags analytics
// @Produce octet-stream
// @Param metric query string true "pulse or compliance"
// @Param format query string false "csv or pdf" default(csv)
// @Router /analytics/export [get]
func (h *AnalyticsHandler) Export(c *gin.Context) {
	if !h.exportsEnabled || h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "exports are disabled"))
		return
	}
	q, err := metricQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.exports.Export(c.Request.Context(), service.ExportQuery{
		Metric: c.Query("metric"),
		Format: c.DefaultQuery("format", service.FormatCSV),
		Kind:   models.MetricType(c.Query("kind")),
		Query:  q,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+file.FileName+`"`)
	c.Data(http.StatusOK, file.ContentType, file.Content)
}
