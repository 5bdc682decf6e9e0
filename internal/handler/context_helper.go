package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/pulse-metrics-api/internal/middleware"
	"github.com/noah-isme/pulse-metrics-api/internal/models"
	"github.com/noah-isme/pulse-metrics-api/internal/service"
	appErrors "github.com/noah-isme/pulse-metrics-api/pkg/errors"
)

func organizationID(c *gin.Context) (string, error) {
	id := c.GetString(middleware.ContextOrganizationID)
	if id == "" {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "missing organization context")
	}
	return id, nil
}

// parseTime accepts RFC3339 instants and plain dates.
func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrInvalidDateRange, "dates must be RFC3339 or YYYY-MM-DD")
	}
	return t.UTC(), nil
}

func parseRange(c *gin.Context) (models.DateRange, error) {
	var r models.DateRange
	if raw := c.Query("from"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			return r, err
		}
		r.From = t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			return r, err
		}
		r.To = t
	}
	if r.From.IsZero() != r.To.IsZero() {
		return r, appErrors.Clone(appErrors.ErrInvalidDateRange, "from and to must be provided together")
	}
	return r, nil
}

func parseLimit(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "limit must be a non-negative integer")
	}
	return limit, nil
}

func metricQuery(c *gin.Context) (service.MetricQuery, error) {
	org, err := organizationID(c)
	if err != nil {
		return service.MetricQuery{}, err
	}
	r, err := parseRange(c)
	if err != nil {
		return service.MetricQuery{}, err
	}
	return service.MetricQuery{
		OrganizationID: org,
		Scope:          models.ScopeType(c.DefaultQuery("scope", string(models.ScopeOrganization))),
		EntityID:       c.Query("id"),
		Period:         models.Period(c.Query("period")),
		Range:          r,
		Strategy:       c.GetHeader("X-Read-Strategy"),
	}, nil
}

func readMeta(meta service.ReadMeta, start time.Time) map[string]interface{} {
	return map[string]interface{}{
		"read_path":          meta.ReadPath,
		"cache_hit":          meta.CacheHit,
		"processing_time_ms": time.Since(start).Milliseconds(),
	}
}
