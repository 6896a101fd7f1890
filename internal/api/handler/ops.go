// Package handler provides HTTP handlers for the GreenPath companion API.
package handler

import (
	"net/http"
	"time"

	"github.com/greenpath/greenpath/internal/api/models"
	"github.com/greenpath/greenpath/internal/api/response"
	"github.com/greenpath/greenpath/internal/preferences"
	"github.com/greenpath/greenpath/internal/provider/resilience"
)

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version     string
	storage     string
	registry    *resilience.Registry
	preferences *preferences.Service
}

// NewOpsHandler creates a new OpsHandler. registry may be nil.
func NewOpsHandler(version, storage string, registry *resilience.Registry, prefs *preferences.Service) *OpsHandler {
	return &OpsHandler{
		version:     version,
		storage:     storage,
		registry:    registry,
		preferences: prefs,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status:  models.HealthStatusOK,
		Time:    models.Timestamp(time.Now()),
		Version: h.version,
	})
}

// SystemStatus handles GET /v1/ops/status - backend circuit state.
// An open circuit fails the status, a half-open one degrades it.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:    models.HealthStatusOK,
		Time:      models.Timestamp(time.Now()),
		Storage:   h.storage,
		Upstreams: []models.UpstreamStatus{},
	}
	if h.preferences != nil {
		status.PrivacyMode = h.preferences.Preferences(r.Context()).PrivacyMode
	}

	if h.registry != nil {
		for _, health := range h.registry.GetAllHealth() {
			upstream := upstreamStatus(health)
			status.Upstreams = append(status.Upstreams, upstream)
			status.Status = worse(status.Status, upstream.Status)
		}
	}

	code := http.StatusOK
	if status.Status == models.HealthStatusFail {
		code = http.StatusServiceUnavailable
	}
	response.JSON(w, r, code, status)
}

func upstreamStatus(health *resilience.Health) models.UpstreamStatus {
	u := models.UpstreamStatus{
		Name:    health.Name,
		Status:  models.HealthStatusOK,
		Circuit: health.State,
	}
	switch {
	case health.IsUnhealthy():
		u.Status = models.HealthStatusFail
	case health.IsDegraded():
		u.Status = models.HealthStatusDegraded
	}

	if health.LastSuccessAt != nil {
		ts := models.Timestamp(*health.LastSuccessAt)
		u.LastSuccessAt = &ts
	}
	if health.LastFailureAt != nil {
		ts := models.Timestamp(*health.LastFailureAt)
		u.LastFailureAt = &ts
	}
	if health.LastError != "" {
		msg := health.LastError
		u.Message = &msg
	}
	return u
}

func worse(a, b models.HealthStatus) models.HealthStatus {
	rank := map[models.HealthStatus]int{
		models.HealthStatusOK:       0,
		models.HealthStatusDegraded: 1,
		models.HealthStatusFail:     2,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
