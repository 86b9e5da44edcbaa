// Package handler provides the HTTP handlers of the vonatfigyelo API.
package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/vonatfigyelo/vonatfigyelo/internal/api/models"
	"github.com/vonatfigyelo/vonatfigyelo/internal/api/response"
	"github.com/vonatfigyelo/vonatfigyelo/internal/cache"
	"github.com/vonatfigyelo/vonatfigyelo/internal/provider/resilience"
)

// Pinger checks a backing store, e.g. *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OpsConfig wires the status sources of the ops endpoints. Every source is optional.
type OpsConfig struct {
	Version   string
	BuildTime string

	Upstreams *resilience.Registry
	Database  Pinger

	// Caches lists the in-process caches to report.
	Caches func() []cache.Stats

	// ScheduledJobs reports the number of live notification timers,
	// when this process runs the scheduler.
	ScheduledJobs func() int
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
	now func() time.Time
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{cfg: cfg, now: time.Now}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]any{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. It fails while the database is unreachable.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Database != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.cfg.Database.Ping(ctx); err != nil {
			response.ServiceUnavailable(w, r, "database unreachable")
			return
		}
	}
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
	})
}

// SystemStatus handles GET /v1/ops/status - upstream circuits, caches and subsystems.
// The status is DEGRADED while any upstream circuit is not closed, FAIL when the
// database is down.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(h.now()),
		Subsystems: []models.SubsystemStatus{},
		Providers:  []models.ProviderStatus{},
		Caches:     []models.CacheStatus{},
	}

	if h.cfg.Database != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := h.cfg.Database.Ping(ctx)
		cancel()
		sub := models.SubsystemStatus{Name: "postgres", Status: models.HealthStatusOK}
		if err != nil {
			detail := err.Error()
			sub.Status = models.HealthStatusFail
			sub.Detail = &detail
			status.Status = models.HealthStatusFail
		}
		status.Subsystems = append(status.Subsystems, sub)
	}

	if h.cfg.ScheduledJobs != nil {
		detail := jobsDetail(h.cfg.ScheduledJobs())
		status.Subsystems = append(status.Subsystems, models.SubsystemStatus{
			Name: "scheduler", Status: models.HealthStatusOK, Detail: &detail,
		})
	}

	if h.cfg.Upstreams != nil {
		for _, u := range h.cfg.Upstreams.All() {
			p := models.ProviderStatus{
				Provider:      u.Name,
				Status:        models.HealthStatusOK,
				Circuit:       u.State,
				Requests:      int64(u.Requests),
				Failures:      int64(u.Failures),
				LastSuccessAt: timestampPtr(u.LastSuccessAt),
				LastFailureAt: timestampPtr(u.LastFailureAt),
			}
			if u.LastError != "" {
				msg := u.LastError
				p.Message = &msg
			}
			if !u.Healthy() {
				p.Status = models.HealthStatusDegraded
				if status.Status == models.HealthStatusOK {
					status.Status = models.HealthStatusDegraded
				}
			}
			status.Providers = append(status.Providers, p)
		}
	}

	if h.cfg.Caches != nil {
		for _, c := range h.cfg.Caches() {
			status.Caches = append(status.Caches, models.CacheStatus{
				Name:       c.Name,
				Entries:    c.Entries,
				TTLSeconds: int(c.TTL.Seconds()),
			})
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func timestampPtr(t *time.Time) *models.Timestamp {
	if t == nil {
		return nil
	}
	return models.NewTimestamp(*t)
}

func jobsDetail(n int) string {
	if n == 1 {
		return "1 scheduled notification"
	}
	return strconv.Itoa(n) + " scheduled notifications"
}
