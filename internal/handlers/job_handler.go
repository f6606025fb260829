package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/backend/internal/middleware"
	"github.com/carebridge/backend/internal/models"
	"github.com/carebridge/backend/internal/services"
)

// Lifecycle is the job lifecycle surface the handler exposes over HTTP.
type Lifecycle interface {
	CreateDraft(ctx context.Context, actor models.Actor, in services.CreateDraftInput) (*models.JobPost, error)
	Publish(ctx context.Context, jobPostID uuid.UUID, actor models.Actor) (*models.JobPost, error)
	Accept(ctx context.Context, jobPostID uuid.UUID, actor models.Actor) (*models.JobInstance, error)
	CheckIn(ctx context.Context, jobInstanceID uuid.UUID, actor models.Actor, sample *models.GPSSample) (*models.JobInstance, error)
	CheckOut(ctx context.Context, jobInstanceID uuid.UUID, actor models.Actor, sample *models.GPSSample) (*models.JobInstance, error)
	Cancel(ctx context.Context, jobPostID uuid.UUID, actor models.Actor, reason string) (*models.JobPost, error)
}

// PostReader is the read-only post surface for GET endpoints.
type PostReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.JobPost, error)
	ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]*models.JobPost, error)
}

// EventReader lists a job instance's timeline.
type EventReader interface {
	ListByInstance(ctx context.Context, jobInstanceID uuid.UUID) ([]*models.JobEvent, error)
}

// JobHandler serves /v1/jobs and /v1/instances endpoints.
type JobHandler struct {
	Lifecycle Lifecycle
	Posts     PostReader
	Events    EventReader
	Logger    *slog.Logger
}

type createJobRequest struct {
	Title              string          `json:"title"`
	Category           string          `json:"category"`
	Details            json.RawMessage `json:"details"`
	ScheduledStart     time.Time       `json:"scheduled_start"`
	ScheduledEnd       time.Time       `json:"scheduled_end"`
	Address            string          `json:"address"`
	Latitude           float64         `json:"latitude"`
	Longitude          float64         `json:"longitude"`
	GeofenceRadiusM    int             `json:"geofence_radius_m"`
	HourlyRateCents    int64           `json:"hourly_rate_cents"`
	TotalHours         int             `json:"total_hours"`
	PlatformFeePercent int             `json:"platform_fee_percent"`
	RiskLevel          string          `json:"risk_level"`
	RequiredTrustLevel int             `json:"required_trust_level"`
	RequiredCerts      []string        `json:"required_certifications"`
	ReservedProviderID *uuid.UUID      `json:"reserved_provider_id"`
}

type gpsSampleRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	AccuracyM float64  `json:"accuracy_m"`
}

func (r *gpsSampleRequest) sample() *models.GPSSample {
	if r == nil || r.Latitude == nil || r.Longitude == nil {
		return nil
	}
	return &models.GPSSample{Latitude: *r.Latitude, Longitude: *r.Longitude, AccuracyM: r.AccuracyM}
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// CreateJob handles POST /v1/jobs.
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	post, err := h.Lifecycle.CreateDraft(r.Context(), actor, services.CreateDraftInput{
		Title:              req.Title,
		Category:           req.Category,
		Details:            req.Details,
		ScheduledStart:     req.ScheduledStart,
		ScheduledEnd:       req.ScheduledEnd,
		Address:            req.Address,
		Latitude:           req.Latitude,
		Longitude:          req.Longitude,
		GeofenceRadiusM:    req.GeofenceRadiusM,
		HourlyRateCents:    req.HourlyRateCents,
		TotalHours:         req.TotalHours,
		PlatformFeePercent: req.PlatformFeePercent,
		RiskLevel:          req.RiskLevel,
		RequiredTrustLevel: req.RequiredTrustLevel,
		RequiredCerts:      req.RequiredCerts,
		ReservedProviderID: req.ReservedProviderID,
	})
	if err != nil {
		writeAppError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

// GetJob handles GET /v1/jobs/{id}.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, _, ok := extractID(r, "/v1/jobs/")
	if !ok {
		http.Error(w, `{"error":"invalid job id"}`, http.StatusBadRequest)
		return
	}
	post, err := h.Posts.GetByID(r.Context(), id)
	if err != nil {
		writeAppError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// ListJobs handles GET /v1/jobs — the caller's own posts.
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	posts, err := h.Posts.ListByRequester(r.Context(), actor.ID)
	if err != nil {
		writeAppError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

// JobAction handles POST /v1/jobs/{id}/{action} for publish, accept and
// cancel.
func (h *JobHandler) JobAction(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, action, ok := extractID(r, "/v1/jobs/")
	if !ok {
		http.Error(w, `{"error":"invalid job id"}`, http.StatusBadRequest)
		return
	}
	switch action {
	case "publish":
		post, err := h.Lifecycle.Publish(r.Context(), id, actor)
		if err != nil {
			writeAppError(w, h.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, post)
	case "accept":
		instance, err := h.Lifecycle.Accept(r.Context(), id, actor)
		if err != nil {
			writeAppError(w, h.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, instance)
	case "cancel":
		var req cancelRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		post, err := h.Lifecycle.Cancel(r.Context(), id, actor, req.Reason)
		if err != nil {
			writeAppError(w, h.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, post)
	default:
		http.Error(w, `{"error":"unknown action"}`, http.StatusNotFound)
	}
}

// InstanceAction handles POST /v1/instances/{id}/{action} for check-in and
// check-out, and GET /v1/instances/{id}/events.
func (h *JobHandler) InstanceAction(w http.ResponseWriter, r *http.Request) {
	id, action, ok := extractID(r, "/v1/instances/")
	if !ok {
		http.Error(w, `{"error":"invalid instance id"}`, http.StatusBadRequest)
		return
	}
	if r.Method == http.MethodGet && action == "events" {
		events, err := h.Events.ListByInstance(r.Context(), id)
		if err != nil {
			writeAppError(w, h.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, events)
		return
	}

	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req gpsSampleRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	switch action {
	case "check-in":
		instance, err := h.Lifecycle.CheckIn(r.Context(), id, actor, req.sample())
		if err != nil {
			writeAppError(w, h.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, instance)
	case "check-out":
		instance, err := h.Lifecycle.CheckOut(r.Context(), id, actor, req.sample())
		if err != nil {
			writeAppError(w, h.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, instance)
	default:
		http.Error(w, `{"error":"unknown action"}`, http.StatusNotFound)
	}
}

// extractID parses "{id}" or "{id}/{rest}" after the prefix.
func extractID(r *http.Request, prefix string) (uuid.UUID, string, bool) {
	path := strings.TrimPrefix(r.URL.Path, prefix)
	parts := strings.SplitN(path, "/", 2)
	id, err := uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, "", false
	}
	rest := ""
	if len(parts) == 2 {
		rest = strings.Trim(parts[1], "/")
	}
	return id, rest, true
}
