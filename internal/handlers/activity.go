package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"immersia-backend/internal/contentkey"
	"immersia-backend/internal/models"
)

// ActivityStore persists accepted activities.
type ActivityStore interface {
	Create(ctx context.Context, a *models.Activity) error
}

// Enricher resolves best-effort response enrichment. Nil results mean
// degraded enrichment, never a failed request.
type Enricher interface {
	Enrich(ctx context.Context, userID uuid.UUID, contentKey string) (*models.ContentLabel, *string)
}

// IdentityResolver verifies the bearer credential on a request.
type IdentityResolver interface {
	ResolveUserID(r *http.Request) (uuid.UUID, error)
}

// ActivityPublisher fans an accepted activity out to the user's live feed.
type ActivityPublisher interface {
	PublishActivity(ctx context.Context, userID uuid.UUID, activity models.Activity)
}

type ActivityHandler struct {
	store     ActivityStore
	enricher  Enricher
	identity  IdentityResolver
	publisher ActivityPublisher
	sources   *contentkey.Registry
}

func NewActivityHandler(store ActivityStore, enricher Enricher, identity IdentityResolver, publisher ActivityPublisher, sources *contentkey.Registry) *ActivityHandler {
	if sources == nil {
		sources = contentkey.DefaultRegistry()
	}
	return &ActivityHandler{
		store:     store,
		enricher:  enricher,
		identity:  identity,
		publisher: publisher,
		sources:   sources,
	}
}

var allowedActivityTypes = map[string]bool{
	models.ActivityHeartbeat: true,
	models.ActivityStart:     true,
	models.ActivityPause:     true,
	models.ActivityEnd:       true,
}

// Record is the ingestion pipeline: schema validation, identity resolution,
// persistence, best-effort enrichment, response. Validation runs before
// identity so malformed bodies fail fast regardless of credentials.
func (h *ActivityHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req models.ContentActivity
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if fields := h.validate(&req); len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", fields, r))
		return
	}

	userID, err := h.identity.ResolveUserID(r)
	if err != nil {
		// Deliberately unspecific; the caller learns nothing about why.
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", "Invalid or missing credential", r))
		return
	}

	activity := &models.Activity{
		UserID:       userID,
		Source:       req.Source,
		ActivityType: req.ActivityType,
		ContentKey:   req.ContentKey,
		URL:          req.URL,
		OccurredAt:   req.OccurredAt,
	}

	if err := h.store.Create(r.Context(), activity); err != nil {
		log.Printf("activity: persist failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to record activity", r))
		return
	}

	label, targetLanguage := h.enricher.Enrich(r.Context(), userID, activity.ContentKey)

	if h.publisher != nil {
		h.publisher.PublishActivity(r.Context(), userID, *activity)
	}

	writeJSON(w, http.StatusOK, models.RecordActivityResponse{
		Activity:              *activity,
		ContentLabel:          label,
		CurrentTargetLanguage: targetLanguage,
	})
}

func (h *ActivityHandler) validate(req *models.ContentActivity) map[string]string {
	fields := make(map[string]string)

	if !h.sources.Supported(req.Source) {
		fields["source"] = "Unknown source"
	}
	if !allowedActivityTypes[req.ActivityType] {
		fields["activityType"] = "Must be heartbeat, start, pause, or end"
	}
	if req.ContentKey == "" {
		fields["contentKey"] = "Content key is required"
	}
	if req.URL != nil && *req.URL != "" {
		parsed, err := url.Parse(*req.URL)
		if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			fields["url"] = "Must be a valid http(s) URL"
		}
	}
	if req.OccurredAt < 0 {
		fields["occurredAt"] = "Must be a non-negative timestamp"
	}

	return fields
}
