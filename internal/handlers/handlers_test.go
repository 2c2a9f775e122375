package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"immersia-backend/internal/middleware"
	"immersia-backend/internal/models"
)

// ─── Fakes ───

type fakeStore struct {
	created []models.Activity
}

func (s *fakeStore) Create(ctx context.Context, a *models.Activity) error {
	a.ID = uuid.New()
	s.created = append(s.created, *a)
	return nil
}

type fakeEnricher struct {
	label *models.ContentLabel
	lang  *string
}

func (e *fakeEnricher) Enrich(ctx context.Context, userID uuid.UUID, contentKey string) (*models.ContentLabel, *string) {
	return e.label, e.lang
}

type fakePublisher struct {
	published []models.Activity
}

func (p *fakePublisher) PublishActivity(ctx context.Context, userID uuid.UUID, activity models.Activity) {
	p.published = append(p.published, activity)
}

func newTestHandler(store *fakeStore, enricher *fakeEnricher, publisher *fakePublisher) (*ActivityHandler, *middleware.JWTAuth) {
	jwtAuth := middleware.NewJWTAuth("test-secret")
	return NewActivityHandler(store, enricher, jwtAuth, publisher, nil), jwtAuth
}

func recordRequest(t *testing.T, body interface{}, token string) *http.Request {
	t.Helper()
	jsonBody, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/extension/record-content-activity", bytes.NewReader(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

// ─── Ingestion Pipeline Tests ───

func TestRecordActivity_Accepted(t *testing.T) {
	store := &fakeStore{}
	lang := "de"
	enricher := &fakeEnricher{
		label: &models.ContentLabel{ContentKey: "youtube:abc123", Title: "Test Video"},
		lang:  &lang,
	}
	publisher := &fakePublisher{}
	handler, jwtAuth := newTestHandler(store, enricher, publisher)

	userID := uuid.New()
	token, err := jwtAuth.GenerateToken(userID, "user@example.com")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	body := map[string]interface{}{
		"source":       "youtube",
		"activityType": "start",
		"contentKey":   "youtube:abc123",
		"occurredAt":   1000,
	}
	rr := httptest.NewRecorder()
	handler.Record(rr, recordRequest(t, body, token))

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp models.RecordActivityResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if resp.ContentKey != "youtube:abc123" {
		t.Errorf("Expected contentKey echoed, got %q", resp.ContentKey)
	}
	if resp.ActivityType != "start" {
		t.Errorf("Expected activityType 'start', got %q", resp.ActivityType)
	}
	if resp.OccurredAt != 1000 {
		t.Errorf("Expected occurredAt 1000, got %d", resp.OccurredAt)
	}
	if resp.UserID != userID {
		t.Errorf("Expected userId resolved from token")
	}
	if resp.ContentLabel == nil || resp.ContentLabel.Title != "Test Video" {
		t.Errorf("Expected enrichment label, got %v", resp.ContentLabel)
	}
	if resp.CurrentTargetLanguage == nil || *resp.CurrentTargetLanguage != "de" {
		t.Errorf("Expected target language 'de', got %v", resp.CurrentTargetLanguage)
	}

	if len(store.created) != 1 {
		t.Fatalf("Expected 1 persisted activity, got %d", len(store.created))
	}
	if len(publisher.published) != 1 {
		t.Errorf("Expected activity published to the feed")
	}
}

func TestRecordActivity_NullEnrichmentStillSucceeds(t *testing.T) {
	store := &fakeStore{}
	handler, jwtAuth := newTestHandler(store, &fakeEnricher{}, &fakePublisher{})

	token, _ := jwtAuth.GenerateToken(uuid.New(), "user@example.com")
	body := map[string]interface{}{
		"source":       "youtube",
		"activityType": "heartbeat",
		"contentKey":   "youtube:abc123",
	}
	rr := httptest.NewRecorder()
	handler.Record(rr, recordRequest(t, body, token))

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 with null enrichment, got %d", rr.Code)
	}

	var resp map[string]interface{}
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp["contentLabel"] != nil {
		t.Errorf("Expected null contentLabel, got %v", resp["contentLabel"])
	}
	if resp["currentTargetLanguage"] != nil {
		t.Errorf("Expected null currentTargetLanguage, got %v", resp["currentTargetLanguage"])
	}
}

func TestRecordActivity_MissingBearerRejected(t *testing.T) {
	store := &fakeStore{}
	handler, _ := newTestHandler(store, &fakeEnricher{}, &fakePublisher{})

	body := map[string]interface{}{
		"source":       "youtube",
		"activityType": "start",
		"contentKey":   "youtube:abc123",
		"occurredAt":   1000,
	}
	rr := httptest.NewRecorder()
	handler.Record(rr, recordRequest(t, body, ""))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", rr.Code)
	}
	if len(store.created) != 0 {
		t.Error("Expected no record persisted without a credential")
	}
}

func TestRecordActivity_InvalidTokenRejected(t *testing.T) {
	store := &fakeStore{}
	handler, _ := newTestHandler(store, &fakeEnricher{}, &fakePublisher{})

	body := map[string]interface{}{
		"source":       "youtube",
		"activityType": "start",
		"contentKey":   "youtube:abc123",
	}
	rr := httptest.NewRecorder()
	handler.Record(rr, recordRequest(t, body, "not-a-jwt"))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", rr.Code)
	}
	if len(store.created) != 0 {
		t.Error("Expected no record persisted with an invalid credential")
	}
}

func TestRecordActivity_SchemaValidation(t *testing.T) {
	tests := []struct {
		name  string
		body  map[string]interface{}
		field string
	}{
		{"empty content key", map[string]interface{}{
			"source": "youtube", "activityType": "start", "contentKey": "",
		}, "contentKey"},
		{"missing content key", map[string]interface{}{
			"source": "youtube", "activityType": "start",
		}, "contentKey"},
		{"unknown source", map[string]interface{}{
			"source": "vimeo", "activityType": "start", "contentKey": "vimeo:123456",
		}, "source"},
		{"unknown activity type", map[string]interface{}{
			"source": "youtube", "activityType": "seeked", "contentKey": "youtube:abc123",
		}, "activityType"},
		{"malformed url", map[string]interface{}{
			"source": "youtube", "activityType": "start", "contentKey": "youtube:abc123",
			"url": "::not-a-url",
		}, "url"},
		{"negative timestamp", map[string]interface{}{
			"source": "youtube", "activityType": "start", "contentKey": "youtube:abc123",
			"occurredAt": -5,
		}, "occurredAt"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeStore{}
			handler, jwtAuth := newTestHandler(store, &fakeEnricher{}, &fakePublisher{})
			token, _ := jwtAuth.GenerateToken(uuid.New(), "user@example.com")

			rr := httptest.NewRecorder()
			handler.Record(rr, recordRequest(t, tc.body, token))

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d", rr.Code)
			}
			if len(store.created) != 0 {
				t.Error("Expected no record persisted on validation failure")
			}

			var resp models.ErrorResponse
			json.NewDecoder(rr.Body).Decode(&resp)
			if _, ok := resp.Error.Fields[tc.field]; !ok {
				t.Errorf("Expected field error for %q, got %v", tc.field, resp.Error.Fields)
			}
		})
	}
}

func TestRecordActivity_ValidationRunsBeforeIdentity(t *testing.T) {
	store := &fakeStore{}
	handler, _ := newTestHandler(store, &fakeEnricher{}, &fakePublisher{})

	// Malformed body and no token: schema wins.
	body := map[string]interface{}{
		"source": "youtube", "activityType": "start", "contentKey": "",
	}
	rr := httptest.NewRecorder()
	handler.Record(rr, recordRequest(t, body, ""))

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 before identity resolution, got %d", rr.Code)
	}
}

func TestRecordActivity_MalformedJSON(t *testing.T) {
	handler, _ := newTestHandler(&fakeStore{}, &fakeEnricher{}, &fakePublisher{})

	req := httptest.NewRequest(http.MethodPost, "/extension/record-content-activity", bytes.NewReader([]byte("{nope")))
	rr := httptest.NewRecorder()
	handler.Record(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed JSON, got %d", rr.Code)
	}
}
