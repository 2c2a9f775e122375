package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"immersia-backend/internal/channel"
	"immersia-backend/internal/models"
)

func okIngestHandler(received *[]models.ContentActivity, headers *[]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var activity models.ContentActivity
		json.NewDecoder(r.Body).Decode(&activity)
		if received != nil {
			*received = append(*received, activity)
		}
		if headers != nil {
			*headers = append(*headers, r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(models.RecordActivityResponse{
			Activity: models.Activity{
				Source:       activity.Source,
				ActivityType: activity.ActivityType,
				ContentKey:   activity.ContentKey,
				OccurredAt:   activity.OccurredAt,
			},
		})
	}
}

func TestDeliverSkipsUnresolvedContentKey(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	r := NewActivityRelay(ActivityRelayConfig{BaseURL: srv.URL, HTTPClient: srv.Client()})

	event := models.PlaybackEvent{
		Source: models.SourceYouTube,
		Event:  models.EventStart,
		URL:    "https://example.com/not-a-video",
	}

	if outcome := r.Deliver(context.Background(), event); outcome != OutcomeSkippedNoKey {
		t.Fatalf("Expected skip, got %s", outcome)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Error("Expected no request for unresolved content key")
	}
}

func TestDeliverSkipsWithoutBaseURL(t *testing.T) {
	r := NewActivityRelay(ActivityRelayConfig{})
	if outcome := r.Deliver(context.Background(), videoEvent(models.EventStart)); outcome != OutcomeSkippedNoBaseURL {
		t.Fatalf("Expected base URL skip, got %s", outcome)
	}
}

func TestDeliverMapsProgressToHeartbeat(t *testing.T) {
	var received []models.ContentActivity
	srv := httptest.NewServer(okIngestHandler(&received, nil))
	defer srv.Close()

	r := NewActivityRelay(ActivityRelayConfig{BaseURL: srv.URL, HTTPClient: srv.Client()})

	if outcome := r.Deliver(context.Background(), videoEvent(models.EventProgress)); outcome != OutcomeDelivered {
		t.Fatalf("Expected delivery, got %s", outcome)
	}

	if len(received) != 1 {
		t.Fatalf("Expected 1 activity, got %d", len(received))
	}
	if received[0].ActivityType != models.ActivityHeartbeat {
		t.Errorf("Expected heartbeat, got %q", received[0].ActivityType)
	}
	if received[0].ContentKey != "youtube:abc123def45" {
		t.Errorf("Expected qualified content key, got %q", received[0].ContentKey)
	}
	if received[0].OccurredAt != 1000 {
		t.Errorf("Expected occurredAt 1000, got %d", received[0].OccurredAt)
	}
}

func TestDeliverAttachesBearerWhenAvailable(t *testing.T) {
	var headers []string
	srv := httptest.NewServer(okIngestHandler(nil, &headers))
	defer srv.Close()

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token":"tok-xyz"}`))
	}))
	defer tokenSrv.Close()

	creds := NewCredentialCache(tokenSrv.URL, "", tokenSrv.Client())
	r := NewActivityRelay(ActivityRelayConfig{BaseURL: srv.URL, HTTPClient: srv.Client(), Credentials: creds})

	r.Deliver(context.Background(), videoEvent(models.EventStart))

	if len(headers) != 1 || headers[0] != "Bearer tok-xyz" {
		t.Errorf("Expected bearer header, got %v", headers)
	}
}

func TestDeliverPostsWithoutCredential(t *testing.T) {
	var headers []string
	srv := httptest.NewServer(okIngestHandler(nil, &headers))
	defer srv.Close()

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer tokenSrv.Close()

	creds := NewCredentialCache(tokenSrv.URL, "", tokenSrv.Client())
	r := NewActivityRelay(ActivityRelayConfig{BaseURL: srv.URL, HTTPClient: srv.Client(), Credentials: creds})

	if outcome := r.Deliver(context.Background(), videoEvent(models.EventStart)); outcome != OutcomeDelivered {
		t.Fatalf("Expected unauthenticated post to go through, got %s", outcome)
	}
	if len(headers) != 1 || headers[0] != "" {
		t.Errorf("Expected no Authorization header, got %v", headers)
	}
}

func TestDeliverClientErrorIsFinal(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	r := NewActivityRelay(ActivityRelayConfig{BaseURL: srv.URL, HTTPClient: srv.Client(), InitialBackoff: time.Millisecond})

	if outcome := r.Deliver(context.Background(), videoEvent(models.EventStart)); outcome != OutcomeRejected {
		t.Fatalf("Expected rejection, got %s", outcome)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("Expected no retry on client error, got %d attempts", n)
	}
}

func TestDeliverRetriesServerErrorsThenDeadLetters(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := NewActivityRelay(ActivityRelayConfig{
		BaseURL:        srv.URL,
		HTTPClient:     srv.Client(),
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
	})

	if outcome := r.Deliver(context.Background(), videoEvent(models.EventStart)); outcome != OutcomeDeadLettered {
		t.Fatalf("Expected dead letter, got %s", outcome)
	}
	if n := atomic.LoadInt32(&hits); n != 3 {
		t.Errorf("Expected 3 attempts, got %d", n)
	}
}

func TestDeliverRecoversOnRetry(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		okIngestHandler(nil, nil)(w, r)
	}))
	defer srv.Close()

	r := NewActivityRelay(ActivityRelayConfig{
		BaseURL:        srv.URL,
		HTTPClient:     srv.Client(),
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
	})

	if outcome := r.Deliver(context.Background(), videoEvent(models.EventStart)); outcome != OutcomeDelivered {
		t.Fatalf("Expected recovery on retry, got %s", outcome)
	}
	if n := atomic.LoadInt32(&hits); n != 2 {
		t.Errorf("Expected 2 attempts, got %d", n)
	}
}

func TestRelayLoopClosesSessionOnTabRemoval(t *testing.T) {
	var mu sync.Mutex
	var received []models.ContentActivity
	posted := make(chan struct{}, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var activity models.ContentActivity
		json.NewDecoder(r.Body).Decode(&activity)
		mu.Lock()
		received = append(received, activity)
		mu.Unlock()
		json.NewEncoder(w).Encode(models.RecordActivityResponse{})
		posted <- struct{}{}
	}))
	defer srv.Close()

	tabs := NewTabStateStore()
	activityRelay := NewActivityRelay(ActivityRelayConfig{BaseURL: srv.URL, HTTPClient: srv.Client()})
	events := channel.New(16)
	loop := New(tabs, activityRelay, events.Envelopes())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	events.ForTab("tab-1").Send(videoEvent(models.EventStart))
	waitFor(t, posted)

	loop.RemoveTab("tab-1")
	waitFor(t, posted)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("Expected start + synthetic end, got %d activities", len(received))
	}
	if received[1].ActivityType != models.ActivityEnd {
		t.Errorf("Expected synthetic end activity, got %q", received[1].ActivityType)
	}
}

func TestRelayLoopQuietRemovalForPausedTab(t *testing.T) {
	posted := make(chan struct{}, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.RecordActivityResponse{})
		posted <- struct{}{}
	}))
	defer srv.Close()

	tabs := NewTabStateStore()
	activityRelay := NewActivityRelay(ActivityRelayConfig{BaseURL: srv.URL, HTTPClient: srv.Client()})
	events := channel.New(16)
	loop := New(tabs, activityRelay, events.Envelopes())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	events.ForTab("tab-1").Send(videoEvent(models.EventStart))
	waitFor(t, posted)
	events.ForTab("tab-1").Send(videoEvent(models.EventPause))
	waitFor(t, posted)

	loop.RemoveTab("tab-1")

	select {
	case <-posted:
		t.Error("Expected no activity for removal of a paused tab")
	case <-time.After(100 * time.Millisecond):
	}
}

func waitFor(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for activity post")
	}
}
