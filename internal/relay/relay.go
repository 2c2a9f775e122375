// Package relay is the long-lived process between tab-side detectors and
// the backend ingestion endpoint. It owns the per-tab state map and the
// credential cache, both constructed once at startup and injected, and
// forwards activities over HTTP with bounded retries.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"immersia-backend/internal/channel"
	"immersia-backend/internal/contentkey"
	"immersia-backend/internal/models"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 2 * time.Second
)

// ActivityRelay turns semantic playback events into ingestion requests.
type ActivityRelay struct {
	baseURL    string
	resolver   *contentkey.Registry
	creds      *CredentialCache
	httpClient *http.Client

	maxAttempts    int
	initialBackoff time.Duration
}

type ActivityRelayConfig struct {
	BaseURL        string
	Resolver       *contentkey.Registry
	Credentials    *CredentialCache
	HTTPClient     *http.Client
	MaxAttempts    int
	InitialBackoff time.Duration
}

func NewActivityRelay(cfg ActivityRelayConfig) *ActivityRelay {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.Resolver == nil {
		cfg.Resolver = contentkey.DefaultRegistry()
	}
	return &ActivityRelay{
		baseURL:        cfg.BaseURL,
		resolver:       cfg.Resolver,
		creds:          cfg.Credentials,
		httpClient:     cfg.HTTPClient,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
	}
}

// Post hands the event to a background delivery goroutine and returns
// immediately; the relay loop is never blocked on the network.
func (r *ActivityRelay) Post(event models.PlaybackEvent) {
	go func() {
		outcome := r.Deliver(context.Background(), event)
		switch outcome {
		case OutcomeDelivered:
		case OutcomeSkippedNoKey, OutcomeSkippedNoBaseURL:
			log.Printf("relay: %s event skipped (%s)", event.Event, outcome)
		default:
			log.Printf("relay: %s event not recorded (%s)", event.Event, outcome)
		}
	}()
}

// Deliver synchronously posts one event, retrying transient failures with
// doubling backoff until attempts are exhausted. Exhausted events are
// written to the dead-letter log. Never returns an error: every failure
// mode degrades to "activity not recorded".
func (r *ActivityRelay) Deliver(ctx context.Context, event models.PlaybackEvent) Outcome {
	if r.baseURL == "" {
		return OutcomeSkippedNoBaseURL
	}

	candidate := event.URL
	if event.VideoID != nil && *event.VideoID != "" {
		candidate = *event.VideoID
	}
	contentKey, ok := r.resolver.Resolve(event.Source, candidate)
	if !ok {
		return OutcomeSkippedNoKey
	}

	activity := models.ContentActivity{
		Source:       event.Source,
		ActivityType: models.ActivityTypeFor(event.Event),
		ContentKey:   contentKey,
		OccurredAt:   event.OccurredAtMs,
	}
	if event.URL != "" {
		url := event.URL
		activity.URL = &url
	}

	body, err := json.Marshal(activity)
	if err != nil {
		log.Printf("relay: encoding activity failed: %v", err)
		return OutcomeDeadLettered
	}

	backoff := r.initialBackoff
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		outcome, retryable := r.attempt(ctx, body)
		if !retryable {
			return outcome
		}
		if attempt == r.maxAttempts {
			break
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			r.deadLetter(activity)
			return OutcomeDeadLettered
		}
		backoff *= 2
	}

	r.deadLetter(activity)
	return OutcomeDeadLettered
}

// attempt performs one POST. retryable is true for network faults and
// server errors; client errors are final.
func (r *ActivityRelay) attempt(ctx context.Context, body []byte) (outcome Outcome, retryable bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/extension/record-content-activity", bytes.NewReader(body))
	if err != nil {
		log.Printf("relay: building request failed: %v", err)
		return OutcomeDeadLettered, false
	}
	req.Header.Set("Content-Type", "application/json")

	// Missing credential does not block the request; the server rejects
	// unauthenticated posts itself.
	if r.creds != nil {
		if token, ok := r.creds.GetToken(ctx); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		log.Printf("relay: activity post failed: %v", err)
		return OutcomeDeadLettered, true
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var recorded models.RecordActivityResponse
		if err := json.NewDecoder(resp.Body).Decode(&recorded); err != nil {
			// The activity is persisted; only the response was unreadable.
			log.Printf("relay: decoding ingestion response failed: %v", err)
			return OutcomeDelivered, false
		}
		log.Printf("relay: recorded %s for %s", recorded.ActivityType, recorded.ContentKey)
		return OutcomeDelivered, false
	case resp.StatusCode >= 500:
		log.Printf("relay: ingestion returned %d, will retry", resp.StatusCode)
		return OutcomeDeadLettered, true
	default:
		log.Printf("relay: ingestion rejected activity with %d", resp.StatusCode)
		return OutcomeRejected, false
	}
}

func (r *ActivityRelay) deadLetter(activity models.ContentActivity) {
	encoded, _ := json.Marshal(activity)
	log.Printf("relay: dead-letter %s", encoded)
}

// Relay is the event loop tying the channel, the tab state store, the
// credential cache, and the activity relay together. One goroutine runs the
// loop; it serializes all tab-state mutations.
type Relay struct {
	tabs     *TabStateStore
	activity *ActivityRelay
	events   <-chan channel.Envelope
	removals chan string
}

func New(tabs *TabStateStore, activity *ActivityRelay, events <-chan channel.Envelope) *Relay {
	return &Relay{
		tabs:     tabs,
		activity: activity,
		events:   events,
		removals: make(chan string, 16),
	}
}

// RemoveTab notifies the loop that a tab is gone. Safe from any goroutine.
func (r *Relay) RemoveTab(tabID string) {
	select {
	case r.removals <- tabID:
	default:
		// Removal queue full; close the session inline rather than lose it.
		r.closeTab(tabID)
	}
}

// Run consumes channel envelopes and tab removals until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-r.events:
			r.tabs.OnEvent(env.TabID, env.Event)
			r.activity.Post(env.Event)
		case tabID := <-r.removals:
			r.closeTab(tabID)
		}
	}
}

func (r *Relay) closeTab(tabID string) {
	if synthetic := r.tabs.OnTabRemoved(tabID); synthetic != nil {
		log.Printf("relay: tab %s removed mid-session, synthesizing end", tabID)
		r.activity.Post(*synthetic)
	}
}
