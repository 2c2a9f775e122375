package models

import (
	"time"

	"github.com/google/uuid"
)

// Sources of tracked media. Only YouTube ships today; new sources are added
// to the contentkey registry alongside a detector binding.
const (
	SourceYouTube = "youtube"
)

// Playback event types emitted by a detector.
const (
	EventStart    = "start"
	EventPause    = "pause"
	EventEnd      = "end"
	EventProgress = "progress"
)

// Activity types accepted by the ingestion endpoint. "progress" events map
// to "heartbeat"; everything else passes through unchanged.
const (
	ActivityHeartbeat = "heartbeat"
	ActivityStart     = "start"
	ActivityPause     = "pause"
	ActivityEnd       = "end"
)

// PlaybackEvent is one detected transition or heartbeat tick inside a tab.
// Immutable once constructed.
type PlaybackEvent struct {
	Source       string   `json:"source"`
	Event        string   `json:"event"`
	URL          string   `json:"url"`
	Title        *string  `json:"title,omitempty"`
	VideoID      *string  `json:"videoId,omitempty"`
	OccurredAtMs int64    `json:"occurredAtMs"`
	PositionSec  *int     `json:"positionSec,omitempty"`
	DurationSec  *int     `json:"durationSec,omitempty"`
	Rate         *float64 `json:"rate,omitempty"`
}

// ActivityTypeFor maps a playback event type to its ingestion activity type.
func ActivityTypeFor(event string) string {
	if event == EventProgress {
		return ActivityHeartbeat
	}
	return event
}

// ContentActivity is the wire body POSTed to the ingestion endpoint. UserID
// is resolved server-side from the bearer credential, never trusted from the
// client.
type ContentActivity struct {
	Source       string  `json:"source"`
	ActivityType string  `json:"activityType"`
	ContentKey   string  `json:"contentKey"`
	URL          *string `json:"url,omitempty"`
	OccurredAt   int64   `json:"occurredAt"`
}

// Activity is a persisted content activity row.
type Activity struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"userId"`
	Source       string    `json:"source"`
	ActivityType string    `json:"activityType"`
	ContentKey   string    `json:"contentKey"`
	URL          *string   `json:"url,omitempty"`
	OccurredAt   int64     `json:"occurredAt"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ContentLabel is the human-readable metadata cached per content key,
// used to enrich ingestion responses.
type ContentLabel struct {
	ContentKey      string    `json:"contentKey"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	DurationSeconds int       `json:"durationSeconds"`
	CaptionLangs    []string  `json:"captionLanguages,omitempty"`
	FetchedAt       time.Time `json:"fetchedAt"`
}

// RecordActivityResponse echoes the persisted record plus best-effort
// enrichment. Enrichment fields are null when lookup fails; that is not an
// error condition.
type RecordActivityResponse struct {
	Activity
	ContentLabel          *ContentLabel `json:"contentLabel"`
	CurrentTargetLanguage *string       `json:"currentTargetLanguage"`
}

// TabPlaybackState is the relay's last-known playback state for one tab.
type TabPlaybackState struct {
	LastEvent *PlaybackEvent
	IsPlaying bool
}

// ChannelMessage is the envelope sent from a tab to the relay. Tab identity
// is supplied by the transport, never by the payload.
type ChannelMessage struct {
	Type    string        `json:"type"`
	Payload PlaybackEvent `json:"payload"`
}

// MessagePlaybackEvent is the only inbound message type the relay accepts.
const MessagePlaybackEvent = "PLAYBACK_EVENT"
