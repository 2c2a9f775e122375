// Package channel carries playback events from tab-side detectors to the
// relay loop. Delivery is fire-and-forget: a send never blocks the producer,
// and when the buffer is full the message is dropped.
package channel

import (
	"log"

	"immersia-backend/internal/models"
)

// Envelope pairs a playback event with the identity of the tab it came
// from. The tab id is assigned by the transport, never by the payload.
type Envelope struct {
	TabID string
	Event models.PlaybackEvent
}

// Sink accepts playback events from a detector. Implementations must not
// block the caller.
type Sink interface {
	Send(event models.PlaybackEvent)
}

// EventChannel is the in-process transport between a tab and the relay.
// Each tab gets its own Sink via ForTab; the relay consumes the shared
// Envelopes stream.
type EventChannel struct {
	envelopes chan Envelope
}

func New(buffer int) *EventChannel {
	if buffer <= 0 {
		buffer = 64
	}
	return &EventChannel{envelopes: make(chan Envelope, buffer)}
}

// Envelopes is the relay-side receive stream.
func (c *EventChannel) Envelopes() <-chan Envelope {
	return c.envelopes
}

// ForTab returns a sink that stamps events with the given tab identity.
func (c *EventChannel) ForTab(tabID string) Sink {
	return tabSink{tabID: tabID, ch: c}
}

type tabSink struct {
	tabID string
	ch    *EventChannel
}

func (s tabSink) Send(event models.PlaybackEvent) {
	select {
	case s.ch.envelopes <- Envelope{TabID: s.tabID, Event: event}:
	default:
		// Relay is behind; losing a message is acceptable, blocking the
		// page's event loop is not.
		log.Printf("channel: dropping %s event for tab %s (buffer full)", event.Event, s.tabID)
	}
}
