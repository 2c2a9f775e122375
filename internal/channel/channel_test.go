package channel

import (
	"testing"

	"immersia-backend/internal/models"
)

func TestSendStampsTabIdentity(t *testing.T) {
	ch := New(4)

	ch.ForTab("tab-1").Send(models.PlaybackEvent{Source: models.SourceYouTube, Event: models.EventStart})
	ch.ForTab("tab-2").Send(models.PlaybackEvent{Source: models.SourceYouTube, Event: models.EventPause})

	env := <-ch.Envelopes()
	if env.TabID != "tab-1" {
		t.Errorf("Expected tab-1, got %q", env.TabID)
	}
	if env.Event.Event != models.EventStart {
		t.Errorf("Expected start event, got %q", env.Event.Event)
	}

	env = <-ch.Envelopes()
	if env.TabID != "tab-2" {
		t.Errorf("Expected tab-2, got %q", env.TabID)
	}
}

func TestSendNeverBlocksWhenFull(t *testing.T) {
	ch := New(2)
	sink := ch.ForTab("tab-1")

	// Nothing is consuming; sends beyond the buffer must drop, not block.
	for i := 0; i < 10; i++ {
		sink.Send(models.PlaybackEvent{Source: models.SourceYouTube, Event: models.EventProgress})
	}

	if got := len(ch.envelopes); got != 2 {
		t.Errorf("Expected 2 buffered envelopes, got %d", got)
	}
}
