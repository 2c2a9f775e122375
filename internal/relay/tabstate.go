package relay

import (
	"sync"
	"time"

	"immersia-backend/internal/models"
)

// TabStateStore tracks the last-known playback state per tab. It is owned
// by the relay, constructed at startup, and destroyed entries follow their
// tab's lifecycle.
type TabStateStore struct {
	mu   sync.Mutex
	tabs map[string]*models.TabPlaybackState
	now  func() time.Time
}

func NewTabStateStore() *TabStateStore {
	return &TabStateStore{
		tabs: make(map[string]*models.TabPlaybackState),
		now:  time.Now,
	}
}

// OnEvent records the event against its tab, creating unknown tabs on first
// sight. A tab is playing only between an accepted start/progress and the
// next pause/end.
func (s *TabStateStore) OnEvent(tabID string, event models.PlaybackEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.tabs[tabID]
	if !exists {
		state = &models.TabPlaybackState{}
		s.tabs[tabID] = state
	}

	switch event.Event {
	case models.EventStart, models.EventProgress:
		state.IsPlaying = true
	case models.EventPause, models.EventEnd:
		state.IsPlaying = false
	}

	copied := event
	state.LastEvent = &copied
}

// OnTabRemoved discards the tab's entry. If the tab disappeared mid-session
// it returns a synthetic end copying the last event's fields with a fresh
// timestamp, so every open session is closed exactly once. The caller routes
// the synthetic event through the activity relay.
func (s *TabStateStore) OnTabRemoved(tabID string) *models.PlaybackEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.tabs[tabID]
	if !exists {
		return nil
	}
	delete(s.tabs, tabID)

	if !state.IsPlaying || state.LastEvent == nil {
		return nil
	}

	synthetic := *state.LastEvent
	synthetic.Event = models.EventEnd
	synthetic.OccurredAtMs = s.now().UnixMilli()
	return &synthetic
}

// State returns a copy of the stored state for a tab, if any.
func (s *TabStateStore) State(tabID string) (models.TabPlaybackState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.tabs[tabID]
	if !exists {
		return models.TabPlaybackState{}, false
	}
	return *state, true
}
