// Package detector turns raw media-element signals inside one tab into
// semantic playback events. It owns no network access; every emission goes
// to an event channel sink and the relay takes it from there.
package detector

import (
	"sync"
	"time"

	"immersia-backend/internal/channel"
	"immersia-backend/internal/contentkey"
	"immersia-backend/internal/models"
)

// MediaElement is the playback surface being observed. On the browser side
// this wraps an HTMLMediaElement; in tests it is a fake.
type MediaElement interface {
	Position() float64 // seconds
	Duration() float64 // seconds
	Rate() float64
}

// PageProbe reports the page the element lives in. Polled for in-page
// navigations that never fire a full load.
type PageProbe interface {
	CurrentURL() string
	Title() string
}

type state int

const (
	stateIdle state = iota
	statePlaying
	statePaused
	stateEnded
)

const (
	defaultHeartbeatInterval = 5 * time.Second
	defaultNavPollInterval   = 1500 * time.Millisecond
)

type Config struct {
	Source            string
	Resolver          contentkey.Resolver
	Sink              channel.Sink
	Probe             PageProbe
	Media             MediaElement
	HeartbeatInterval time.Duration
	NavPollInterval   time.Duration

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

// Detector is the per-tab playback state machine. All methods are safe for
// concurrent use; the internal mutex serializes signal handling, heartbeat
// ticks, and navigation polls.
type Detector struct {
	mu       sync.Mutex
	source   string
	resolver contentkey.Resolver
	sink     channel.Sink
	probe    PageProbe
	media    MediaElement
	now      func() time.Time

	heartbeatInterval time.Duration
	navPollInterval   time.Duration

	state      state
	trackedID  string
	trackedURL string

	stop chan struct{}
	once sync.Once
}

func New(cfg Config) *Detector {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.NavPollInterval <= 0 {
		cfg.NavPollInterval = defaultNavPollInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	d := &Detector{
		source:            cfg.Source,
		resolver:          cfg.Resolver,
		sink:              cfg.Sink,
		probe:             cfg.Probe,
		media:             cfg.Media,
		now:               cfg.Now,
		heartbeatInterval: cfg.HeartbeatInterval,
		navPollInterval:   cfg.NavPollInterval,
		state:             stateIdle,
		stop:              make(chan struct{}),
	}
	d.adoptCurrentPage()
	return d
}

// Start launches the heartbeat and navigation-poll timers. Stop ends them.
func (d *Detector) Start() {
	go d.heartbeatLoop()
	go d.navPollLoop()
}

func (d *Detector) Stop() {
	d.once.Do(func() { close(d.stop) })
}

// OnPlaying handles the element's playing/seeked/resume signals. A seek
// while already playing is not a new session boundary.
func (d *Detector) OnPlaying() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == statePlaying {
		return
	}
	d.state = statePlaying
	d.emitLocked(models.EventStart)
}

// OnPaused handles the element's pause signal. Pauses outside an active
// session (e.g. the pause fired right after "ended") are ignored.
func (d *Detector) OnPaused() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != statePlaying {
		return
	}
	d.state = statePaused
	d.emitLocked(models.EventPause)
}

// OnEnded handles the element's ended signal. The end is reported from any
// prior state so a session is always closed.
func (d *Detector) OnEnded() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.state = stateEnded
	d.emitLocked(models.EventEnd)
}

// NotifyNavigation is the platform-specific in-page navigation hook
// (yt-navigate-finish and friends). It runs the same identity check as the
// poll loop, just immediately.
func (d *Detector) NotifyNavigation() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkIdentityLocked()
}

// Rebind swaps the observed media element without emitting anything. The
// player frameworks replace the underlying element on quality changes while
// the video identity stays the same.
func (d *Detector) Rebind(media MediaElement) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.media = media
}

func (d *Detector) heartbeatLoop() {
	ticker := time.NewTicker(d.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			d.heartbeatTick()
		}
	}
}

func (d *Detector) navPollLoop() {
	ticker := time.NewTicker(d.navPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			d.mu.Lock()
			d.checkIdentityLocked()
			d.mu.Unlock()
		}
	}
}

func (d *Detector) heartbeatTick() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != statePlaying {
		return
	}
	d.emitLocked(models.EventProgress)
}

// checkIdentityLocked compares the page's current content identifier with
// the tracked one. A change while playing closes the old session with a
// synthetic end before the new identity is adopted.
func (d *Detector) checkIdentityLocked() {
	currentURL := d.probe.CurrentURL()
	currentID := d.resolveID(currentURL)

	if currentID == d.trackedID {
		return
	}

	if d.state == statePlaying {
		d.state = stateIdle
		d.emitLocked(models.EventEnd)
	} else {
		d.state = stateIdle
	}

	d.trackedID = currentID
	d.trackedURL = currentURL
}

func (d *Detector) adoptCurrentPage() {
	if d.probe == nil {
		return
	}
	d.trackedURL = d.probe.CurrentURL()
	d.trackedID = d.resolveID(d.trackedURL)
}

// resolveID tolerates a nil resolver; events then carry no video id and the
// relay resolves the content key from the URL instead.
func (d *Detector) resolveID(candidate string) string {
	if d.resolver == nil {
		return ""
	}
	id, _ := d.resolver.Resolve(candidate)
	return id
}

// emitLocked builds the event for the tracked identity and hands it to the
// channel. Caller holds d.mu.
func (d *Detector) emitLocked(eventType string) {
	if d.sink == nil {
		return
	}

	event := models.PlaybackEvent{
		Source:       d.source,
		Event:        eventType,
		URL:          d.trackedURL,
		OccurredAtMs: d.now().UnixMilli(),
	}

	if d.trackedID != "" {
		id := d.trackedID
		event.VideoID = &id
	}
	if d.probe != nil {
		if title := d.probe.Title(); title != "" {
			event.Title = &title
		}
	}
	if d.media != nil {
		pos := int(d.media.Position())
		dur := int(d.media.Duration())
		event.PositionSec = &pos
		event.DurationSec = &dur
		if eventType == models.EventProgress {
			rate := d.media.Rate()
			event.Rate = &rate
		}
	}

	d.sink.Send(event)
}
