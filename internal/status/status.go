// Package status provides a thread-safe status tracker for the hypnos
// daemon. It is designed to be read by HTTP handlers; the engine's own
// canonical state lives in internal/state.
package status

import (
	"sync"
	"time"

	"github.com/Katharine/hypnos/internal/state"
)

// Config contains daemon configuration for display.
type Config struct {
	BedPollMs   int64
	AlarmPollMs int64
	DebounceMs  int64
	Broker      string
	HTTPAddr    string
	EnvFile     string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Bed           state.State
	Authenticated bool
	MQTTConnected bool
	StartTime     time.Time
	Now           time.Time
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update sets the engine state. Called from the manager's update
// callback on every published change.
func (t *Tracker) Update(s state.State) {
	t.mu.Lock()
	t.snap.Bed = s
	t.mu.Unlock()
}

// SetAuthenticated sets the authentication status.
func (t *Tracker) SetAuthenticated(ok bool) {
	t.mu.Lock()
	t.snap.Authenticated = ok
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
