// Package state contains the device-state synchronization engine: an
// actor that reconciles locally-requested bed settings against the
// remote service and tracks the alarm schedule.
//
// All mutable state is touched only by closures executed one at a time
// on the manager's worker goroutine; that serialization is the sole
// mutual-exclusion mechanism for the canonical state.
package state

import (
	"time"

	"github.com/Katharine/hypnos/internal/eightsleep"
)

// Mode is the engine's operational mode. It replaces the source's
// implicit encoding across several boolean flags so that illegal
// combinations are unrepresentable.
type Mode int

const (
	// ModeUnknown means no server read has ever succeeded.
	ModeUnknown Mode = iota
	// ModeSynced means desired and confirmed state agree.
	ModeSynced
	// ModeDiverged means a local edit is pending write-back.
	ModeDiverged
	// ModeAlarming means the expected alarm is currently firing.
	ModeAlarming
)

func (m Mode) String() string {
	switch m {
	case ModeUnknown:
		return "UNKNOWN"
	case ModeSynced:
		return "SYNCED"
	case ModeDiverged:
		return "DIVERGED"
	case ModeAlarming:
		return "ALARMING"
	}
	return "INVALID"
}

// State is the canonical engine state. BedTargetTemp and BedState are
// the last confirmed server values; LocalTargetTemp and RequestedState
// are the desired values and may transiently diverge from them, which
// is what triggers a write-back.
type State struct {
	Mode            Mode
	BedTargetTemp   int
	LocalTargetTemp int
	BedActualTemp   int
	BedState        bool
	RequestedState  bool
	NextAlarm       *time.Time
}

// Valid reports whether any server read has ever succeeded.
func (s State) Valid() bool {
	return s.Mode != ModeUnknown
}

// IsAlarming reports whether the alarm is currently firing.
func (s State) IsAlarming() bool {
	return s.Mode == ModeAlarming
}

// Diverged reports whether desired state differs from confirmed state.
func (s State) Diverged() bool {
	return s.LocalTargetTemp != s.BedTargetTemp || s.RequestedState != s.BedState
}

// NextAlarmTime returns the earliest future fire instant across the
// given alarms, or nil if none is scheduled. Disabled alarms and
// unparseable timestamps are skipped. Pure; time is injected.
func NextAlarmTime(alarms []eightsleep.Alarm, now time.Time) *time.Time {
	var next *time.Time
	for _, alarm := range alarms {
		if !alarm.Enabled {
			continue
		}
		at, err := alarm.NextFireTime()
		if err != nil {
			continue
		}
		if !at.After(now) {
			continue
		}
		if next == nil || at.Before(*next) {
			t := at
			next = &t
		}
	}
	return next
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
