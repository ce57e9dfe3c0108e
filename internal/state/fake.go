package state

import (
	"time"

	"github.com/Katharine/hypnos/internal/eightsleep"
)

// FakeBedClient is a test double for the domain client. Calls complete
// synchronously with the configured results. Successful set calls fold
// their argument into Bed, mimicking the server's confirmation.
type FakeBedClient struct {
	// AuthOK is the result Authenticate reports.
	AuthOK    bool
	AuthCalls int

	// Bed is returned by GetBedStatus and by successful set calls.
	Bed    eightsleep.Bed
	BedErr error

	GetBedStatusCalls int

	// Alarms is returned by GetAlarms.
	Alarms    []eightsleep.Alarm
	AlarmsErr error

	// Active is returned by HasActiveAlarm.
	Active         bool
	ActiveErr      error
	HasActiveCalls int

	// StopOK is the result StopAlarms reports.
	StopOK    bool
	StopCalls int

	// SetBedStateCalls and SetTempCalls record write arguments.
	SetBedStateCalls []bool
	SetTempCalls     []int
	SetBedStateErr   error
	SetTempErr       error
}

// Authenticate reports the scripted result.
func (f *FakeBedClient) Authenticate(cb func(bool)) {
	f.AuthCalls++
	cb(f.AuthOK)
}

// GetAlarms returns the scripted alarms.
func (f *FakeBedClient) GetAlarms(cb func([]eightsleep.Alarm, error)) {
	if f.AlarmsErr != nil {
		cb(nil, f.AlarmsErr)
		return
	}
	cb(f.Alarms, nil)
}

// HasActiveAlarm returns the scripted active flag.
func (f *FakeBedClient) HasActiveAlarm(cb func(bool, error)) {
	f.HasActiveCalls++
	if f.ActiveErr != nil {
		cb(false, f.ActiveErr)
		return
	}
	cb(f.Active, nil)
}

// StopAlarms reports the scripted result.
func (f *FakeBedClient) StopAlarms(cb func(bool)) {
	f.StopCalls++
	cb(f.StopOK)
}

// GetBedStatus returns the scripted bed or error.
func (f *FakeBedClient) GetBedStatus(cb func(eightsleep.Bed, error)) {
	f.GetBedStatusCalls++
	if f.BedErr != nil {
		cb(eightsleep.Bed{}, f.BedErr)
		return
	}
	cb(f.Bed, nil)
}

// SetBedState records the call and, on success, applies it to Bed.
func (f *FakeBedClient) SetBedState(on bool, cb func(eightsleep.Bed, error)) {
	f.SetBedStateCalls = append(f.SetBedStateCalls, on)
	if f.SetBedStateErr != nil {
		cb(eightsleep.Bed{}, f.SetBedStateErr)
		return
	}
	f.Bed.Active = on
	cb(f.Bed, nil)
}

// SetTemp records the call and, on success, applies it to Bed.
func (f *FakeBedClient) SetTemp(level int, cb func(eightsleep.Bed, error)) {
	f.SetTempCalls = append(f.SetTempCalls, level)
	if f.SetTempErr != nil {
		cb(eightsleep.Bed{}, f.SetTempErr)
		return
	}
	f.Bed.TargetTemp = level
	cb(f.Bed, nil)
}

// FakeTimer is a timer armed through a FakeScheduler. It never fires
// on its own; tests fire it explicitly.
type FakeTimer struct {
	D       time.Duration
	Stopped bool
	fn      func()
}

// Stop marks the timer stopped.
func (t *FakeTimer) Stop() { t.Stopped = true }

// Fire runs the timer body unless the timer was stopped.
func (t *FakeTimer) Fire() {
	if !t.Stopped {
		t.fn()
	}
}

// FakeScheduler records every timer the manager arms.
type FakeScheduler struct {
	Timers []*FakeTimer
}

// NewTimer records and returns a FakeTimer.
func (s *FakeScheduler) NewTimer(d time.Duration, fn func()) Timer {
	t := &FakeTimer{D: d, fn: fn}
	s.Timers = append(s.Timers, t)
	return t
}

// Last returns the most recently armed timer, or nil.
func (s *FakeScheduler) Last() *FakeTimer {
	if len(s.Timers) == 0 {
		return nil
	}
	return s.Timers[len(s.Timers)-1]
}
