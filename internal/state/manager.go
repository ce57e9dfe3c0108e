package state

import (
	"log"
	"sync"
	"time"

	"github.com/Katharine/hypnos/internal/eightsleep"
	"github.com/Katharine/hypnos/internal/metrics"
)

// Engine timing. All timers post their work onto the single worker
// queue, so no two timer bodies ever run concurrently.
const (
	ReauthInterval        = 10 * time.Hour
	BedPollInterval       = 60 * time.Second
	AlarmPollInterval     = 10 * time.Minute
	WriteDebounce         = 5 * time.Second
	DismissalPollInterval = 5 * time.Second

	queueCapacity  = 16
	enqueueTimeout = 2 * time.Second
)

// BedClient is the slice of the domain client the manager drives.
type BedClient interface {
	Authenticate(cb func(bool))
	GetAlarms(cb func([]eightsleep.Alarm, error))
	HasActiveAlarm(cb func(bool, error))
	StopAlarms(cb func(bool))
	GetBedStatus(cb func(eightsleep.Bed, error))
	SetBedState(on bool, cb func(eightsleep.Bed, error))
	SetTemp(level int, cb func(eightsleep.Bed, error))
}

// Timer is a stoppable timer handle.
type Timer interface {
	Stop()
}

// TimerFactory arms a one-shot timer. Replaced in tests.
type TimerFactory func(d time.Duration, fn func()) Timer

type stdTimer struct{ t *time.Timer }

func (s stdTimer) Stop() { s.t.Stop() }

func newStdTimer(d time.Duration, fn func()) Timer {
	return stdTimer{t: time.AfterFunc(d, fn)}
}

// Manager owns the canonical State and reconciles it against the
// remote service. Commands and timer effects communicate with the
// worker exclusively by enqueuing closures.
type Manager struct {
	client BedClient

	queue chan func()
	stop  chan struct{}

	now      func() time.Time
	newTimer TimerFactory

	// Everything below is touched only on the worker goroutine.
	state               State
	valid               bool
	alarming            bool
	serverUpdatePending bool
	updateCB            func(State)

	debounce      Timer
	expectedAlarm Timer
	dismissal     Timer
	reauth        Timer
	bedPoll       Timer
	alarmPoll     Timer

	// snap is a copy of the last published state, readable by any
	// goroutine. The worker is the only writer.
	snapMu sync.RWMutex
	snap   State
}

// New creates a manager and starts its worker. Periodic timers are not
// armed until Start is called.
func New(client BedClient) *Manager {
	return NewWithHooks(client, time.Now, newStdTimer)
}

// NewWithHooks creates a manager with a custom clock and timer
// factory, for tests that need deterministic time.
func NewWithHooks(client BedClient, now func() time.Time, factory TimerFactory) *Manager {
	m := &Manager{
		client:   client,
		queue:    make(chan func(), queueCapacity),
		stop:     make(chan struct{}),
		now:      now,
		newTimer: factory,
	}
	go m.worker()
	return m
}

// Start arms the re-authentication, bed-status and alarm-schedule
// pollers and issues an initial read of each.
func (m *Manager) Start() {
	m.enqueue(func() {
		m.armPeriodic(&m.reauth, ReauthInterval, m.reauthenticate)
		m.armPeriodic(&m.bedPoll, BedPollInterval, func() { m.updateBedState(nil) })
		m.armPeriodic(&m.alarmPoll, AlarmPollInterval, func() { m.updateAlarmSchedule(nil) })
		m.updateBedState(nil)
		m.updateAlarmSchedule(nil)
	})
}

// Close stops the worker and all timers. Pending queue entries are
// discarded.
func (m *Manager) Close() {
	close(m.stop)
}

// GetState returns a snapshot of the last published state. The caller
// owns the returned value.
func (m *Manager) GetState() State {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	s := m.snap
	if s.NextAlarm != nil {
		t := *s.NextAlarm
		s.NextAlarm = &t
	}
	return s
}

// SetUpdateCallback registers the change-notification callback. It is
// invoked on the worker goroutine and must not block.
func (m *Manager) SetUpdateCallback(cb func(State)) {
	m.enqueue(func() { m.updateCB = cb })
}

// SetTargetTemp records a locally desired target temperature and
// (re)arms the write-back debounce. Rapid edits coalesce into a single
// server write.
func (m *Manager) SetTargetTemp(target int) {
	m.enqueue(func() {
		m.state.LocalTargetTemp = target
		m.armDebounce()
		m.publish()
	})
}

// SetBedState records the locally desired power state and (re)arms the
// write-back debounce.
func (m *Manager) SetBedState(on bool) {
	m.enqueue(func() {
		m.state.RequestedState = on
		m.armDebounce()
		m.publish()
	})
}

// UpdateBedState enqueues a read of the bed status and merges the
// result into the state. cb may be nil.
func (m *Manager) UpdateBedState(cb func(State, error)) {
	m.enqueue(func() { m.updateBedState(cb) })
}

// UpdateAlarmSchedule enqueues a fetch of the alarm schedule and
// re-arms the expected-alarm timer if the next instant changed.
// cb may be nil.
func (m *Manager) UpdateAlarmSchedule(cb func(error)) {
	m.enqueue(func() { m.updateAlarmSchedule(cb) })
}

// StopAlarm asks the service to stop the active alarm. On success the
// alarm mode is exited. cb may be nil.
func (m *Manager) StopAlarm(cb func(bool)) {
	m.enqueue(func() {
		m.client.StopAlarms(func(ok bool) {
			m.enqueue(func() {
				if ok && m.alarming {
					m.exitAlarmMode()
				}
				if cb != nil {
					cb(ok)
				}
			})
		})
	})
}

// ClockSynced re-arms the expected-alarm timer from the known next
// alarm. Call it whenever the wall clock is (re)synchronized.
func (m *Manager) ClockSynced() {
	m.enqueue(func() {
		log.Printf("state: wall clock synced, re-arming alarm timer")
		m.armExpectedAlarm()
	})
}

// worker drains the queue. It is the only goroutine that touches the
// canonical state or any timer handle.
func (m *Manager) worker() {
	for {
		select {
		case fn := <-m.queue:
			fn()
		case <-m.stop:
			m.stopTimers()
			return
		}
	}
}

// enqueue posts work to the worker, waiting a bounded time before
// dropping. Backpressure is lossy by design: most producers are
// periodic polls that retry next period anyway.
func (m *Manager) enqueue(fn func()) {
	select {
	case m.queue <- fn:
		return
	default:
	}
	t := time.NewTimer(enqueueTimeout)
	defer t.Stop()
	select {
	case m.queue <- fn:
	case <-t.C:
		log.Printf("state: queue full for %v, dropping work item", enqueueTimeout)
		metrics.QueueDrops.Inc()
	case <-m.stop:
	}
}

func (m *Manager) stopTimers() {
	for _, t := range []Timer{m.debounce, m.expectedAlarm, m.dismissal, m.reauth, m.bedPoll, m.alarmPoll} {
		if t != nil {
			t.Stop()
		}
	}
}

// armPeriodic arms a one-shot that re-arms itself after running fn on
// the worker.
func (m *Manager) armPeriodic(slot *Timer, period time.Duration, fn func()) {
	*slot = m.newTimer(period, func() {
		m.enqueue(func() {
			fn()
			m.armPeriodic(slot, period, fn)
		})
	})
}

func (m *Manager) reauthenticate() {
	log.Printf("state: re-authenticating")
	m.client.Authenticate(func(ok bool) {
		if !ok {
			// Retryable: the next reauth tick will try again.
			log.Printf("state: re-authentication failed")
		}
	})
}

func (m *Manager) updateBedState(cb func(State, error)) {
	m.client.GetBedStatus(func(bed eightsleep.Bed, err error) {
		m.enqueue(func() {
			if err != nil {
				log.Printf("state: bed status read failed: %v", err)
				if cb != nil {
					cb(m.state, err)
				}
				return
			}
			m.mergeBedStatus(bed)
			if cb != nil {
				cb(m.state, nil)
			}
		})
	})
}

// mergeBedStatus folds a server read into the state. The desired
// fields adopt the server values only when the confirmed value itself
// changed: a pending local edit survives a poll that reports no remote
// change, but an observed remote change always wins over a diverged,
// not-yet-sent edit.
func (m *Manager) mergeBedStatus(bed eightsleep.Bed) {
	targetChanged := bed.TargetTemp != m.state.BedTargetTemp
	powerChanged := bed.Active != m.state.BedState

	m.state.BedActualTemp = bed.CurrentTemp
	m.state.BedTargetTemp = bed.TargetTemp
	m.state.BedState = bed.Active
	if targetChanged || !m.valid {
		m.state.LocalTargetTemp = bed.TargetTemp
	}
	if powerChanged || !m.valid {
		m.state.RequestedState = bed.Active
	}
	m.valid = true
	m.publish()
}

func (m *Manager) armDebounce() {
	if m.debounce != nil {
		m.debounce.Stop()
	}
	m.debounce = m.newTimer(WriteDebounce, func() {
		m.enqueue(m.syncStateToServer)
	})
}

// syncStateToServer is the reconciliation step: push divergent desired
// state to the server, power first, then temperature. Any failure
// rolls the optimistic edit back; success merges the confirmed values
// and re-arms the debounce if a racing edit re-diverged the state.
func (m *Manager) syncStateToServer() {
	if m.serverUpdatePending {
		return
	}
	if !m.state.Diverged() {
		return
	}
	m.serverUpdatePending = true
	metrics.SyncAttempts.Inc()

	if m.state.RequestedState != m.state.BedState {
		m.client.SetBedState(m.state.RequestedState, func(bed eightsleep.Bed, err error) {
			m.enqueue(func() {
				if err != nil {
					m.rollback(err)
					return
				}
				m.mergeConfirmed(bed)
				m.syncTemp()
			})
		})
		return
	}
	m.syncTemp()
}

func (m *Manager) syncTemp() {
	if m.state.LocalTargetTemp != m.state.BedTargetTemp {
		m.client.SetTemp(m.state.LocalTargetTemp, func(bed eightsleep.Bed, err error) {
			m.enqueue(func() {
				if err != nil {
					m.rollback(err)
					return
				}
				m.mergeConfirmed(bed)
				m.finishSync()
			})
		})
		return
	}
	m.finishSync()
}

// mergeConfirmed folds a write response into the confirmed fields. A
// write response does not reliably report the measured temperature, so
// BedActualTemp is never touched here.
func (m *Manager) mergeConfirmed(bed eightsleep.Bed) {
	m.state.BedTargetTemp = bed.TargetTemp
	m.state.BedState = bed.Active
	m.valid = true
}

func (m *Manager) finishSync() {
	m.serverUpdatePending = false
	if m.state.Diverged() {
		// A racing edit arrived mid-flight. Re-arm the debounce
		// rather than looping synchronously.
		m.armDebounce()
	}
	m.publish()
}

// rollback discards the optimistic edit: the UI must reflect a failed
// write as if it never happened. Listeners are notified exactly once.
func (m *Manager) rollback(err error) {
	log.Printf("state: server write failed, rolling back local edit: %v", err)
	metrics.SyncFailures.Inc()
	m.serverUpdatePending = false
	m.state.LocalTargetTemp = m.state.BedTargetTemp
	m.state.RequestedState = m.state.BedState
	m.publish()
}

func (m *Manager) updateAlarmSchedule(cb func(error)) {
	m.client.GetAlarms(func(alarms []eightsleep.Alarm, err error) {
		m.enqueue(func() {
			if err != nil {
				log.Printf("state: alarm schedule fetch failed: %v", err)
				if cb != nil {
					cb(err)
				}
				return
			}
			m.setNextAlarm(NextAlarmTime(alarms, m.now()))
			if cb != nil {
				cb(nil)
			}
		})
	})
}

// setNextAlarm re-arms the expected-alarm timer only when the computed
// instant differs from the currently armed one.
func (m *Manager) setNextAlarm(next *time.Time) {
	if sameInstant(next, m.state.NextAlarm) {
		return
	}
	m.state.NextAlarm = next
	m.armExpectedAlarm()
	m.publish()
}

func (m *Manager) armExpectedAlarm() {
	if m.expectedAlarm != nil {
		m.expectedAlarm.Stop()
		m.expectedAlarm = nil
	}
	if m.state.NextAlarm == nil {
		return
	}
	wait := m.state.NextAlarm.Sub(m.now())
	if wait < 0 {
		wait = 0
	}
	log.Printf("state: next alarm expected at %v (in %v)", m.state.NextAlarm.Format(time.RFC3339), wait.Truncate(time.Second))
	m.expectedAlarm = m.newTimer(wait, func() {
		m.enqueue(m.enterAlarmMode)
	})
}

func (m *Manager) enterAlarmMode() {
	if m.alarming {
		return
	}
	log.Printf("state: alarm is firing")
	m.alarming = true
	metrics.AlarmsFired.Inc()
	m.publish()
	m.armDismissalPoll()
}

func (m *Manager) armDismissalPoll() {
	m.dismissal = m.newTimer(DismissalPollInterval, func() {
		m.enqueue(m.pollAlarmDismissal)
	})
}

// pollAlarmDismissal checks whether the alarm is still active
// remotely. A poll failure is treated as "alarm has ended" so a dead
// connection cannot leave the UI stuck in alarm mode.
func (m *Manager) pollAlarmDismissal() {
	if !m.alarming {
		return
	}
	m.client.HasActiveAlarm(func(active bool, err error) {
		m.enqueue(func() {
			if !m.alarming {
				return
			}
			if err != nil {
				log.Printf("state: alarm dismissal poll failed, assuming dismissed: %v", err)
				m.exitAlarmMode()
				return
			}
			if !active {
				m.exitAlarmMode()
				return
			}
			m.armDismissalPoll()
		})
	})
}

func (m *Manager) exitAlarmMode() {
	log.Printf("state: alarm dismissed")
	m.alarming = false
	if m.dismissal != nil {
		m.dismissal.Stop()
		m.dismissal = nil
	}
	m.publish()
	// Refresh the schedule to compute the next alarm.
	m.updateAlarmSchedule(nil)
}

func (m *Manager) recomputeMode() {
	switch {
	case m.alarming:
		m.state.Mode = ModeAlarming
	case !m.valid:
		m.state.Mode = ModeUnknown
	case m.state.Diverged():
		m.state.Mode = ModeDiverged
	default:
		m.state.Mode = ModeSynced
	}
}

// publish refreshes the readable snapshot and notifies the registered
// callback. Runs on the worker.
func (m *Manager) publish() {
	m.recomputeMode()
	snap := m.state
	if snap.NextAlarm != nil {
		t := *snap.NextAlarm
		snap.NextAlarm = &t
	}
	if m.updateCB != nil {
		m.updateCB(snap)
	}
	// The snapshot is updated last: once a reader observes the new
	// state, the callback for it has already run.
	m.snapMu.Lock()
	m.snap = snap
	m.snapMu.Unlock()
}
