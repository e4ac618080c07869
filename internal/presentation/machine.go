package presentation

import (
	"log/slog"
	"sort"
	"time"

	"github.com/miradorstack/alert-beacon/internal/models"
)

// Thresholds configures hysteresis.
type Thresholds struct {
	// Interval is the consumer poll interval.
	Interval time.Duration
	// NormalDuration is the number of clean polls before normal settles into working.
	NormalDuration int
	// ErrorDuration is the number of bad polls before an error state settles into its
	// working variant.
	ErrorDuration int
}

func (t Thresholds) normalize() Thresholds {
	if t.NormalDuration <= 0 {
		t.NormalDuration = 3
	}
	if t.ErrorDuration <= 0 {
		t.ErrorDuration = 3
	}
	if t.Interval <= 0 {
		t.Interval = 10 * time.Second
	}
	return t
}

// Machine owns every presentation entity. It is not safe for concurrent use; Runner calls
// it from a single goroutine.
type Machine struct {
	cfg      Thresholds
	sched    Scheduler
	renderer Renderer
	logger   *slog.Logger
	entities map[string]*Entity
}

// NewMachine creates a machine holding only the main entity.
func NewMachine(cfg Thresholds, sched Scheduler, renderer Renderer, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	if renderer == nil {
		renderer = MultiRenderer(nil)
	}
	m := &Machine{
		cfg:      cfg.normalize(),
		sched:    sched,
		renderer: renderer,
		logger:   logger,
		entities: make(map[string]*Entity),
	}
	m.spawn(MainEntity)
	return m
}

// Observe applies one successfully fetched snapshot. Satellites are reconciled with the
// label keys first, then every entity advances by one poll.
func (m *Machine) Observe(snap models.Snapshot) {
	ids := make([]string, 0, len(snap.Labels))
	for id := range snap.Labels {
		if id != MainEntity {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	m.reconcile(ids)

	mainAlert, mainInternal := snap.Status.HasActiveAlerts, snap.Status.InternalError
	if len(ids) > 0 {
		mainAlert, mainInternal = false, false
		for _, id := range ids {
			label := snap.Labels[id]
			mainAlert = mainAlert || label.IsAlert()
			mainInternal = mainInternal || label.IsInternalError()
		}
	}
	m.update(m.entities[MainEntity], mainAlert, mainInternal)

	for _, id := range ids {
		label := snap.Labels[id]
		m.update(m.entities[id], label.IsAlert(), label.IsInternalError())
	}
}

// ObserveFailure applies a poll in which the snapshot could not be fetched: every entity
// receives an internal error.
func (m *Machine) ObserveFailure(err error) {
	m.logger.Warn("snapshot unavailable", slog.Any("error", err))
	for _, id := range m.ids() {
		m.update(m.entities[id], false, true)
	}
}

// State returns the current state of an entity.
func (m *Machine) State(id string) (State, bool) {
	e, ok := m.entities[id]
	if !ok {
		return "", false
	}
	return e.State, true
}

// Entity returns a copy of an entity.
func (m *Machine) Entity(id string) (Entity, bool) {
	e, ok := m.entities[id]
	if !ok {
		return Entity{}, false
	}
	return *e, true
}

// States returns the state of every entity.
func (m *Machine) States() map[string]State {
	out := make(map[string]State, len(m.entities))
	for id, e := range m.entities {
		out[id] = e.State
	}
	return out
}

// Close cancels all pending timers and releases every entity.
func (m *Machine) Close() {
	for _, id := range m.ids() {
		m.teardown(id)
	}
}

func (m *Machine) ids() []string {
	ids := make([]string, 0, len(m.entities))
	for id := range m.entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Machine) reconcile(ids []string) {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	for _, id := range m.ids() {
		if id == MainEntity {
			continue
		}
		if _, ok := want[id]; !ok {
			m.teardown(id)
		}
	}
	for _, id := range ids {
		if _, ok := m.entities[id]; !ok {
			m.spawn(id)
		}
	}
}

func (m *Machine) spawn(id string) {
	m.entities[id] = &Entity{ID: id, State: StateNormal}
	m.renderer.Render(id, "", StateNormal)
}

func (m *Machine) teardown(id string) {
	e, ok := m.entities[id]
	if !ok {
		return
	}
	m.cancel(e)
	delete(m.entities, id)
	m.renderer.Release(id)
}

func (m *Machine) update(e *Entity, alerting, internalError bool) {
	switch {
	case internalError:
		switch e.State {
		case StateInternalError:
			e.InternalErrorCount++
			if e.InternalErrorCount >= m.cfg.ErrorDuration {
				m.setState(e, StateInternalErrorWorking)
			}
		case StateInternalErrorWorking:
		default:
			e.InternalErrorCount = 1
			e.ErrorCount = 0
			e.NormalCount = 0
			if e.InternalErrorCount >= m.cfg.ErrorDuration {
				m.setState(e, StateInternalErrorWorking)
			} else {
				m.setState(e, StateInternalError)
			}
		}

	case alerting:
		switch e.State {
		case StateError:
			e.ErrorCount++
			if e.ErrorCount >= m.cfg.ErrorDuration {
				m.setState(e, StateErrorWorking)
			}
		case StateErrorWorking:
		default:
			e.ErrorCount = 1
			e.InternalErrorCount = 0
			e.NormalCount = 0
			if e.ErrorCount >= m.cfg.ErrorDuration {
				m.setState(e, StateErrorWorking)
			} else {
				m.setState(e, StateError)
			}
		}

	default:
		switch e.State {
		case StateNormal:
			e.NormalCount++
			if e.NormalCount >= m.cfg.NormalDuration {
				m.setState(e, StateWorking)
			}
		case StateWorking:
		default:
			e.ErrorCount = 0
			e.InternalErrorCount = 0
			e.NormalCount = 1
			if e.NormalCount >= m.cfg.NormalDuration {
				m.setState(e, StateWorking)
			} else {
				m.setState(e, StateNormal)
			}
		}
	}
}

// setState moves e to next. Every transition cancels the pending promotion; entering normal
// arms a new one.
func (m *Machine) setState(e *Entity, next State) {
	prev := e.State
	m.cancel(e)
	e.State = next
	if next == StateNormal {
		m.schedulePromotion(e)
	}
	if prev != next {
		m.renderer.Render(e.ID, prev, next)
	}
}

func (m *Machine) schedulePromotion(e *Entity) {
	if m.sched == nil {
		return
	}
	gen := e.gen
	delay := time.Duration(m.cfg.NormalDuration) * m.cfg.Interval
	e.timer = m.sched.AfterFunc(delay, func() {
		cur, ok := m.entities[e.ID]
		if !ok || cur != e || e.gen != gen || e.State != StateNormal {
			return
		}
		e.timer = nil
		m.setState(e, StateWorking)
	})
}

func (m *Machine) cancel(e *Entity) {
	e.gen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}
