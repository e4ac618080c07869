package presentation

import (
	"sort"
	"time"
)

type fakeTimer struct {
	s       *fakeScheduler
	at      time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fakeScheduler runs callbacks synchronously from Advance.
type fakeScheduler struct {
	now    time.Duration
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	t := &fakeTimer{s: s, at: s.now + d, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) Advance(d time.Duration) {
	s.now += d
	sort.SliceStable(s.timers, func(i, j int) bool { return s.timers[i].at < s.timers[j].at })
	for _, t := range s.timers {
		if t.at <= s.now && !t.stopped && !t.fired {
			t.fired = true
			t.fn()
		}
	}
}

func (s *fakeScheduler) pending() int {
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type recordingRenderer struct {
	changes  []string
	released []string
}

func (r *recordingRenderer) Render(id string, from, to State) {
	r.changes = append(r.changes, id+":"+string(from)+"->"+string(to))
}

func (r *recordingRenderer) Release(id string) {
	r.released = append(r.released, id)
}
