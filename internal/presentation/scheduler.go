package presentation

import "time"

// Timer is a cancellable pending callback.
type Timer interface {
	Stop() bool
}

// Scheduler arms callbacks after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// loopScheduler hands expired callbacks to the runner goroutine so the machine is only
// ever touched from one goroutine.
type loopScheduler struct {
	calls chan<- func()
	done  <-chan struct{}
}

func (s loopScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, func() {
		select {
		case s.calls <- fn:
		case <-s.done:
		}
	})
}
