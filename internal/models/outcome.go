package models

import "time"

// Outcome is the per-backend, per-cycle classification of a poll.
type Outcome string

const (
	OutcomeHealthy     Outcome = "healthy"
	OutcomeAlerting    Outcome = "alerting"
	OutcomeUnreachable Outcome = "unreachable"
)

// Failure narrows an unreachable outcome down to where it failed.
type Failure string

const (
	FailureNone Failure = ""
	// FailureTransport covers timeouts, refused connections and non-2xx replies.
	FailureTransport Failure = "transport"
	// FailureSource covers errors reported by the backend and replies of the wrong shape.
	FailureSource Failure = "source"
)

// BackendKind enumerates the supported upstream monitoring systems.
type BackendKind string

const (
	KindAlertmanager BackendKind = "alertmanager"
	KindZabbix       BackendKind = "zabbix"
)

// PollResult is what a single backend poll produced.
type PollResult struct {
	Backend     string
	Kind        BackendKind
	Outcome     Outcome
	Failure     Failure
	Err         error
	ActiveCount int
	At          time.Time
	Duration    time.Duration
}

// Healthy builds a clean result.
func Healthy(backend string, kind BackendKind) PollResult {
	return PollResult{Backend: backend, Kind: kind, Outcome: OutcomeHealthy, At: time.Now()}
}

// Alerting builds a result carrying the number of active alerts or problems.
func Alerting(backend string, kind BackendKind, count int) PollResult {
	return PollResult{Backend: backend, Kind: kind, Outcome: OutcomeAlerting, ActiveCount: count, At: time.Now()}
}

// Unreachable builds a failed result.
func Unreachable(backend string, kind BackendKind, failure Failure, err error) PollResult {
	if failure == FailureNone {
		failure = FailureTransport
	}
	return PollResult{Backend: backend, Kind: kind, Outcome: OutcomeUnreachable, Failure: failure, Err: err, At: time.Now()}
}
