package models

import (
	"sort"
	"time"
)

// AggregateStatus summarises every configured backend.
type AggregateStatus struct {
	HasActiveAlerts bool `json:"hasActiveAlerts"`
	InternalError   bool `json:"internalError"`
}

// Healthy reports whether neither condition is raised.
func (s AggregateStatus) Healthy() bool {
	return !s.HasActiveAlerts && !s.InternalError
}

// Label is the per-backend tag published to the dashboard.
type Label string

const (
	LabelClear         Label = "CLEAR"
	LabelAlertDetected Label = "ALERT_DETECTED"
	LabelAPIError      Label = "API_ERROR"
	LabelSourceError   Label = "SOURCE_ERROR"
)

// IsInternalError reports whether the label denotes an unreachable backend.
func (l Label) IsInternalError() bool {
	return l == LabelAPIError || l == LabelSourceError
}

// IsAlert reports whether the label denotes active alerts.
func (l Label) IsAlert() bool {
	return l == LabelAlertDetected
}

// LabelFor maps a poll result onto its label.
func LabelFor(res PollResult) Label {
	switch res.Outcome {
	case OutcomeAlerting:
		return LabelAlertDetected
	case OutcomeUnreachable:
		if res.Failure == FailureSource {
			return LabelSourceError
		}
		return LabelAPIError
	default:
		return LabelClear
	}
}

// LabelMap maps backend identifiers to their last observed label.
type LabelMap map[string]Label

// Clone returns an independent copy.
func (m LabelMap) Clone() LabelMap {
	out := make(LabelMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Keys returns the backend identifiers in sorted order.
func (m LabelMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot is one published cycle. It is never mutated after publish.
type Snapshot struct {
	Status    AggregateStatus `json:"status"`
	Labels    LabelMap        `json:"labels"`
	CycleID   string          `json:"cycleId,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	s.Labels = s.Labels.Clone()
	return s
}

// StatusFromLabels derives the aggregate from a label map with internal errors taking precedence.
func StatusFromLabels(labels LabelMap) AggregateStatus {
	var status AggregateStatus
	for _, label := range labels {
		switch {
		case label.IsInternalError():
			status.InternalError = true
		case label.IsAlert():
			status.HasActiveAlerts = true
		}
	}
	if status.InternalError {
		status.HasActiveAlerts = false
	}
	return status
}
