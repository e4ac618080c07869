package snapshot

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/miradorstack/alert-beacon/internal/models"
)

// document is the flat alerts.json layout shared by the file and Valkey sinks.
type document struct {
	HasActiveAlerts bool            `json:"hasActiveAlerts"`
	InternalError   bool            `json:"internalError"`
	Labels          models.LabelMap `json:"labels,omitempty"`
	CycleID         string          `json:"cycleId,omitempty"`
	UpdatedAt       time.Time       `json:"updatedAt,omitempty"`
}

func encode(snap models.Snapshot) ([]byte, error) {
	doc := document{
		HasActiveAlerts: snap.Status.HasActiveAlerts,
		InternalError:   snap.Status.InternalError,
		Labels:          snap.Labels,
		CycleID:         snap.CycleID,
		UpdatedAt:       snap.UpdatedAt,
	}
	return json.MarshalIndent(doc, "", "  ")
}

func decode(data []byte) (models.Snapshot, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return models.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	labels := doc.Labels
	if labels == nil {
		labels = models.LabelMap{}
	}
	return models.Snapshot{
		Status: models.AggregateStatus{
			HasActiveAlerts: doc.HasActiveAlerts,
			InternalError:   doc.InternalError,
		},
		Labels:    labels,
		CycleID:   doc.CycleID,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}
