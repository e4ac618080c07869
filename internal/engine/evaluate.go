// Package engine turns per-backend poll results into the published aggregate.
package engine

import (
	"github.com/miradorstack/alert-beacon/internal/config"
	"github.com/miradorstack/alert-beacon/internal/models"
)

// Options tunes how a cycle is evaluated.
type Options struct {
	// Mode is config.ModeEvaluateAll or config.ModeFirstMatch.
	Mode      string
	HideClear bool
}

// Evaluate folds the results of one cycle into an aggregate status and label map. Backends are
// visited in order; results for IDs outside order are ignored, and labels of backends no longer
// in order are dropped. A backend in order without a result counts as unreachable.
//
// In first-match mode the walk stops at the first backend that is not healthy. A later backend
// keeps its previous label only when that label is CLEAR, so a stale error or alert never
// outlives the cycle that produced it. The returned status is always the one the returned labels
// imply and never has both flags raised.
func Evaluate(order []string, results map[string]models.PollResult, previous models.LabelMap, opts Options) (models.AggregateStatus, models.LabelMap) {
	labels := make(models.LabelMap, len(order))
	for _, id := range order {
		if label, ok := previous[id]; ok {
			labels[id] = label
		}
	}

	visited := make(map[string]bool, len(order))
	for _, id := range order {
		visited[id] = true
		res, ok := results[id]
		if !ok {
			res = models.Unreachable(id, "", models.FailureTransport, nil)
		}

		label := models.LabelFor(res)
		if label == models.LabelClear && opts.HideClear {
			delete(labels, id)
		} else {
			labels[id] = label
		}

		if opts.Mode == config.ModeFirstMatch && label != models.LabelClear {
			break
		}
	}

	for id, label := range labels {
		if !visited[id] && label != models.LabelClear {
			delete(labels, id)
		}
	}
	return models.StatusFromLabels(labels), labels
}
