// Package status aggregates child execution statuses, timestamps and error
// messages into a single parent value.
package status

import (
	"time"

	"github.com/runwayci/runway/pkg/models"
)

// activeCandidates are evaluated in order against the non-final statuses: an
// in-progress or blocked child must dominate the parent's displayed status.
var activeCandidates = []models.ExecutionStatus{
	models.StatusWaiting,
	models.StatusPaused,
	models.StatusPausing,
	models.StatusRunning,
}

// finalCandidates are evaluated in order once every status is final:
// user-actionable and negative outcomes dominate a plain success.
var finalCandidates = []models.ExecutionStatus{
	models.StatusRejected,
	models.StatusExpired,
	models.StatusAborted,
	models.StatusAborting,
	models.StatusError,
	models.StatusFailed,
}

// Aggregate combines a set of sibling statuses into one. The second return
// is false for empty input.
//
// Among multiple distinct non-NEW active statuses that are not priority
// candidates, the first one in input order wins. That pick is
// implementation-defined, not a guaranteed ordering.
func Aggregate(statuses []models.ExecutionStatus) (models.ExecutionStatus, bool) {
	if len(statuses) == 0 {
		return "", false
	}

	var active []models.ExecutionStatus

	for _, s := range statuses {
		if !s.IsFinal() {
			active = append(active, s)
		}
	}

	if len(active) > 0 {
		for _, candidate := range activeCandidates {
			for _, s := range active {
				if s == candidate {
					return candidate, true
				}
			}
		}

		for _, s := range active {
			if s != models.StatusNew {
				return s, true
			}
		}

		return models.StatusNew, true
	}

	for _, candidate := range finalCandidates {
		for _, s := range statuses {
			if s == candidate {
				return candidate, true
			}
		}
	}

	return models.StatusSuccess, true
}

// AggregateStartTs returns the earliest of the given timestamps, ignoring
// nils. The fold is associative and order-independent.
func AggregateStartTs(times ...*time.Time) *time.Time {
	var earliest *time.Time

	for _, t := range times {
		if t == nil {
			continue
		}

		if earliest == nil || t.Before(*earliest) {
			earliest = t
		}
	}

	return earliest
}

// AggregateEndTs returns the latest of the given timestamps, ignoring nils.
func AggregateEndTs(times ...*time.Time) *time.Time {
	var latest *time.Time

	for _, t := range times {
		if t == nil {
			continue
		}

		if latest == nil || t.After(*latest) {
			latest = t
		}
	}

	return latest
}

// MultipleErrors is reported when siblings carry more than one distinct
// error message.
const MultipleErrors = "Multiple errors"

// AggregateErrorMessage collects the distinct non-empty messages and returns
// the single message if exactly one distinct value exists, MultipleErrors if
// more than one, and false if none.
func AggregateErrorMessage(messages ...string) (string, bool) {
	var first string

	for _, msg := range messages {
		if msg == "" {
			continue
		}

		if first == "" {
			first = msg

			continue
		}

		if msg != first {
			return MultipleErrors, true
		}
	}

	if first == "" {
		return "", false
	}

	return first, true
}
