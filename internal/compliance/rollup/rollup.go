// Package rollup derives compliance status bottom-up: measure completion from
// evidence links, measure status from completion, record status from the
// multiset of measure statuses. Every computation here is pure and
// idempotent; the engine in this package is the only writer of the derived
// status fields.
package rollup

import (
	"math"

	"conforma/internal/compliance"
)

// Completion is the derived evidence completeness of a control measure.
type Completion struct {
	RequiredCount  int
	ProvidedCount  int
	Percentage     int
	RejectedCounts int
}

// MeasureCompletion computes completeness from the measure's declared
// evidence types and its active links. requiredCount is the number of
// distinct acceptable types; providedCount the number of those types with at
// least one active link. Zero required types means zero percent, not a
// division error. Never mutates state; it is a view.
func MeasureCompletion(m *compliance.ControlMeasure, links []compliance.LinkedEvidence) Completion {
	required := make(map[string]bool, len(m.RequiredEvidenceTypes))
	for _, t := range m.RequiredEvidenceTypes {
		required[t] = true
	}

	provided := make(map[string]bool)
	rejected := 0
	for _, le := range links {
		if !required[le.EvidenceType] {
			continue
		}
		provided[le.EvidenceType] = true
		if le.ReviewStatus == compliance.ReviewRejected {
			rejected++
		}
	}

	c := Completion{
		RequiredCount:  len(required),
		ProvidedCount:  len(provided),
		RejectedCounts: rejected,
	}
	if c.RequiredCount > 0 {
		c.Percentage = int(math.Round(100 * float64(c.ProvidedCount) / float64(c.RequiredCount)))
	}
	return c
}

// NextMeasureStatus applies the deterministic status rule, in order:
// full completion advances to implemented, rejected required evidence fails
// the measure, partial completion means in progress, otherwise planned.
// A verified measure is terminal for automatic rollup; only an explicit
// authorized action moves it onward.
func NextMeasureStatus(m *compliance.ControlMeasure, links []compliance.LinkedEvidence) compliance.MeasureStatus {
	if m.Status == compliance.MeasureVerified {
		return compliance.MeasureVerified
	}
	c := MeasureCompletion(m, links)
	switch {
	case c.RequiredCount > 0 && c.Percentage == 100:
		return compliance.MeasureImplemented
	case c.RejectedCounts > 0:
		return compliance.MeasureFailed
	case c.Percentage > 0:
		return compliance.MeasureInProgress
	default:
		return compliance.MeasurePlanned
	}
}

// FoldRecordStatus folds measure statuses into a record status. Worst status
// dominates: a single failed measure drags the record to non_compliant no
// matter how many passed, because partial compliance is not compliance.
// Precedence, highest first: failed, in_progress, then the completion tiers.
func FoldRecordStatus(statuses []compliance.MeasureStatus) compliance.RecordStatus {
	if len(statuses) == 0 {
		return compliance.RecordNotStarted
	}

	var failed, inProgress, implemented, verified, planned int
	for _, st := range statuses {
		switch st {
		case compliance.MeasureFailed:
			failed++
		case compliance.MeasureInProgress:
			inProgress++
		case compliance.MeasureImplemented:
			implemented++
		case compliance.MeasureVerified:
			verified++
		default:
			planned++
		}
	}

	switch {
	case failed > 0:
		return compliance.RecordNonCompliant
	case inProgress > 0:
		return compliance.RecordInProgress
	case verified == len(statuses):
		return compliance.RecordCompliant
	case implemented+verified == len(statuses):
		// Everything is at least implemented, awaiting review.
		return compliance.RecordPendingReview
	case implemented+verified > 0:
		// Work has landed on some measures while others are still planned.
		return compliance.RecordInProgress
	default:
		return compliance.RecordNotStarted
	}
}
