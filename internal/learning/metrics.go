package learning

import (
	"context"
	"fmt"

	"github.com/arcwatch/sentinel/internal/store"
)

// metricsStore is the narrow read surface the emitter needs.
type metricsStore interface {
	ListFailureEvents(ctx context.Context) ([]store.FailureEvent, error)
	ListPropagationRecords(ctx context.Context, failureID string) ([]store.PropagationRecord, error)
}

// Emit computes the current MetricsSnapshot. Any metric with no underlying
// data is left nil; FormatSnapshot renders those as "N/A".
func Emit(ctx context.Context, s metricsStore) (MetricsSnapshot, error) {
	events, err := s.ListFailureEvents(ctx)
	if err != nil {
		return MetricsSnapshot{}, fmt.Errorf("list failure events: %w", err)
	}
	if len(events) == 0 {
		return MetricsSnapshot{TotalsByType: map[string]int{}}, nil
	}

	totals := make(map[string]int)
	var recurring int
	var propagateLatencies []float64
	var expectedPropagations, successfulPropagations int

	for _, f := range events {
		totals[f.Type]++
		if f.RecurrenceCount > 0 {
			recurring++
		}

		records, err := s.ListPropagationRecords(ctx, f.ID)
		if err != nil {
			return MetricsSnapshot{}, fmt.Errorf("list propagation records for %s: %w", f.ID, err)
		}
		if len(records) == 0 {
			continue
		}
		expectedPropagations += len(records)
		var earliest *store.PropagationRecord
		for i := range records {
			r := &records[i]
			if r.Success {
				successfulPropagations++
			}
			if earliest == nil || r.Timestamp.Before(earliest.Timestamp) {
				earliest = r
			}
		}
		if earliest != nil {
			propagateLatencies = append(propagateLatencies, earliest.Timestamp.Sub(f.DetectedAt).Seconds()*1000)
		}
	}

	snap := MetricsSnapshot{TotalsByType: totals}

	if len(propagateLatencies) > 0 {
		var sum float64
		for _, v := range propagateLatencies {
			sum += v
		}
		avg := sum / float64(len(propagateLatencies))
		snap.AvgTimeToPropagateMs = &avg
	}

	if expectedPropagations > 0 {
		pct := 100 * float64(successfulPropagations) / float64(expectedPropagations)
		snap.PropagationCompleteness = &pct
	}

	if len(events) > 0 {
		pct := 100 * float64(recurring) / float64(len(events))
		snap.RecurrenceRate = &pct
	}

	return snap, nil
}

// FormatFloat renders a nullable metric as a fixed-point string or "N/A".
func FormatFloat(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", *v)
}
