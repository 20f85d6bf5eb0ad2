package scoring

import (
	"math"

	"github.com/wordbloom/analytics-backend/internal/types"
)

// DeriveStars turns a session summary into the 0-5 star rating students see
// in the game UI. The thresholds are the scoring contract; do not tune them.
//
// Accuracy resolves in order: summary.accuracy, then score/total, then
// score/max. If none resolve, a numeric summary.stars passes through.
func DeriveStars(summary *types.SessionSummary) int {
	if summary == nil {
		return 0
	}
	if summary.Completed != nil && !*summary.Completed {
		return 0
	}

	accuracy := resolveAccuracy(summary)
	if accuracy != nil {
		a := *accuracy
		switch {
		case a >= 1.0:
			return 5
		case a >= 0.95:
			return 4
		case a >= 0.90:
			return 3
		case a >= 0.80:
			return 2
		case a >= 0.60:
			return 1
		default:
			return 0
		}
	}

	if summary.Stars != nil {
		return int(*summary.Stars)
	}
	return 0
}

func resolveAccuracy(summary *types.SessionSummary) *float64 {
	if summary.Accuracy != nil {
		return summary.Accuracy
	}
	if summary.Score != nil && summary.Total != nil && *summary.Total > 0 {
		a := *summary.Score / *summary.Total
		return &a
	}
	if summary.Score != nil && summary.Max != nil && *summary.Max > 0 {
		a := *summary.Score / *summary.Max
		return &a
	}
	return nil
}

// PointsOf coerces an attempt's nullable points to a finite number. Negative
// adjustments pass through unclamped.
func PointsOf(a types.Attempt) float64 {
	if a.Points == nil {
		return 0
	}
	v := *a.Points
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
