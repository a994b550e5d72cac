// Package valuation turns raw player statistics into derived rates, an
// internal points score and a player value. Every caller that needs a
// value or a team total goes through Compute.
package valuation

import (
	"math"

	"github.com/opensource-finance/spiritx/internal/domain"
)

const (
	// ValueStep is the increment player values are rounded to.
	ValueStep = 50_000

	// BaseValue is the value of a player with no recorded statistics.
	BaseValue = 100_000

	// MaxValue is the ceiling Value clamps to. Eleven players at the
	// ceiling still sum well inside an int64.
	MaxValue = 1_000_000_000_000_000
)

// MaxPoints is the points score that maps onto MaxValue.
const MaxPoints = (float64(MaxValue)/1000 - 100) / 9

// Compute derives rates, points and player value from raw statistics.
// It is pure and safe for concurrent use. Negative input is not checked
// here; callers run PlayerStatistics.Validate at the boundary.
//
// A bowling rate that is defined but zero (wickets with no overs, or overs
// with no runs conceded) adds nothing to points rather than an infinite
// term. A rate that would not be finite is reported as undefined, and
// points are capped at MaxPoints.
func Compute(s domain.PlayerStatistics) domain.DerivedStats {
	var d domain.DerivedStats

	ballsBowled := s.OversBowled * 6

	if s.BallsFaced > 0 {
		d.BattingStrikeRate = float64(s.TotalRuns) * 100 / float64(s.BallsFaced)
	}
	if s.InningsPlayed > 0 {
		d.BattingAverage = float64(s.TotalRuns) / float64(s.InningsPlayed)
	}
	if s.Wickets > 0 {
		if sr := ballsBowled / float64(s.Wickets); finite(sr) {
			d.BowlingStrikeRate = &sr
		}
	}
	if ballsBowled > 0 {
		if econ := float64(s.RunsConceded) / ballsBowled * 6; finite(econ) {
			d.EconomyRate = &econ
		}
	}

	batting := d.BattingStrikeRate/5 + d.BattingAverage*0.8

	var bowling float64
	if d.BowlingStrikeRate != nil && *d.BowlingStrikeRate > 0 {
		bowling += 500 / *d.BowlingStrikeRate
	}
	if d.EconomyRate != nil && *d.EconomyRate > 0 {
		bowling += 140 / *d.EconomyRate
	}

	d.Points = batting + bowling
	if !(d.Points <= MaxPoints) {
		d.Points = MaxPoints
	}
	d.PlayerValue = Value(d.Points)
	return d
}

// Value converts points to a player value rounded to the nearest ValueStep.
// Exact halves round to the even step. The result is clamped to
// [0, MaxValue]; NaN is treated as zero points.
func Value(points float64) int64 {
	if math.IsNaN(points) {
		points = 0
	}
	steps := math.RoundToEven((9*points + 100) * 1000 / ValueStep)
	steps = math.Max(0, math.Min(steps, MaxValue/ValueStep))
	return int64(steps) * ValueStep
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// TeamTotal computes and sums the points of every player given.
// An empty team totals zero.
func TeamTotal(players []*domain.Player) float64 {
	var sum float64
	for _, p := range players {
		sum += Compute(p.Stats).Points
	}
	return sum
}
