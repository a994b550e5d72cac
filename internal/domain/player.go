package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Player categories as stored by the admin console and the CSV loader.
const (
	CategoryBatsman    = "Batsman"
	CategoryBowler     = "Bowler"
	CategoryAllRounder = "All-Rounder"
)

// MaxStatistic caps every raw statistic so valuation stays finite and
// player values fit comfortably in an int64.
const MaxStatistic = 1_000_000_000

// PlayerStatistics is the raw record a valuation is computed from.
// Only these six fields are persisted; everything derived is recomputed on read.
type PlayerStatistics struct {
	TotalRuns     int     `json:"totalRuns" validate:"min=0,max=1000000000"`
	BallsFaced    int     `json:"ballsFaced" validate:"min=0,max=1000000000"`
	InningsPlayed int     `json:"inningsPlayed" validate:"min=0,max=1000000000"`
	Wickets       int     `json:"wickets" validate:"min=0,max=1000000000"`
	OversBowled   float64 `json:"oversBowled" validate:"min=0,max=1000000000"`
	RunsConceded  int     `json:"runsConceded" validate:"min=0,max=1000000000"`
}

// Validate rejects negative, non-finite and over-cap statistics.
func (s PlayerStatistics) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"totalRuns", float64(s.TotalRuns)},
		{"ballsFaced", float64(s.BallsFaced)},
		{"inningsPlayed", float64(s.InningsPlayed)},
		{"wickets", float64(s.Wickets)},
		{"oversBowled", s.OversBowled},
		{"runsConceded", float64(s.RunsConceded)},
	}
	for _, f := range fields {
		if f.value < 0 {
			return fmt.Errorf("%w: %s is %v", ErrNegativeStatistic, f.name, f.value)
		}
		if math.IsNaN(f.value) || f.value > MaxStatistic {
			return fmt.Errorf("%w: %s is %v", ErrStatisticTooLarge, f.name, f.value)
		}
	}
	return nil
}

// DerivedStats is the valuation of a PlayerStatistics record.
// BowlingStrikeRate and EconomyRate are nil when their denominator is zero.
// Points is internal and must not reach a client; use PlayerView for responses.
type DerivedStats struct {
	BattingStrikeRate float64
	BattingAverage    float64
	BowlingStrikeRate *float64
	EconomyRate       *float64
	Points            float64
	PlayerValue       int64
}

// Player is a tournament player.
type Player struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	University string           `json:"university"`
	Category   string           `json:"category"`
	Stats      PlayerStatistics `json:"stats"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

// PlayerFilter narrows a player listing.
type PlayerFilter struct {
	Search string
	Limit  int
	Offset int
}

// PlayerCounts summarises the player table.
type PlayerCounts struct {
	Total      int            `json:"totalPlayers"`
	ByCategory map[string]int `json:"byCategory"`
}

var categorySynonyms = map[string]string{
	"batsman":      CategoryBatsman,
	"batsmen":      CategoryBatsman,
	"bat":          CategoryBatsman,
	"batter":       CategoryBatsman,
	"bowler":       CategoryBowler,
	"bowlers":      CategoryBowler,
	"bowl":         CategoryBowler,
	"all-rounder":  CategoryAllRounder,
	"all rounder":  CategoryAllRounder,
	"allrounder":   CategoryAllRounder,
	"all-rounders": CategoryAllRounder,
	"allrounders":  CategoryAllRounder,
}

// CanonicalCategory maps a category spelling to its canonical name.
// Unknown spellings are returned trimmed and unchanged.
func CanonicalCategory(category string) string {
	c := strings.TrimSpace(category)
	if canonical, ok := categorySynonyms[strings.ToLower(c)]; ok {
		return canonical
	}
	return c
}

// CategoryMatches reports whether a stored category satisfies a filter.
// Known categories match across their spellings; anything else must match
// case-insensitively.
func CategoryMatches(stored, filter string) bool {
	if strings.TrimSpace(stored) == "" || strings.TrimSpace(filter) == "" {
		return false
	}
	return strings.EqualFold(CanonicalCategory(stored), CanonicalCategory(filter))
}

// IdentityKey is the dedup key for a player: name and university, case-folded.
func IdentityKey(name, university string) string {
	return strings.ToLower(strings.TrimSpace(name)) + "|" + strings.ToLower(strings.TrimSpace(university))
}
