// Package leaderboard ranks complete teams by the sum of their players' points.
package leaderboard

import (
	"context"
	"fmt"
	"sort"

	"github.com/opensource-finance/spiritx/internal/domain"
	"github.com/opensource-finance/spiritx/internal/valuation"
)

// Entry is one leaderboard row. Rank is 0 for the caller's incomplete team.
type Entry struct {
	Rank          int     `json:"rank"`
	UserID        string  `json:"userId"`
	Username      string  `json:"username"`
	TeamID        string  `json:"teamId"`
	TeamName      string  `json:"teamName"`
	TotalPoints   float64 `json:"totalPoints"`
	PlayersCount  int     `json:"playersCount"`
	IsComplete    bool    `json:"isComplete"`
	IsCurrentUser bool    `json:"isCurrentUser"`
}

// RosterSource lists every team with its players.
type RosterSource interface {
	ListRosters(ctx context.Context) ([]*domain.TeamRoster, error)
}

// Load reads the rosters and builds the leaderboard for callerID.
func Load(ctx context.Context, src RosterSource, callerID string) ([]Entry, error) {
	rosters, err := src.ListRosters(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rosters: %w", err)
	}
	return Build(rosters, callerID), nil
}

// Build ranks teams with exactly domain.TeamSize players by total points,
// highest first, breaking ties by username. Equal totals share a rank and
// ranks are dense. When callerID owns an incomplete team it is appended
// unranked so its owner can still see the total.
func Build(rosters []*domain.TeamRoster, callerID string) []Entry {
	entries := make([]Entry, 0, len(rosters))
	var pending *Entry

	for _, r := range rosters {
		e := Entry{
			UserID:        r.Team.UserID,
			Username:      r.Username,
			TeamID:        r.Team.ID,
			TeamName:      r.Team.Name,
			TotalPoints:   valuation.TeamTotal(r.Players),
			PlayersCount:  len(r.Players),
			IsComplete:    len(r.Players) == domain.TeamSize,
			IsCurrentUser: callerID != "" && r.Team.UserID == callerID,
		}
		if e.IsComplete {
			entries = append(entries, e)
		} else if e.IsCurrentUser {
			pending = &e
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].TotalPoints != entries[j].TotalPoints {
			return entries[i].TotalPoints > entries[j].TotalPoints
		}
		return entries[i].Username < entries[j].Username
	})

	rank := 0
	for i := range entries {
		if i == 0 || entries[i].TotalPoints != entries[i-1].TotalPoints {
			rank++
		}
		entries[i].Rank = rank
	}

	if pending != nil {
		entries = append(entries, *pending)
	}
	return entries
}

// TeamSummary is a user's own team as shown to its owner.
type TeamSummary struct {
	TeamID      string              `json:"teamId"`
	TeamName    string              `json:"teamName"`
	Budget      int64               `json:"budget"`
	Players     []domain.PlayerView `json:"players"`
	PlayerCount int                 `json:"playerCount"`
	IsComplete  bool                `json:"isComplete"`
	TotalValue  int64               `json:"totalValue"`

	// TotalPoints is shown to the owner whether or not the team is
	// complete, matching the owner's own leaderboard row.
	TotalPoints float64 `json:"totalPoints"`
}

// Summarize builds the owner's view of a team.
func Summarize(team *domain.Team, budget int64, players []*domain.Player) TeamSummary {
	s := TeamSummary{
		TeamID:      team.ID,
		TeamName:    team.Name,
		Budget:      budget,
		Players:     make([]domain.PlayerView, 0, len(players)),
		PlayerCount: len(players),
		IsComplete:  len(players) == domain.TeamSize,
	}
	for _, p := range players {
		d := valuation.Compute(p.Stats)
		s.Players = append(s.Players, domain.NewPlayerView(p, d))
		s.TotalValue += d.PlayerValue
		s.TotalPoints += d.Points
	}
	return s
}
