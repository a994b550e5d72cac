package domain

// PlayerView is the client-facing shape of a player and its valuation.
// It deliberately has no points field.
type PlayerView struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	University        string   `json:"university"`
	Category          string   `json:"category"`
	TotalRuns         int      `json:"totalRuns"`
	BallsFaced        int      `json:"ballsFaced"`
	InningsPlayed     int      `json:"inningsPlayed"`
	Wickets           int      `json:"wickets"`
	OversBowled       float64  `json:"oversBowled"`
	RunsConceded      int      `json:"runsConceded"`
	BattingStrikeRate float64  `json:"battingStrikeRate"`
	BattingAverage    float64  `json:"battingAverage"`
	BowlingStrikeRate *float64 `json:"bowlingStrikeRate"`
	EconomyRate       *float64 `json:"economyRate"`
	PlayerValue       int64    `json:"playerValue"`
}

// NewPlayerView shapes a player and its derived stats for a response.
func NewPlayerView(p *Player, d DerivedStats) PlayerView {
	return PlayerView{
		ID:                p.ID,
		Name:              p.Name,
		University:        p.University,
		Category:          p.Category,
		TotalRuns:         p.Stats.TotalRuns,
		BallsFaced:        p.Stats.BallsFaced,
		InningsPlayed:     p.Stats.InningsPlayed,
		Wickets:           p.Stats.Wickets,
		OversBowled:       p.Stats.OversBowled,
		RunsConceded:      p.Stats.RunsConceded,
		BattingStrikeRate: d.BattingStrikeRate,
		BattingAverage:    d.BattingAverage,
		BowlingStrikeRate: d.BowlingStrikeRate,
		EconomyRate:       d.EconomyRate,
		PlayerValue:       d.PlayerValue,
	}
}
