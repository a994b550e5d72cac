package domain

import "time"

const (
	// TeamSize is the exact number of players a team needs to be ranked.
	TeamSize = 11

	// DefaultBudget is the starting budget of a new user.
	DefaultBudget int64 = 9_000_000

	// DefaultTeamName is given to the team created at registration.
	DefaultTeamName = "My Team"
)

// User is an account holder. Budget is what is left after buying players.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Budget       int64     `json:"budget"`
	IsAdmin      bool      `json:"isAdmin"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Team belongs to exactly one user.
type Team struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// TeamRoster is a team together with its owner and current players.
type TeamRoster struct {
	Team     Team
	Username string
	Budget   int64
	Players  []*Player
}
