// Package domain defines the core interfaces and types for spiritx.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// Only raw statistics are stored; valuations are never persisted.
type Repository interface {
	// Player operations
	CreatePlayer(ctx context.Context, p *Player) error
	UpdatePlayer(ctx context.Context, p *Player) error
	GetPlayer(ctx context.Context, id string) (*Player, error)
	FindPlayerByIdentity(ctx context.Context, name, university string) (*Player, error)
	ListPlayers(ctx context.Context, filter PlayerFilter) ([]*Player, int, error)
	// DeletePlayer credits refund to every owner holding the player.
	DeletePlayer(ctx context.Context, id string, refund int64) error
	// DeleteAllPlayers empties every team and resets budgets.
	DeleteAllPlayers(ctx context.Context) (int64, error)
	CountPlayers(ctx context.Context) (*PlayerCounts, error)

	// User operations. CreateUser also creates the user's default team.
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	SetAdmin(ctx context.Context, username string, admin bool) error

	// Team operations
	GetTeamByUser(ctx context.Context, userID string) (*Team, error)
	RenameTeam(ctx context.Context, userID, name string) error
	ListTeamPlayers(ctx context.Context, teamID string) ([]*Player, error)
	ListRosters(ctx context.Context) ([]*TeamRoster, error)

	// AddPlayerToTeam checks the team rules and debits value from the
	// owner's budget in one transaction.
	AddPlayerToTeam(ctx context.Context, userID, playerID string, value int64) error

	// RemovePlayerFromTeam removes the player and credits value back
	// in one transaction.
	RemovePlayerFromTeam(ctx context.Context, userID, playerID string, value int64) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific. PostgresURL, when set, replaces the fields below it.
	PostgresURL      string
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
