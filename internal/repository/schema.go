package repository

// Schema definitions for the spiritx database.
// Compatible with both SQLite and PostgreSQL.
// Players carry raw statistics only; nothing derived is stored.

const schemaUsers = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    budget BIGINT NOT NULL,
    is_admin BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_users_username_lower ON users(LOWER(username));
`

const schemaTeams = `
CREATE TABLE IF NOT EXISTS teams (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaPlayers = `
CREATE TABLE IF NOT EXISTS players (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    university TEXT NOT NULL,
    category TEXT NOT NULL,
    total_runs INTEGER NOT NULL DEFAULT 0,
    balls_faced INTEGER NOT NULL DEFAULT 0,
    innings_played INTEGER NOT NULL DEFAULT 0,
    wickets INTEGER NOT NULL DEFAULT 0,
    overs_bowled DOUBLE PRECISION NOT NULL DEFAULT 0,
    runs_conceded INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_players_identity ON players(LOWER(name), LOWER(university));
CREATE INDEX IF NOT EXISTS idx_players_category ON players(category);
`

const schemaTeamPlayers = `
CREATE TABLE IF NOT EXISTS team_players (
    team_id TEXT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
    player_id TEXT NOT NULL REFERENCES players(id) ON DELETE CASCADE,
    added_at TIMESTAMP NOT NULL,
    PRIMARY KEY (team_id, player_id)
);

CREATE INDEX IF NOT EXISTS idx_team_players_player ON team_players(player_id);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaUsers,
		schemaTeams,
		schemaPlayers,
		schemaTeamPlayers,
	}
}
