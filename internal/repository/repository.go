// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/spiritx/internal/domain"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

const playerColumns = `p.id, p.name, p.university, p.category,
	p.total_runs, p.balls_faced, p.innings_played,
	p.wickets, p.overs_bowled, p.runs_conceded,
	p.created_at, p.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlayer(row rowScanner, extra ...any) (*domain.Player, error) {
	var p domain.Player
	dest := append(extra,
		&p.ID, &p.Name, &p.University, &p.Category,
		&p.Stats.TotalRuns, &p.Stats.BallsFaced, &p.Stats.InningsPlayed,
		&p.Stats.Wickets, &p.Stats.OversBowled, &p.Stats.RunsConceded,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePlayer stores a new player. An ID is assigned when empty.
func (r *SQLRepository) CreatePlayer(ctx context.Context, p *domain.Player) error {
	if err := validatePlayer(p); err != nil {
		return err
	}

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	query := `
		INSERT INTO players (
			id, name, university, category,
			total_runs, balls_faced, innings_played,
			wickets, overs_bowled, runs_conceded,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		p.ID, p.Name, p.University, p.Category,
		p.Stats.TotalRuns, p.Stats.BallsFaced, p.Stats.InningsPlayed,
		p.Stats.Wickets, p.Stats.OversBowled, p.Stats.RunsConceded,
		p.CreatedAt, p.UpdatedAt,
	)
	return err
}

// UpdatePlayer overwrites a player's identity and statistics.
func (r *SQLRepository) UpdatePlayer(ctx context.Context, p *domain.Player) error {
	if p.ID == "" {
		return fmt.Errorf("%w: player id is required", domain.ErrInvalidInput)
	}
	if err := validatePlayer(p); err != nil {
		return err
	}

	p.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE players SET
			name = ?, university = ?, category = ?,
			total_runs = ?, balls_faced = ?, innings_played = ?,
			wickets = ?, overs_bowled = ?, runs_conceded = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		p.Name, p.University, p.Category,
		p.Stats.TotalRuns, p.Stats.BallsFaced, p.Stats.InningsPlayed,
		p.Stats.Wickets, p.Stats.OversBowled, p.Stats.RunsConceded,
		p.UpdatedAt, p.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// GetPlayer retrieves a player by ID.
func (r *SQLRepository) GetPlayer(ctx context.Context, id string) (*domain.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players p WHERE p.id = ?`

	p, err := scanPlayer(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return p, err
}

// FindPlayerByIdentity looks a player up by name and university, ignoring case.
func (r *SQLRepository) FindPlayerByIdentity(ctx context.Context, name, university string) (*domain.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players p
		WHERE LOWER(p.name) = ? AND LOWER(p.university) = ?`

	p, err := scanPlayer(r.db.QueryRowContext(ctx, r.rebind(query),
		strings.ToLower(strings.TrimSpace(name)),
		strings.ToLower(strings.TrimSpace(university)),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return p, err
}

// ListPlayers returns a page of players ordered by name, and the total
// number of players matching the filter.
func (r *SQLRepository) ListPlayers(ctx context.Context, filter domain.PlayerFilter) ([]*domain.Player, int, error) {
	where := ""
	var args []any
	if s := strings.TrimSpace(filter.Search); s != "" {
		pattern := "%" + strings.ToLower(s) + "%"
		where = ` WHERE LOWER(p.name) LIKE ? OR LOWER(p.university) LIKE ?`
		args = append(args, pattern, pattern)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM players p` + where
	if err := r.db.QueryRowContext(ctx, r.rebind(countQuery), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count players: %w", err)
	}

	query := `SELECT ` + playerColumns + ` FROM players p` + where + ` ORDER BY p.name, p.id`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var players []*domain.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, 0, err
		}
		players = append(players, p)
	}
	return players, total, rows.Err()
}

// DeletePlayer removes a player. Owners of teams holding the player are
// credited refund, and memberships go with the player.
func (r *SQLRepository) DeletePlayer(ctx context.Context, id string, refund int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	credit := `
		UPDATE users SET budget = budget + ?
		WHERE id IN (
			SELECT t.user_id FROM teams t
			JOIN team_players tp ON tp.team_id = t.id
			WHERE tp.player_id = ?
		)
	`
	if _, err := tx.ExecContext(ctx, r.rebind(credit), refund, id); err != nil {
		return fmt.Errorf("failed to credit owners: %w", err)
	}

	if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM team_players WHERE player_id = ?`), id); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM players WHERE id = ?`), id)
	if err != nil {
		return err
	}
	if err := requireAffected(result); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteAllPlayers clears the player pool. Every team ends up empty, so
// every budget goes back to the starting amount.
func (r *SQLRepository) DeleteAllPlayers(ctx context.Context) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM team_players`); err != nil {
		return 0, err
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM players`)
	if err != nil {
		return 0, err
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, r.rebind(`UPDATE users SET budget = ?`), domain.DefaultBudget); err != nil {
		return 0, fmt.Errorf("failed to reset budgets: %w", err)
	}

	return deleted, tx.Commit()
}

// CountPlayers returns the total and per-category player counts.
// Category spellings are folded to their canonical names.
func (r *SQLRepository) CountPlayers(ctx context.Context) (*domain.PlayerCounts, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT category, COUNT(*) FROM players GROUP BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := &domain.PlayerCounts{ByCategory: make(map[string]int)}
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return nil, err
		}
		counts.ByCategory[domain.CanonicalCategory(category)] += n
		counts.Total += n
	}
	return counts, rows.Err()
}

// CreateUser stores a new user and its default team in one transaction.
func (r *SQLRepository) CreateUser(ctx context.Context, u *domain.User) error {
	if strings.TrimSpace(u.Username) == "" || u.PasswordHash == "" {
		return fmt.Errorf("%w: username and password hash are required", domain.ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var existing int
	err = tx.QueryRowContext(ctx, r.rebind(`SELECT COUNT(*) FROM users WHERE LOWER(username) = ?`),
		strings.ToLower(u.Username)).Scan(&existing)
	if err != nil {
		return err
	}
	if existing > 0 {
		return fmt.Errorf("%w: username %q", domain.ErrConflict, u.Username)
	}

	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	u.CreatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, r.rebind(`
		INSERT INTO users (id, username, password_hash, budget, is_admin, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), u.ID, u.Username, u.PasswordHash, u.Budget, u.IsAdmin, u.CreatedAt)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, r.rebind(`
		INSERT INTO teams (id, user_id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`), uuid.New().String(), u.ID, domain.DefaultTeamName, u.CreatedAt, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create default team: %w", err)
	}

	return tx.Commit()
}

const userColumns = `id, username, password_hash, budget, is_admin, created_at`

func scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Budget, &u.IsAdmin, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUser retrieves a user by ID.
func (r *SQLRepository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return scanUser(r.db.QueryRowContext(ctx, r.rebind(query), id))
}

// GetUserByUsername retrieves a user by username, ignoring case.
func (r *SQLRepository) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(username) = ?`
	return scanUser(r.db.QueryRowContext(ctx, r.rebind(query), strings.ToLower(username)))
}

// SetAdmin grants or revokes admin rights.
func (r *SQLRepository) SetAdmin(ctx context.Context, username string, admin bool) error {
	result, err := r.db.ExecContext(ctx, r.rebind(`UPDATE users SET is_admin = ? WHERE LOWER(username) = ?`),
		admin, strings.ToLower(username))
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// GetTeamByUser retrieves the team owned by a user.
func (r *SQLRepository) GetTeamByUser(ctx context.Context, userID string) (*domain.Team, error) {
	var t domain.Team
	err := r.db.QueryRowContext(ctx, r.rebind(`SELECT id, user_id, name, created_at FROM teams WHERE user_id = ?`), userID).
		Scan(&t.ID, &t.UserID, &t.Name, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// RenameTeam changes the name of a user's team.
func (r *SQLRepository) RenameTeam(ctx context.Context, userID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: team name is required", domain.ErrInvalidInput)
	}
	result, err := r.db.ExecContext(ctx, r.rebind(`UPDATE teams SET name = ?, updated_at = ? WHERE user_id = ?`),
		name, time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// ListTeamPlayers returns a team's players in the order they were added.
func (r *SQLRepository) ListTeamPlayers(ctx context.Context, teamID string) ([]*domain.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM team_players tp
		JOIN players p ON p.id = tp.player_id
		WHERE tp.team_id = ?
		ORDER BY tp.added_at, p.name`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []*domain.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// ListRosters returns every team with its owner and players.
func (r *SQLRepository) ListRosters(ctx context.Context) ([]*domain.TeamRoster, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.id, t.user_id, t.name, t.created_at, u.username, u.budget
		FROM teams t
		JOIN users u ON u.id = t.user_id
		ORDER BY u.username
	`)
	if err != nil {
		return nil, err
	}

	var rosters []*domain.TeamRoster
	byTeam := make(map[string]*domain.TeamRoster)
	for rows.Next() {
		var ro domain.TeamRoster
		if err := rows.Scan(&ro.Team.ID, &ro.Team.UserID, &ro.Team.Name, &ro.Team.CreatedAt, &ro.Username, &ro.Budget); err != nil {
			rows.Close()
			return nil, err
		}
		rosters = append(rosters, &ro)
		byTeam[ro.Team.ID] = &ro
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	memberRows, err := r.db.QueryContext(ctx, `SELECT tp.team_id, `+playerColumns+`
		FROM team_players tp
		JOIN players p ON p.id = tp.player_id
		ORDER BY tp.added_at, p.name`)
	if err != nil {
		return nil, err
	}
	defer memberRows.Close()

	for memberRows.Next() {
		var teamID string
		p, err := scanPlayer(memberRows, &teamID)
		if err != nil {
			return nil, err
		}
		if ro, ok := byTeam[teamID]; ok {
			ro.Players = append(ro.Players, p)
		}
	}
	return rosters, memberRows.Err()
}

// AddPlayerToTeam adds a player to a user's team and debits value from
// the user's budget. The team row is written first so concurrent changes
// to the same team are serialised by the database.
func (r *SQLRepository) AddPlayerToTeam(ctx context.Context, userID, playerID string, value int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	teamID, err := r.lockTeam(ctx, tx, userID)
	if err != nil {
		return err
	}

	var n int
	if err := tx.QueryRowContext(ctx, r.rebind(`SELECT COUNT(*) FROM players WHERE id = ?`), playerID).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: player %s", domain.ErrNotFound, playerID)
	}

	err = tx.QueryRowContext(ctx, r.rebind(`SELECT COUNT(*) FROM team_players WHERE team_id = ? AND player_id = ?`),
		teamID, playerID).Scan(&n)
	if err != nil {
		return err
	}
	if n > 0 {
		return domain.ErrAlreadyInTeam
	}

	if err := tx.QueryRowContext(ctx, r.rebind(`SELECT COUNT(*) FROM team_players WHERE team_id = ?`), teamID).Scan(&n); err != nil {
		return err
	}
	if n >= domain.TeamSize {
		return domain.ErrTeamFull
	}

	_, err = tx.ExecContext(ctx, r.rebind(`INSERT INTO team_players (team_id, player_id, added_at) VALUES (?, ?, ?)`),
		teamID, playerID, time.Now().UTC())
	if err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, r.rebind(`UPDATE users SET budget = budget - ? WHERE id = ? AND budget >= ?`),
		value, userID, value)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err != nil {
		return err
	} else if affected == 0 {
		return domain.ErrInsufficientBudget
	}

	return tx.Commit()
}

// RemovePlayerFromTeam removes a player from a user's team and credits
// value back to the user's budget.
func (r *SQLRepository) RemovePlayerFromTeam(ctx context.Context, userID, playerID string, value int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	teamID, err := r.lockTeam(ctx, tx, userID)
	if err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM team_players WHERE team_id = ? AND player_id = ?`), teamID, playerID)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err != nil {
		return err
	} else if affected == 0 {
		return domain.ErrNotInTeam
	}

	if _, err := tx.ExecContext(ctx, r.rebind(`UPDATE users SET budget = budget + ? WHERE id = ?`), value, userID); err != nil {
		return err
	}

	return tx.Commit()
}

// lockTeam touches the user's team row inside tx and returns its ID.
func (r *SQLRepository) lockTeam(ctx context.Context, tx *sql.Tx, userID string) (string, error) {
	result, err := tx.ExecContext(ctx, r.rebind(`UPDATE teams SET updated_at = ? WHERE user_id = ?`), time.Now().UTC(), userID)
	if err != nil {
		return "", err
	}
	if affected, err := result.RowsAffected(); err != nil {
		return "", err
	} else if affected == 0 {
		return "", fmt.Errorf("%w: user has no team", domain.ErrNotFound)
	}

	var teamID string
	if err := tx.QueryRowContext(ctx, r.rebind(`SELECT id FROM teams WHERE user_id = ?`), userID).Scan(&teamID); err != nil {
		return "", err
	}
	return teamID, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func validatePlayer(p *domain.Player) error {
	if strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.University) == "" || strings.TrimSpace(p.Category) == "" {
		return fmt.Errorf("%w: name, university and category are required", domain.ErrInvalidInput)
	}
	return p.Stats.Validate()
}

func requireAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			fmt.Fprintf(&b, "$%d", n)
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
