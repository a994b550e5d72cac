// Package mcptools exposes player data to Model Context Protocol clients.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/opensource-finance/spiritx/internal/domain"
	"github.com/opensource-finance/spiritx/internal/leaderboard"
	"github.com/opensource-finance/spiritx/internal/query"
	"github.com/opensource-finance/spiritx/internal/valuation"
)

const (
	defaultLimit = 5
	maxLimit     = 50
)

// Source is the read access the tools need.
type Source interface {
	ListPlayers(ctx context.Context, filter domain.PlayerFilter) ([]*domain.Player, int, error)
	ListRosters(ctx context.Context) ([]*domain.TeamRoster, error)
}

type TopPlayersArgs struct {
	By    string `json:"by,omitempty" jsonschema:"Rank by runs or wickets (default runs)"`
	Limit int    `json:"limit,omitempty" jsonschema:"Number of players (default 5, max 50)"`
}

type PlayerStatsArgs struct {
	Name string `json:"name" jsonschema:"Full or partial player name (required)"`
}

type QueryPlayersArgs struct {
	Filter string `json:"filter,omitempty" jsonschema:"CEL boolean expression, e.g. wickets > 10 && category == 'Bowler'"`
	RankBy string `json:"rankBy,omitempty" jsonschema:"CEL numeric expression to sort by, highest first"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Number of players (default 5, max 50)"`
}

type LeaderboardArgs struct{}

type tools struct {
	src    Source
	engine *query.Engine
}

// NewServer creates an MCP server with the player tools registered.
func NewServer(src Source, engine *query.Engine, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "spiritx", Version: version}, nil)
	t := &tools{src: src, engine: engine}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "top_players",
		Description: "Top players by total runs or wickets, with derived rates and player value",
	}, t.topPlayers)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "player_stats",
		Description: "Statistics and value for players whose name contains the given text (up to 5)",
	}, t.playerStats)

	mcp.AddTool(server, &mcp.Tool{
		Name: "query_players",
		Description: "Filter and rank players with CEL expressions over name, university, category, " +
			"runs, balls, innings, wickets, overs, conceded, strikeRate, average, bowlingStrikeRate, " +
			"hasBowlingStrikeRate, economy, hasEconomy and value",
	}, t.queryPlayers)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "leaderboard",
		Description: "Ranked complete teams and their total scores",
	}, t.leaderboard)

	return server
}

// Handler serves server over streamable HTTP with JSON responses.
func Handler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, &mcp.StreamableHTTPOptions{JSONResponse: true})
}

func (t *tools) topPlayers(ctx context.Context, _ *mcp.CallToolRequest, args TopPlayersArgs) (*mcp.CallToolResult, any, error) {
	rank := "runs"
	switch strings.ToLower(strings.TrimSpace(args.By)) {
	case "", "runs":
	case "wickets":
		rank = "wickets"
	default:
		return toolError(fmt.Errorf("by must be runs or wickets, got %q", args.By)), nil, nil
	}

	players, err := t.players(ctx)
	if err != nil {
		return nil, nil, err
	}
	top, err := t.engine.Rank(players, rank, clampLimit(args.Limit))
	if err != nil {
		return toolError(err), nil, nil
	}
	return playersResult(top)
}

func (t *tools) playerStats(ctx context.Context, _ *mcp.CallToolRequest, args PlayerStatsArgs) (*mcp.CallToolResult, any, error) {
	name := strings.TrimSpace(args.Name)
	if name == "" {
		return toolError(errors.New("name is required")), nil, nil
	}

	players, _, err := t.src.ListPlayers(ctx, domain.PlayerFilter{Search: name})
	if err != nil {
		return nil, nil, err
	}
	needle := strings.ToLower(name)
	var matches []*domain.Player
	for _, p := range players {
		if strings.Contains(strings.ToLower(p.Name), needle) {
			matches = append(matches, p)
			if len(matches) == defaultLimit {
				break
			}
		}
	}
	return playersResult(matches)
}

func (t *tools) queryPlayers(ctx context.Context, _ *mcp.CallToolRequest, args QueryPlayersArgs) (*mcp.CallToolResult, any, error) {
	players, err := t.players(ctx)
	if err != nil {
		return nil, nil, err
	}

	if strings.TrimSpace(args.Filter) != "" {
		f, err := t.engine.Compile(args.Filter)
		if err != nil {
			return toolError(err), nil, nil
		}
		if players, err = f.Apply(players); err != nil {
			return toolError(err), nil, nil
		}
	}

	limit := clampLimit(args.Limit)
	if strings.TrimSpace(args.RankBy) != "" {
		ranked, err := t.engine.Rank(players, args.RankBy, limit)
		if err != nil {
			return toolError(err), nil, nil
		}
		return playersResult(ranked)
	}
	if len(players) > limit {
		players = players[:limit]
	}
	return playersResult(players)
}

func (t *tools) leaderboard(ctx context.Context, _ *mcp.CallToolRequest, _ LeaderboardArgs) (*mcp.CallToolResult, any, error) {
	entries, err := leaderboard.Load(ctx, t.src, "")
	if err != nil {
		return nil, nil, err
	}
	return toolJSON(map[string]any{"entries": entries})
}

func (t *tools) players(ctx context.Context) ([]*domain.Player, error) {
	players, _, err := t.src.ListPlayers(ctx, domain.PlayerFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	return players, nil
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return defaultLimit
	case n > maxLimit:
		return maxLimit
	}
	return n
}

func playersResult(players []*domain.Player) (*mcp.CallToolResult, any, error) {
	views := make([]domain.PlayerView, 0, len(players))
	for _, p := range players {
		views = append(views, domain.NewPlayerView(p, valuation.Compute(p.Stats)))
	}
	return toolJSON(map[string]any{"players": views})
}

func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError(err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
	}, nil, nil
}

func toolError(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("error: %v", err)}},
	}
}
