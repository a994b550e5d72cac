// Package chatbot answers free-text questions about players. Common
// questions are handled locally with player queries; anything else goes to
// an optional LLM assistant.
package chatbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/dustin/go-humanize"
	"github.com/opensource-finance/spiritx/internal/domain"
	"github.com/opensource-finance/spiritx/internal/query"
	"github.com/opensource-finance/spiritx/internal/valuation"
)

const topLimit = 5

// Fixed replies.
const (
	ReplyPointsHidden = "I don't have information about player points. Points are kept hidden as per the rules of the platform."
	ReplyHelp         = "I can help you with player information, statistics, and team building recommendations. Try asking about top run scorers, best bowlers, or for suggestions on building your team."
	ReplyUnavailable  = "I'm having trouble answering that right now. Please try again later."
)

// systemPrompt keeps the assistant away from the hidden scoring system.
const systemPrompt = "You are Spiriter, a cricket assistant for a fantasy cricket platform. " +
	"IMPORTANT: NEVER mention or discuss player points or any scoring system. " +
	"If asked about points, say 'Points are kept hidden as per the rules of the platform.' " +
	"Focus on providing helpful cricket advice and team building suggestions based on player statistics."

// Assistant answers questions the built-in intents cannot.
type Assistant interface {
	Reply(ctx context.Context, systemPrompt, message string) (string, error)
}

// Store is the read access the chatbot needs.
type Store interface {
	ListPlayers(ctx context.Context, filter domain.PlayerFilter) ([]*domain.Player, int, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetTeamByUser(ctx context.Context, userID string) (*domain.Team, error)
	ListTeamPlayers(ctx context.Context, teamID string) ([]*domain.Player, error)
}

// Response is a chatbot answer. RecommendedPlayers is never nil.
type Response struct {
	Reply              string              `json:"reply"`
	RecommendedPlayers []domain.PlayerView `json:"recommendedPlayers"`
}

// Bot routes a message to an intent and builds the reply.
type Bot struct {
	store     Store
	engine    *query.Engine
	assistant Assistant
}

// New creates a Bot. A nil assistant answers unknown questions with help text.
func New(store Store, engine *query.Engine, assistant Assistant) *Bot {
	return &Bot{store: store, engine: engine, assistant: assistant}
}

type intent int

const (
	intentFallback intent = iota
	intentTopRuns
	intentTopWickets
	intentBestTeam
	intentPlayerStats
	intentPoints
)

// classify picks the intent for message. For player stats it also returns
// the extracted name; a stats question without a usable name falls through
// to the later intents.
func classify(message string) (intent, string) {
	m := strings.ToLower(message)
	has := func(s string) bool { return strings.Contains(m, s) }

	switch {
	case has("most runs"), has("top") && has("runs"), has("highest") && has("runs"), has("best") && has("batsman"):
		return intentTopRuns, ""
	case has("most wicket"), has("top") && has("wicket"), has("highest") && has("wicket"), has("best") && has("bowler"):
		return intentTopWickets, ""
	case has("best team"), has("suggest team"), has("recommend team"), has("optimal team"), has("good team"):
		return intentBestTeam, ""
	}

	if (has("stats") || has("statistics")) && !has("most") && !has("top") && !has("best") {
		if name := extractPlayerName(message); name != "" {
			return intentPlayerStats, name
		}
	}

	if has("point") || has("score") || has("how") && has("calculated") {
		return intentPoints, ""
	}
	return intentFallback, ""
}

var namePrefixes = []string{
	"stats for ", "statistics for ", "info on ", "about player ",
	"tell me about ", "player named ", "show me ",
}

// extractPlayerName takes the text after a known prefix up to the next
// punctuation mark, or else the first capitalised word.
func extractPlayerName(message string) string {
	lower := strings.ToLower(message)
	for _, prefix := range namePrefixes {
		i := strings.Index(lower, prefix)
		if i < 0 {
			continue
		}
		rest := message[i+len(prefix):]
		if end := strings.IndexAny(rest, ".,?!"); end >= 0 {
			rest = rest[:end]
		}
		if name := strings.TrimSpace(rest); name != "" {
			return name
		}
		break
	}

	words := strings.FieldsFunc(message, func(r rune) bool {
		return r == ' ' || r == '.' || r == ',' || r == '?' || r == '!'
	})
	for _, w := range words {
		r := []rune(w)
		if len(r) > 1 && unicode.IsUpper(r[0]) {
			return w
		}
	}
	return ""
}

// Answer replies to message on behalf of userID.
func (b *Bot) Answer(ctx context.Context, userID, message string) (*Response, error) {
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: message is required", domain.ErrInvalidInput)
	}

	kind, name := classify(message)
	switch kind {
	case intentTopRuns:
		return b.topRunScorers(ctx)
	case intentTopWickets:
		return b.topWicketTakers(ctx)
	case intentBestTeam:
		return b.bestTeam(ctx, userID)
	case intentPlayerStats:
		return b.playerStats(ctx, name)
	case intentPoints:
		return reply(ReplyPointsHidden, nil), nil
	}

	if b.assistant == nil {
		return reply(ReplyHelp, nil), nil
	}
	text, err := b.assistant.Reply(ctx, systemPrompt, message)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		slog.Warn("assistant call failed", "error", err)
		return reply(ReplyUnavailable, nil), nil
	}
	return reply(text, nil), nil
}

func reply(text string, players []*domain.Player) *Response {
	views := make([]domain.PlayerView, 0, len(players))
	for _, p := range players {
		views = append(views, domain.NewPlayerView(p, valuation.Compute(p.Stats)))
	}
	return &Response{Reply: text, RecommendedPlayers: views}
}

func (b *Bot) allPlayers(ctx context.Context) ([]*domain.Player, error) {
	players, _, err := b.store.ListPlayers(ctx, domain.PlayerFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	return players, nil
}

func (b *Bot) topRunScorers(ctx context.Context) (*Response, error) {
	players, err := b.allPlayers(ctx)
	if err != nil {
		return nil, err
	}
	top, err := b.engine.Rank(players, "runs", topLimit)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("Here are the top run-scorers in our database:\n\n")
	for i, p := range top {
		d := valuation.Compute(p.Stats)
		fmt.Fprintf(&sb, "%d. %s (%s) - %d runs, Strike Rate: %.2f\n",
			i+1, p.Name, p.University, p.Stats.TotalRuns, d.BattingStrikeRate)
	}
	sb.WriteString("\nWould you like more detailed statistics for any of these players?")
	return reply(sb.String(), top), nil
}

func (b *Bot) topWicketTakers(ctx context.Context) (*Response, error) {
	players, err := b.allPlayers(ctx)
	if err != nil {
		return nil, err
	}
	top, err := b.engine.Rank(players, "wickets", topLimit)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("Here are the top wicket-takers in our database:\n\n")
	for i, p := range top {
		d := valuation.Compute(p.Stats)
		fmt.Fprintf(&sb, "%d. %s (%s) - %d wickets, Economy: %s\n",
			i+1, p.Name, p.University, p.Stats.Wickets, rate(d.EconomyRate, "N/A"))
	}
	sb.WriteString("\nWould you like more detailed statistics for any of these players?")
	return reply(sb.String(), top), nil
}

// squadSlot is one part of a recommended team.
type squadSlot struct {
	title  string
	filter string
	rank   string
	count  int
	line   func(p *domain.Player, d domain.DerivedStats) string
}

var squad = []squadSlot{
	{
		title:  "Batsmen",
		filter: `category == "Batsman"`,
		rank:   "runs",
		count:  4,
		line: func(p *domain.Player, d domain.DerivedStats) string {
			return fmt.Sprintf("- %s (%s) - %d runs, SR: %.2f\n", p.Name, p.University, p.Stats.TotalRuns, d.BattingStrikeRate)
		},
	},
	{
		title:  "Bowlers",
		filter: `category == "Bowler"`,
		rank:   "wickets",
		count:  4,
		line: func(p *domain.Player, d domain.DerivedStats) string {
			return fmt.Sprintf("- %s (%s) - %d wickets, Economy: %s\n", p.Name, p.University, p.Stats.Wickets, rate(d.EconomyRate, "N/A"))
		},
	},
	{
		title:  "All-Rounders",
		filter: `category == "All-Rounder"`,
		rank:   "runs * wickets",
		count:  3,
		line: func(p *domain.Player, d domain.DerivedStats) string {
			return fmt.Sprintf("- %s (%s) - %d runs, %d wickets\n", p.Name, p.University, p.Stats.TotalRuns, p.Stats.Wickets)
		},
	},
}

// bestTeam picks the strongest affordable players the caller does not
// already own. Candidates are taken in rank order while the running value
// stays within the caller's budget.
func (b *Bot) bestTeam(ctx context.Context, userID string) (*Response, error) {
	budget := domain.DefaultBudget
	owned := map[string]bool{}

	if userID != "" {
		user, err := b.store.GetUser(ctx, userID)
		switch {
		case err == nil:
			budget = user.Budget
		case !errors.Is(err, domain.ErrNotFound):
			return nil, fmt.Errorf("failed to load user: %w", err)
		}

		team, err := b.store.GetTeamByUser(ctx, userID)
		switch {
		case err == nil:
			members, err := b.store.ListTeamPlayers(ctx, team.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to load team: %w", err)
			}
			for _, p := range members {
				owned[p.ID] = true
			}
		case !errors.Is(err, domain.ErrNotFound):
			return nil, fmt.Errorf("failed to load team: %w", err)
		}
	}

	players, err := b.allPlayers(ctx)
	if err != nil {
		return nil, err
	}
	available := players[:0:0]
	for _, p := range players {
		if !owned[p.ID] {
			available = append(available, p)
		}
	}

	var picked []*domain.Player
	var sections strings.Builder
	counts := make([]int, len(squad))

	for i, slot := range squad {
		f, err := b.engine.Compile(slot.filter)
		if err != nil {
			return nil, err
		}
		candidates, err := f.Apply(available)
		if err != nil {
			return nil, err
		}
		ranked, err := b.engine.Rank(candidates, slot.rank, 0)
		if err != nil {
			return nil, err
		}

		var lines strings.Builder
		for _, p := range ranked {
			if counts[i] == slot.count {
				break
			}
			d := valuation.Compute(p.Stats)
			if d.PlayerValue > budget {
				continue
			}
			budget -= d.PlayerValue
			counts[i]++
			picked = append(picked, p)
			lines.WriteString(slot.line(p, d))
		}
		if counts[i] > 0 {
			fmt.Fprintf(&sections, "%s:\n%s\n", slot.title, lines.String())
		}
	}

	var sb strings.Builder
	sb.WriteString("Here's my recommendation for the best possible team based on player statistics:\n\n")
	fmt.Fprintf(&sb, "I've selected a balanced team with %d batsmen, %d bowlers, and %d all-rounders.\n\n", counts[0], counts[1], counts[2])
	sb.WriteString(sections.String())
	sb.WriteString("You can select these players to build your team or ask for more information about any specific player.")
	return reply(sb.String(), picked), nil
}

func (b *Bot) playerStats(ctx context.Context, name string) (*Response, error) {
	players, _, err := b.store.ListPlayers(ctx, domain.PlayerFilter{Search: name})
	if err != nil {
		return nil, fmt.Errorf("failed to search players: %w", err)
	}

	needle := strings.ToLower(name)
	var matches []*domain.Player
	for _, p := range players {
		if strings.Contains(strings.ToLower(p.Name), needle) {
			matches = append(matches, p)
			if len(matches) == topLimit {
				break
			}
		}
	}
	if len(matches) == 0 {
		return reply(fmt.Sprintf("I couldn't find any player named '%s'. Please check the spelling or try a different name.", name), nil), nil
	}

	p := matches[0]
	d := valuation.Compute(p.Stats)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Here are the statistics for %s (%s):\n\n", p.Name, p.University)
	fmt.Fprintf(&sb, "Category: %s\n", p.Category)
	fmt.Fprintf(&sb, "Total Runs: %d\n", p.Stats.TotalRuns)
	fmt.Fprintf(&sb, "Batting Strike Rate: %.2f\n", d.BattingStrikeRate)
	fmt.Fprintf(&sb, "Batting Average: %.2f\n", d.BattingAverage)
	fmt.Fprintf(&sb, "Wickets: %d\n", p.Stats.Wickets)
	fmt.Fprintf(&sb, "Bowling Strike Rate: %s\n", rate(d.BowlingStrikeRate, "Undefined (no wickets taken)"))
	fmt.Fprintf(&sb, "Economy Rate: %s\n", rate(d.EconomyRate, "Undefined (no overs bowled)"))
	fmt.Fprintf(&sb, "Player Value: ₹%s\n\n", humanize.Comma(d.PlayerValue))
	sb.WriteString(remark(p, d))

	if len(matches) > 1 {
		sb.WriteString("\n\nI found other players with similar names who might interest you. Check the recommendations panel for details.")
	}
	return reply(sb.String(), matches), nil
}

// remark is a one-line assessment for the player's category.
func remark(p *domain.Player, d domain.DerivedStats) string {
	switch domain.CanonicalCategory(p.Category) {
	case domain.CategoryBatsman:
		switch {
		case d.BattingStrikeRate > 130:
			return "This player has an exceptional strike rate, making them excellent for scoring quick runs."
		case d.BattingAverage > 35:
			return "This player has a high batting average, indicating consistent performance."
		}
		return "This player has solid batting credentials."
	case domain.CategoryBowler:
		switch {
		case p.Stats.Wickets > 15:
			return "This player is an excellent wicket-taker and could be a match-winner."
		case d.EconomyRate != nil && *d.EconomyRate < 7:
			return "This player is economical and can restrict the flow of runs."
		}
		return "This player has decent bowling statistics."
	case domain.CategoryAllRounder:
		return "This all-rounder can contribute with both bat and ball, providing flexibility to your team."
	}
	return ""
}

func rate(v *float64, undefined string) string {
	if v == nil {
		return undefined
	}
	return fmt.Sprintf("%.2f", *v)
}
