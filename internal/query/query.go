// Package query provides the CEL-Go based player filter and ranking language.
//
// Expressions see one player at a time through these variables:
//
//	name, university, category            string
//	runs, balls, innings, wickets          int
//	conceded, value                        int
//	overs, strikeRate, average             double
//	bowlingStrikeRate, economy             double (0 when undefined)
//	hasBowlingStrikeRate, hasEconomy       bool
//
// Points are deliberately absent.
package query

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-finance/spiritx/internal/domain"
	"github.com/opensource-finance/spiritx/internal/valuation"
)

const (
	maxCachedPrograms = 256
	costLimit         = 10_000
)

// Engine compiles and caches player expressions.
type Engine struct {
	env *cel.Env

	mu       sync.Mutex
	programs map[string]*program
}

type program struct {
	expr    string
	prg     cel.Program
	boolean bool
}

// Filter is a compiled boolean expression.
type Filter struct{ p *program }

// Ranker is a compiled numeric expression.
type Ranker struct{ p *program }

// NewEngine creates the CEL environment with the player variables.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("name", cel.StringType),
		cel.Variable("university", cel.StringType),
		cel.Variable("category", cel.StringType),
		cel.Variable("runs", cel.IntType),
		cel.Variable("balls", cel.IntType),
		cel.Variable("innings", cel.IntType),
		cel.Variable("wickets", cel.IntType),
		cel.Variable("overs", cel.DoubleType),
		cel.Variable("conceded", cel.IntType),
		cel.Variable("strikeRate", cel.DoubleType),
		cel.Variable("average", cel.DoubleType),
		cel.Variable("bowlingStrikeRate", cel.DoubleType),
		cel.Variable("hasBowlingStrikeRate", cel.BoolType),
		cel.Variable("economy", cel.DoubleType),
		cel.Variable("hasEconomy", cel.BoolType),
		cel.Variable("value", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		programs: make(map[string]*program),
	}, nil
}

// Compile returns a Filter for a boolean expression.
func (e *Engine) Compile(expr string) (*Filter, error) {
	p, err := e.program(expr)
	if err != nil {
		return nil, err
	}
	if !p.boolean {
		return nil, fmt.Errorf("%w: filter %q must return bool", domain.ErrInvalidInput, expr)
	}
	return &Filter{p: p}, nil
}

// CompileRank returns a Ranker for a numeric expression.
func (e *Engine) CompileRank(expr string) (*Ranker, error) {
	p, err := e.program(expr)
	if err != nil {
		return nil, err
	}
	if p.boolean {
		return nil, fmt.Errorf("%w: rank %q must return int or double", domain.ErrInvalidInput, expr)
	}
	return &Ranker{p: p}, nil
}

// Rank orders players by rankExpr, highest first, and keeps at most limit.
// A limit of zero or less keeps everyone.
func (e *Engine) Rank(players []*domain.Player, rankExpr string, limit int) ([]*domain.Player, error) {
	r, err := e.CompileRank(rankExpr)
	if err != nil {
		return nil, err
	}
	return r.Top(players, limit)
}

// CachedPrograms returns how many compiled programs are held.
func (e *Engine) CachedPrograms() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.programs)
}

func (e *Engine) program(expr string) (*program, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("%w: expression is empty", domain.ErrInvalidInput)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if p, ok := e.programs[expr]; ok {
		return p, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, issues.Err())
	}

	out := ast.OutputType()
	boolean := out.IsExactType(cel.BoolType)
	if !boolean && !out.IsExactType(cel.IntType) && !out.IsExactType(cel.DoubleType) {
		return nil, fmt.Errorf("%w: expression must return bool, int, or double, got %s", domain.ErrInvalidInput, out)
	}

	prg, err := e.env.Program(ast, cel.CostLimit(costLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to create program: %w", err)
	}

	if len(e.programs) >= maxCachedPrograms {
		e.programs = make(map[string]*program)
	}
	p := &program{expr: expr, prg: prg, boolean: boolean}
	e.programs[expr] = p
	return p, nil
}

// Expr returns the source expression.
func (f *Filter) Expr() string { return f.p.expr }

// Match evaluates the filter against one player.
func (f *Filter) Match(p *domain.Player, d domain.DerivedStats) (bool, error) {
	out, err := f.p.eval(p, d)
	if err != nil {
		return false, err
	}
	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("filter %q returned %s", f.p.expr, out.Type())
	}
	return bool(b), nil
}

// Apply keeps the players the filter matches, preserving order.
func (f *Filter) Apply(players []*domain.Player) ([]*domain.Player, error) {
	kept := make([]*domain.Player, 0, len(players))
	for _, p := range players {
		ok, err := f.Match(p, valuation.Compute(p.Stats))
		if err != nil {
			return nil, err
		}
		if ok {
			kept = append(kept, p)
		}
	}
	return kept, nil
}

// Expr returns the source expression.
func (r *Ranker) Expr() string { return r.p.expr }

// Score evaluates the rank expression for one player.
func (r *Ranker) Score(p *domain.Player, d domain.DerivedStats) (float64, error) {
	out, err := r.p.eval(p, d)
	if err != nil {
		return 0, err
	}
	return toScore(out), nil
}

// Top returns players ordered by score descending, ties broken by name.
func (r *Ranker) Top(players []*domain.Player, limit int) ([]*domain.Player, error) {
	type scored struct {
		player *domain.Player
		score  float64
	}
	rows := make([]scored, 0, len(players))
	for _, p := range players {
		s, err := r.Score(p, valuation.Compute(p.Stats))
		if err != nil {
			return nil, err
		}
		rows = append(rows, scored{player: p, score: s})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].score != rows[j].score {
			return rows[i].score > rows[j].score
		}
		return rows[i].player.Name < rows[j].player.Name
	})

	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]*domain.Player, len(rows))
	for i, row := range rows {
		out[i] = row.player
	}
	return out, nil
}

func (p *program) eval(player *domain.Player, d domain.DerivedStats) (ref.Val, error) {
	out, _, err := p.prg.Eval(Activation(player, d))
	if err != nil {
		return nil, fmt.Errorf("%w: evaluating %q: %v", domain.ErrInvalidInput, p.expr, err)
	}
	return out, nil
}

// Activation binds one player to the expression variables.
func Activation(p *domain.Player, d domain.DerivedStats) map[string]any {
	s := p.Stats
	vars := map[string]any{
		"name":                 p.Name,
		"university":           p.University,
		"category":             domain.CanonicalCategory(p.Category),
		"runs":                 int64(s.TotalRuns),
		"balls":                int64(s.BallsFaced),
		"innings":              int64(s.InningsPlayed),
		"wickets":              int64(s.Wickets),
		"overs":                s.OversBowled,
		"conceded":             int64(s.RunsConceded),
		"strikeRate":           d.BattingStrikeRate,
		"average":              d.BattingAverage,
		"bowlingStrikeRate":    0.0,
		"hasBowlingStrikeRate": d.BowlingStrikeRate != nil,
		"economy":              0.0,
		"hasEconomy":           d.EconomyRate != nil,
		"value":                d.PlayerValue,
	}
	if d.BowlingStrikeRate != nil {
		vars["bowlingStrikeRate"] = *d.BowlingStrikeRate
	}
	if d.EconomyRate != nil {
		vars["economy"] = *d.EconomyRate
	}
	return vars
}

// toScore converts a CEL value to a numeric score.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	case types.Uint:
		return float64(v)
	case types.Bool:
		if v {
			return 1
		}
		return 0
	default:
		return 0
	}
}
