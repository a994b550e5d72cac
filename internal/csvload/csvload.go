// Package csvload reads player statistics from CSV and imports them into
// the repository.
package csvload

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/opensource-finance/spiritx/internal/domain"
)

// Column keys after header normalisation.
const (
	colName       = "name"
	colUniversity = "university"
	colCategory   = "category"
	colRuns       = "totalruns"
	colBalls      = "ballsfaced"
	colInnings    = "inningsplayed"
	colWickets    = "wickets"
	colOvers      = "oversbowled"
	colConceded   = "runsconceded"
)

var requiredColumns = []string{colName, colUniversity, colCategory}

// Record is one usable CSV row.
type Record struct {
	Line       int
	Name       string
	University string
	Category   string
	Stats      domain.PlayerStatistics
}

// Report summarises a Parse run.
type Report struct {
	Rows    int      `json:"rows"`
	Valid   int      `json:"valid"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// Parse reads a header-driven CSV. Rows missing a name, university or
// category are skipped; rows with a negative statistic fail. Blank or
// unreadable numbers read as zero.
func Parse(r io.Reader) ([]Record, Report, error) {
	var report Report

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, report, fmt.Errorf("%w: csv is empty", domain.ErrInvalidInput)
	}
	if err != nil {
		return nil, report, fmt.Errorf("%w: reading csv header: %v", domain.ErrInvalidInput, err)
	}

	columns := make(map[string]int, len(header))
	for i, h := range header {
		columns[normalizeHeader(h)] = i
	}
	for _, c := range requiredColumns {
		if _, ok := columns[c]; !ok {
			return nil, report, fmt.Errorf("%w: csv is missing the %q column", domain.ErrInvalidInput, c)
		}
	}

	var records []Record
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		report.Rows++

		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return records, report, fmt.Errorf("reading csv: %w", err)
			}
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("line %d: %v", pe.Line, pe.Err))
			continue
		}
		line, _ := reader.FieldPos(0)

		field := func(name string) string {
			i, ok := columns[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		rec := Record{
			Line:       line,
			Name:       field(colName),
			University: field(colUniversity),
			Category:   field(colCategory),
			Stats: domain.PlayerStatistics{
				TotalRuns:     parseInt(field(colRuns)),
				BallsFaced:    parseInt(field(colBalls)),
				InningsPlayed: parseInt(field(colInnings)),
				Wickets:       parseInt(field(colWickets)),
				OversBowled:   parseFloat(field(colOvers)),
				RunsConceded:  parseInt(field(colConceded)),
			},
		}

		if rec.Name == "" || rec.University == "" || rec.Category == "" {
			report.Skipped++
			continue
		}
		if err := rec.Stats.Validate(); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("line %d (%s): %v", line, rec.Name, err))
			continue
		}

		report.Valid++
		records = append(records, rec)
	}

	return records, report, nil
}

// Options controls an Import.
type Options struct {
	// UpdateExisting overwrites players already in the store instead of skipping them.
	UpdateExisting bool
}

// ImportResult counts what an Import did.
type ImportResult struct {
	Added   int      `json:"added"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// Store is the part of domain.Repository an import needs.
type Store interface {
	CreatePlayer(ctx context.Context, p *domain.Player) error
	UpdatePlayer(ctx context.Context, p *domain.Player) error
	FindPlayerByIdentity(ctx context.Context, name, university string) (*domain.Player, error)
}

// Import writes records to the store, deduplicating on name and university.
// A record seen earlier in the same import counts as existing.
func Import(ctx context.Context, store Store, records []Record, opts Options) (*ImportResult, error) {
	result := &ImportResult{}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		existing, err := store.FindPlayerByIdentity(ctx, rec.Name, rec.University)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			p := &domain.Player{
				Name:       rec.Name,
				University: rec.University,
				Category:   rec.Category,
				Stats:      rec.Stats,
			}
			if err := store.CreatePlayer(ctx, p); err != nil {
				result.fail(rec, err)
				continue
			}
			result.Added++

		case err != nil:
			result.fail(rec, err)

		case opts.UpdateExisting:
			existing.Category = rec.Category
			existing.Stats = rec.Stats
			if err := store.UpdatePlayer(ctx, existing); err != nil {
				result.fail(rec, err)
				continue
			}
			result.Updated++

		default:
			result.Skipped++
		}
	}

	slog.Info("player import finished",
		"added", result.Added,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result, nil
}

// Merge folds the parse report into the result so callers see one tally.
func (r *ImportResult) Merge(report Report) {
	r.Skipped += report.Skipped
	r.Failed += report.Failed
	r.Errors = append(append([]string(nil), report.Errors...), r.Errors...)
}

func (r *ImportResult) fail(rec Record, err error) {
	r.Failed++
	r.Errors = append(r.Errors, fmt.Sprintf("line %d (%s): %v", rec.Line, rec.Name, err))
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-', '\t':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(h)))
}

func cleanNumber(s string) string {
	return strings.NewReplacer(",", "", " ", "", "\u00a0", "").Replace(strings.TrimSpace(s))
}

func parseInt(s string) int {
	n, err := strconv.Atoi(cleanNumber(s))
	if err != nil {
		return 0
	}
	return n
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(cleanNumber(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
