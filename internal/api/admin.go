package api

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/spiritx/internal/csvload"
	"github.com/opensource-finance/spiritx/internal/domain"
	"github.com/opensource-finance/spiritx/internal/metrics"
	"github.com/opensource-finance/spiritx/internal/valuation"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
	maxUploadBytes  = 32 << 20

	// maxOffset bounds list offsets; any page past it is empty.
	maxOffset = math.MaxInt32 - maxPageSize
)

// PlayerRequest is the body of admin player create and update.
type PlayerRequest struct {
	Name       string `json:"name" validate:"required,max=100"`
	University string `json:"university" validate:"required,max=100"`
	Category   string `json:"category" validate:"required,max=50"`
	domain.PlayerStatistics
}

func (req *PlayerRequest) apply(p *domain.Player) error {
	if err := req.PlayerStatistics.Validate(); err != nil {
		return err
	}
	p.Name = strings.TrimSpace(req.Name)
	p.University = strings.TrimSpace(req.University)
	p.Category = domain.CanonicalCategory(req.Category)
	p.Stats = req.PlayerStatistics
	if p.Name == "" || p.University == "" || p.Category == "" {
		return fmt.Errorf("%w: name, university and category are required", domain.ErrInvalidInput)
	}
	return nil
}

// PlayerPage is one page of the admin player listing.
type PlayerPage struct {
	Players    []domain.PlayerView `json:"players"`
	TotalCount int                 `json:"totalCount"`
	Page       int                 `json:"page"`
	PageSize   int                 `json:"pageSize"`
	TotalPages int                 `json:"totalPages"`
}

// ImportPlayers handles POST /api/admin/players/import.
func (h *Handler) ImportPlayers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "expected a multipart form with a file"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no file uploaded"})
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file must be a CSV"})
		return
	}
	updateExisting, _ := strconv.ParseBool(r.FormValue("updateExisting"))

	records, report, err := csvload.Parse(file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(records) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "no valid player records found in the CSV",
			"skipped": report.Skipped,
			"failed":  report.Failed,
			"errors":  report.Errors,
		})
		return
	}

	result, err := csvload.Import(ctx, h.repo, records, csvload.Options{UpdateExisting: updateExisting})
	if err != nil {
		writeError(w, r, err)
		return
	}
	result.Merge(report)

	h.metrics.RecordImport(metrics.ImportCounts{
		Added:   result.Added,
		Updated: result.Updated,
		Skipped: result.Skipped,
		Failed:  result.Failed,
	})
	if changed := result.Added + result.Updated; changed > 0 {
		h.publish(r, domain.TopicPlayersListUpdated, domain.PlayerEvent{Type: domain.EventPlayersListUpdated, Count: changed})
		h.publish(r, domain.TopicStatsUpdated, domain.PlayerEvent{Type: domain.EventStatsUpdated, Count: changed})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Import completed. Added: %d, Updated: %d, Skipped: %d, Failed: %d",
			result.Added, result.Updated, result.Skipped, result.Failed),
		"added":   result.Added,
		"updated": result.Updated,
		"skipped": result.Skipped,
		"failed":  result.Failed,
		"errors":  result.Errors,
	})
}

// AdminStats handles GET /api/admin/stats.
func (h *Handler) AdminStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.repo.CountPlayers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := map[string]any{
		"totalPlayers": counts.Total,
		"byCategory":   counts.ByCategory,
	}
	if h.hub != nil {
		resp["liveClients"] = h.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

// TournamentSummary handles GET /api/admin/summary.
func (h *Handler) TournamentSummary(w http.ResponseWriter, r *http.Request) {
	players, _, err := h.repo.ListPlayers(r.Context(), domain.PlayerFilter{})
	if err != nil {
		writeError(w, r, err)
		return
	}

	var totalRuns, totalWickets int
	for _, p := range players {
		totalRuns += p.Stats.TotalRuns
		totalWickets += p.Stats.Wickets
	}

	runScorer, err := h.leader(players, "runs")
	if err != nil {
		writeError(w, r, err)
		return
	}
	wicketTaker, err := h.leader(players, "wickets")
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"totalPlayers":       len(players),
		"totalRuns":          totalRuns,
		"totalWickets":       totalWickets,
		"highestRunScorer":   runScorer,
		"highestWicketTaker": wicketTaker,
	})
}

// leader returns the top player by rankExpr, or nil when nobody scores above zero.
func (h *Handler) leader(players []*domain.Player, rankExpr string) (*domain.PlayerView, error) {
	positive, err := h.query.Compile(rankExpr + " > 0")
	if err != nil {
		return nil, err
	}
	candidates, err := positive.Apply(players)
	if err != nil {
		return nil, err
	}
	top, err := h.query.Rank(candidates, rankExpr, 1)
	if err != nil || len(top) == 0 {
		return nil, err
	}
	view := domain.NewPlayerView(top[0], valuation.Compute(top[0].Stats))
	return &view, nil
}

// AdminListPlayers handles GET /api/admin/players.
func (h *Handler) AdminListPlayers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := atoiDefault(q.Get("page"), 1)
	if page < 1 {
		page = 1
	}
	pageSize := atoiDefault(q.Get("pageSize"), defaultPageSize)
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	pageSize = min(pageSize, maxPageSize)

	search := strings.TrimSpace(q.Get("search"))
	category := strings.TrimSpace(q.Get("category"))
	offset := pageOffset(page, pageSize)

	var players []*domain.Player
	var total int
	var err error

	if category == "" || strings.EqualFold(category, "All") {
		players, total, err = h.repo.ListPlayers(r.Context(), domain.PlayerFilter{Search: search, Limit: pageSize, Offset: offset})
	} else {
		// Category spellings are folded in application code, so page after filtering.
		var all []*domain.Player
		all, _, err = h.repo.ListPlayers(r.Context(), domain.PlayerFilter{Search: search})
		for _, p := range all {
			if domain.CategoryMatches(p.Category, category) {
				players = append(players, p)
			}
		}
		total = len(players)
		players = players[min(offset, total):min(offset+pageSize, total)]
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := PlayerPage{
		Players:    make([]domain.PlayerView, 0, len(players)),
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}
	for _, p := range players {
		resp.Players = append(resp.Players, domain.NewPlayerView(p, valuation.Compute(p.Stats)))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreatePlayer handles POST /api/admin/players.
func (h *Handler) CreatePlayer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req PlayerRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p := &domain.Player{}
	if err := req.apply(p); err != nil {
		writeError(w, r, err)
		return
	}

	_, err := h.repo.FindPlayerByIdentity(ctx, p.Name, p.University)
	switch {
	case err == nil:
		writeError(w, r, fmt.Errorf("%w: player %s from %s", domain.ErrConflict, p.Name, p.University))
		return
	case !errors.Is(err, domain.ErrNotFound):
		writeError(w, r, err)
		return
	}

	if err := h.repo.CreatePlayer(ctx, p); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("player created", "player_id", p.ID, "name", p.Name)
	h.publish(r, domain.TopicPlayersListUpdated, domain.PlayerEvent{Type: domain.EventPlayersListUpdated, PlayerID: p.ID, Count: 1})
	writeJSON(w, http.StatusCreated, domain.NewPlayerView(p, valuation.Compute(p.Stats)))
}

// UpdatePlayer handles PUT /api/admin/players/{id}.
func (h *Handler) UpdatePlayer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req PlayerRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.repo.GetPlayer(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.apply(p); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.repo.UpdatePlayer(ctx, p); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("player updated", "player_id", p.ID)
	h.publish(r, domain.TopicPlayerUpdated, domain.PlayerEvent{Type: domain.EventPlayerUpdated, PlayerID: p.ID})
	h.publish(r, domain.TopicStatsUpdated, domain.PlayerEvent{Type: domain.EventStatsUpdated, PlayerID: p.ID, Count: 1})
	writeJSON(w, http.StatusOK, domain.NewPlayerView(p, valuation.Compute(p.Stats)))
}

// DeletePlayer handles DELETE /api/admin/players/{id}.
// Owners holding the player get its current value back.
func (h *Handler) DeletePlayer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := h.repo.GetPlayer(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	refund := valuation.Compute(p.Stats).PlayerValue
	if err := h.repo.DeletePlayer(ctx, p.ID, refund); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("player deleted", "player_id", p.ID, "refund", refund)
	h.publish(r, domain.TopicPlayersListUpdated, domain.PlayerEvent{Type: domain.EventPlayersListUpdated, PlayerID: p.ID})
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("Player %s deleted", p.Name)})
}

// DeleteAllPlayers handles DELETE /api/admin/players.
func (h *Handler) DeleteAllPlayers(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.repo.DeleteAllPlayers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Warn("all players deleted", "count", deleted, "by", claims(r).Username)
	h.publish(r, domain.TopicPlayersListUpdated, domain.PlayerEvent{Type: domain.EventPlayersListUpdated})
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Successfully cleared %d players", deleted),
		"deleted": deleted,
	})
}

// pageOffset returns the row offset of a 1-based page, saturating at
// maxOffset instead of overflowing.
func pageOffset(page, pageSize int) int {
	if page-1 > maxOffset/pageSize {
		return maxOffset
	}
	return (page - 1) * pageSize
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}
