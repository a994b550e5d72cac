package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/spiritx/internal/domain"
	"github.com/opensource-finance/spiritx/internal/valuation"
)

// PlayerListResponse is returned by GET /api/players.
type PlayerListResponse struct {
	Players []domain.PlayerView `json:"players"`
	Budget  int64               `json:"budget"`
}

// ListPlayers handles GET /api/players.
//
// Players already in the caller's team are never offered. Without a
// category the list is narrowed to what the caller can afford; with one it
// is narrowed by category only. An optional filter is a query expression.
func (h *Handler) ListPlayers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := claims(r).UserID()

	user, err := h.repo.GetUser(ctx, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	owned, err := h.teamPlayerIDs(r, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	players, _, err := h.repo.ListPlayers(ctx, domain.PlayerFilter{})
	if err != nil {
		writeError(w, r, err)
		return
	}

	if expr := strings.TrimSpace(r.URL.Query().Get("filter")); expr != "" {
		f, err := h.query.Compile(expr)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if players, err = f.Apply(players); err != nil {
			writeError(w, r, err)
			return
		}
	}

	category := strings.TrimSpace(r.URL.Query().Get("category"))
	byBudget := category == "" || strings.EqualFold(category, "All")

	resp := PlayerListResponse{Players: []domain.PlayerView{}, Budget: user.Budget}
	for _, p := range players {
		if owned[p.ID] {
			continue
		}
		if !byBudget && !domain.CategoryMatches(p.Category, category) {
			continue
		}
		d := valuation.Compute(p.Stats)
		if byBudget && d.PlayerValue > user.Budget {
			continue
		}
		resp.Players = append(resp.Players, domain.NewPlayerView(p, d))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetPlayer handles GET /api/players/{id}.
func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	p, err := h.repo.GetPlayer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.NewPlayerView(p, valuation.Compute(p.Stats)))
}

func (h *Handler) teamPlayerIDs(r *http.Request, userID string) (map[string]bool, error) {
	team, err := h.repo.GetTeamByUser(r.Context(), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load team: %w", err)
	}
	players, err := h.repo.ListTeamPlayers(r.Context(), team.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load team players: %w", err)
	}
	ids := make(map[string]bool, len(players))
	for _, p := range players {
		ids[p.ID] = true
	}
	return ids, nil
}
