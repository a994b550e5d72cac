package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/spiritx/internal/domain"
	"github.com/opensource-finance/spiritx/internal/leaderboard"
	"github.com/opensource-finance/spiritx/internal/valuation"
)

// RenameTeamRequest is the body of PUT /api/teams/me.
type RenameTeamRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

// AddPlayerRequest is the body of POST /api/teams/me/players.
type AddPlayerRequest struct {
	PlayerID string `json:"playerId" validate:"required"`
}

// GetMyTeam handles GET /api/teams/me.
func (h *Handler) GetMyTeam(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := claims(r).UserID()

	user, err := h.repo.GetUser(ctx, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	team, err := h.repo.GetTeamByUser(ctx, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	players, err := h.repo.ListTeamPlayers(ctx, team.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, leaderboard.Summarize(team, user.Budget, players))
}

// RenameTeam handles PUT /api/teams/me.
func (h *Handler) RenameTeam(w http.ResponseWriter, r *http.Request) {
	var req RenameTeamRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "team name is required"})
		return
	}

	if err := h.repo.RenameTeam(r.Context(), claims(r).UserID(), name); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Team renamed", "name": name})
}

// AddTeamPlayer handles POST /api/teams/me/players.
// The player's current value is debited from the caller's budget.
func (h *Handler) AddTeamPlayer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := claims(r).UserID()

	var req AddPlayerRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.repo.GetPlayer(ctx, req.PlayerID)
	if err != nil {
		h.metrics.RecordTeamChange("add", teamResult(err))
		writeError(w, r, err)
		return
	}
	value := valuation.Compute(p.Stats).PlayerValue

	err = h.repo.AddPlayerToTeam(ctx, userID, p.ID, value)
	h.metrics.RecordTeamChange("add", teamResult(err))
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("player added to team", "user_id", userID, "player_id", p.ID, "value", value)
	h.writeBudget(w, r, userID, "Player added to team", "remainingBudget")
}

// RemoveTeamPlayer handles DELETE /api/teams/me/players/{playerId}.
// The player's current value is credited back.
func (h *Handler) RemoveTeamPlayer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := claims(r).UserID()

	p, err := h.repo.GetPlayer(ctx, chi.URLParam(r, "playerId"))
	if err != nil {
		h.metrics.RecordTeamChange("remove", teamResult(err))
		writeError(w, r, err)
		return
	}
	value := valuation.Compute(p.Stats).PlayerValue

	err = h.repo.RemovePlayerFromTeam(ctx, userID, p.ID, value)
	h.metrics.RecordTeamChange("remove", teamResult(err))
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("player removed from team", "user_id", userID, "player_id", p.ID, "value", value)
	h.writeBudget(w, r, userID, "Player removed from team", "newBudget")
}

func (h *Handler) writeBudget(w http.ResponseWriter, r *http.Request, userID, message, field string) {
	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": message,
		field:     user.Budget,
	})
}

// Leaderboard handles GET /api/leaderboard.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := leaderboard.Load(r.Context(), h.repo, claims(r).UserID())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// teamResult labels the outcome of a team change for metrics.
func teamResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrTeamFull):
		return "team_full"
	case errors.Is(err, domain.ErrInsufficientBudget):
		return "insufficient_budget"
	case errors.Is(err, domain.ErrAlreadyInTeam):
		return "already_in_team"
	case errors.Is(err, domain.ErrNotInTeam):
		return "not_in_team"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
