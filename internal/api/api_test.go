package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/spiritx/internal/auth"
	"github.com/opensource-finance/spiritx/internal/bus"
	"github.com/opensource-finance/spiritx/internal/cache"
	"github.com/opensource-finance/spiritx/internal/domain"
	"github.com/opensource-finance/spiritx/internal/leaderboard"
	"github.com/opensource-finance/spiritx/internal/metrics"
	"github.com/opensource-finance/spiritx/internal/query"
	"github.com/opensource-finance/spiritx/internal/repository"
	"github.com/opensource-finance/spiritx/internal/valuation"
)

const testSecret = "test-secret-that-is-at-least-32-bytes-long"

type testEnv struct {
	server *Server
	repo   domain.Repository
	bus    *bus.ChannelBus
}

// newTestEnv wires a server on a temp sqlite file, the in-memory cache and
// the channel bus.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "api.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	c := cache.NewLRUCache(1000)
	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	authSvc, err := auth.NewService(repo, c, domain.AuthConfig{
		JWTSecret:   testSecret,
		Issuer:      "SpiritX",
		Audience:    "SpiritXUsers",
		TokenTTL:    time.Hour,
		MaxAttempts: 3,
		LockWindow:  time.Minute,
	})
	if err != nil {
		t.Fatalf("failed to create auth service: %v", err)
	}

	engine, err := query.NewEngine()
	if err != nil {
		t.Fatalf("failed to create query engine: %v", err)
	}

	cfg := domain.ServerConfig{
		Host:           "localhost",
		Port:           8080,
		ReadTimeout:    30,
		WriteTimeout:   30,
		AllowedOrigins: []string{"http://localhost:3000"},
	}
	server := NewServer(cfg, Deps{
		Repo:    repo,
		Cache:   c,
		Bus:     eventBus,
		Auth:    authSvc,
		Query:   engine,
		Metrics: metrics.New(),
	}, "test-v1")

	return &testEnv{server: server, repo: repo, bus: eventBus}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			r = strings.NewReader(b)
		default:
			raw, err := json.Marshal(b)
			if err != nil {
				t.Fatalf("failed to marshal body: %v", err)
			}
			r = bytes.NewReader(raw)
		}
	}

	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rr, req)
	return rr
}

// login registers username and returns a session token.
func (e *testEnv) login(t *testing.T, username string, admin bool) string {
	t.Helper()

	creds := CredentialsRequest{Username: username, Password: "password-" + username}
	if rr := e.do(t, http.MethodPost, "/api/auth/register", "", creds); rr.Code != http.StatusCreated {
		t.Fatalf("register %s: expected 201, got %d: %s", username, rr.Code, rr.Body.String())
	}
	if admin {
		if err := e.repo.SetAdmin(context.Background(), username, true); err != nil {
			t.Fatalf("SetAdmin failed: %v", err)
		}
	}

	rr := e.do(t, http.MethodPost, "/api/auth/login", "", creds)
	if rr.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d: %s", username, rr.Code, rr.Body.String())
	}
	var session auth.Session
	decode(t, rr, &session)
	return session.Token
}

func (e *testEnv) addPlayer(t *testing.T, name, category string, stats domain.PlayerStatistics) *domain.Player {
	t.Helper()
	p := &domain.Player{Name: name, University: "University of Colombo", Category: category, Stats: stats}
	if err := e.repo.CreatePlayer(context.Background(), p); err != nil {
		t.Fatalf("CreatePlayer failed: %v", err)
	}
	return p
}

// seed stores the fixture players. Values: Kasun 800000, Ravindu 650000,
// Nuwan 750000, Lahiru 450000, Star 9100000.
func (e *testEnv) seed(t *testing.T) map[string]*domain.Player {
	t.Helper()
	return map[string]*domain.Player{
		"kasun":   e.addPlayer(t, "Kasun Perera", "Batsman", domain.PlayerStatistics{TotalRuns: 600, BallsFaced: 400, InningsPlayed: 10}),
		"ravindu": e.addPlayer(t, "Ravindu Silva", "Batsman", domain.PlayerStatistics{TotalRuns: 500, BallsFaced: 500, InningsPlayed: 10}),
		"nuwan":   e.addPlayer(t, "Nuwan Fernando", "Bowler", domain.PlayerStatistics{TotalRuns: 20, BallsFaced: 40, InningsPlayed: 5, Wickets: 18, OversBowled: 40, RunsConceded: 250}),
		"lahiru":  e.addPlayer(t, "Lahiru Kumara", "Bowler", domain.PlayerStatistics{Wickets: 5, OversBowled: 20, RunsConceded: 180}),
		"star":    e.addPlayer(t, "Zed Star", "Batsman", domain.PlayerStatistics{TotalRuns: 10000, BallsFaced: 1000, InningsPlayed: 10}),
	}
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rr.Code, rr.Body.String())
	}
}

func viewNames(views []domain.PlayerView) []string {
	out := make([]string, len(views))
	for i, v := range views {
		out[i] = v.Name
	}
	return out
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	t.Run("Health", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/health", "", nil)
		expectStatus(t, rr, http.StatusOK)

		var resp map[string]any
		decode(t, rr, &resp)
		if resp["status"] != "healthy" {
			t.Errorf("expected healthy, got %v", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version test-v1, got %v", resp["version"])
		}
		if rr.Header().Get(RequestIDHeader) == "" {
			t.Error("expected a request id header")
		}
	})

	t.Run("Ready", func(t *testing.T) {
		expectStatus(t, env.do(t, http.MethodGet, "/ready", "", nil), http.StatusOK)
	})

	t.Run("RequestIDEchoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		rr := httptest.NewRecorder()
		env.server.Router().ServeHTTP(rr, req)
		if got := rr.Header().Get(RequestIDHeader); got != "req-123" {
			t.Errorf("expected request id req-123, got %q", got)
		}
	})
}

func TestAuthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	t.Run("RegisterAndLogin", func(t *testing.T) {
		token := env.login(t, "kasun", false)
		if token == "" {
			t.Fatal("expected a token")
		}
	})

	t.Run("DuplicateUsername", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/auth/register", "", CredentialsRequest{Username: "kasun", Password: "other"})
		expectStatus(t, rr, http.StatusConflict)
	})

	t.Run("MissingPassword", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/auth/register", "", CredentialsRequest{Username: "nopass"})
		expectStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/auth/login", "", "not-json")
		expectStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/auth/login", "", CredentialsRequest{Username: "kasun", Password: "wrong"})
		expectStatus(t, rr, http.StatusUnauthorized)
	})

	t.Run("Throttled", func(t *testing.T) {
		env.login(t, "nuwan", false)
		bad := CredentialsRequest{Username: "nuwan", Password: "wrong"}
		for i := 0; i < 3; i++ {
			expectStatus(t, env.do(t, http.MethodPost, "/api/auth/login", "", bad), http.StatusUnauthorized)
		}
		good := CredentialsRequest{Username: "nuwan", Password: "password-nuwan"}
		expectStatus(t, env.do(t, http.MethodPost, "/api/auth/login", "", good), http.StatusTooManyRequests)
	})

	t.Run("LogoutRevokesToken", func(t *testing.T) {
		token := env.login(t, "lahiru", false)
		expectStatus(t, env.do(t, http.MethodGet, "/api/teams/me", token, nil), http.StatusOK)
		expectStatus(t, env.do(t, http.MethodPost, "/api/auth/logout", token, nil), http.StatusOK)
		expectStatus(t, env.do(t, http.MethodGet, "/api/teams/me", token, nil), http.StatusUnauthorized)
	})
}

func TestRouteProtection(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "kasun", false)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"PlayersNeedToken", http.MethodGet, "/api/players", "", http.StatusUnauthorized},
		{"LeaderboardNeedsToken", http.MethodGet, "/api/leaderboard", "", http.StatusUnauthorized},
		{"MCPNeedsToken", http.MethodPost, "/api/mcp", "", http.StatusUnauthorized},
		{"GarbageToken", http.MethodGet, "/api/teams/me", "not-a-jwt", http.StatusUnauthorized},
		{"AdminNeedsAdmin", http.MethodGet, "/api/admin/stats", token, http.StatusForbidden},
		{"AdminImportNeedsAdmin", http.MethodPost, "/api/admin/players/import", token, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectStatus(t, env.do(t, tt.method, tt.path, tt.token, nil), tt.want)
		})
	}
}

func TestPlayerEndpoints(t *testing.T) {
	env := newTestEnv(t)
	players := env.seed(t)
	token := env.login(t, "kasun", false)

	expectStatus(t, env.do(t, http.MethodPost, "/api/teams/me/players", token,
		AddPlayerRequest{PlayerID: players["kasun"].ID}), http.StatusOK)

	list := func(t *testing.T, query string) PlayerListResponse {
		t.Helper()
		rr := env.do(t, http.MethodGet, "/api/players"+query, token, nil)
		expectStatus(t, rr, http.StatusOK)
		var resp PlayerListResponse
		decode(t, rr, &resp)
		return resp
	}

	t.Run("ExcludesOwnedAndUnaffordable", func(t *testing.T) {
		resp := list(t, "")
		got := strings.Join(viewNames(resp.Players), ",")
		if got != "Lahiru Kumara,Nuwan Fernando,Ravindu Silva" {
			t.Errorf("unexpected players: %s", got)
		}
		if resp.Budget != 8_200_000 {
			t.Errorf("expected budget 8200000, got %d", resp.Budget)
		}
	})

	t.Run("CategoryIgnoresBudget", func(t *testing.T) {
		got := strings.Join(viewNames(list(t, "?category=batsmen").Players), ",")
		if got != "Ravindu Silva,Zed Star" {
			t.Errorf("unexpected players: %s", got)
		}
	})

	t.Run("AllCategoryAppliesBudget", func(t *testing.T) {
		if n := len(list(t, "?category=All").Players); n != 3 {
			t.Errorf("expected 3 players, got %d", n)
		}
	})

	t.Run("QueryFilter", func(t *testing.T) {
		got := viewNames(list(t, "?filter=wickets+%3E+10").Players)
		if len(got) != 1 || got[0] != "Nuwan Fernando" {
			t.Errorf("expected only Nuwan Fernando, got %v", got)
		}
	})

	t.Run("InvalidFilter", func(t *testing.T) {
		expectStatus(t, env.do(t, http.MethodGet, "/api/players?filter=runs", token, nil), http.StatusBadRequest)
	})

	t.Run("NoPointsExposed", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/players?category=Bowler", token, nil)
		if strings.Contains(strings.ToLower(rr.Body.String()), "points") {
			t.Errorf("response exposes points: %s", rr.Body.String())
		}
	})

	t.Run("GetPlayer", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/players/"+players["lahiru"].ID, token, nil)
		expectStatus(t, rr, http.StatusOK)

		var view domain.PlayerView
		decode(t, rr, &view)
		if view.PlayerValue != 450000 {
			t.Errorf("expected value 450000, got %d", view.PlayerValue)
		}
		if view.EconomyRate == nil || *view.EconomyRate != 9 {
			t.Errorf("expected economy 9, got %v", view.EconomyRate)
		}
	})

	t.Run("UndefinedRatesAreNull", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/players/"+players["ravindu"].ID, token, nil)
		var raw map[string]any
		decode(t, rr, &raw)
		if v, ok := raw["bowlingStrikeRate"]; !ok || v != nil {
			t.Errorf("expected bowlingStrikeRate null, got %v", v)
		}
		if v, ok := raw["economyRate"]; !ok || v != nil {
			t.Errorf("expected economyRate null, got %v", v)
		}
	})

	t.Run("UnknownPlayer", func(t *testing.T) {
		expectStatus(t, env.do(t, http.MethodGet, "/api/players/missing", token, nil), http.StatusNotFound)
	})
}

func TestTeamEndpoints(t *testing.T) {
	env := newTestEnv(t)
	players := env.seed(t)
	token := env.login(t, "kasun", false)
	ctx := context.Background()

	myTeam := func(t *testing.T) leaderboard.TeamSummary {
		t.Helper()
		rr := env.do(t, http.MethodGet, "/api/teams/me", token, nil)
		expectStatus(t, rr, http.StatusOK)
		var s leaderboard.TeamSummary
		decode(t, rr, &s)
		return s
	}

	t.Run("EmptyTeam", func(t *testing.T) {
		s := myTeam(t)
		if s.TeamName != domain.DefaultTeamName || s.PlayerCount != 0 || s.IsComplete {
			t.Errorf("unexpected summary: %+v", s)
		}
		if s.Budget != domain.DefaultBudget {
			t.Errorf("expected default budget, got %d", s.Budget)
		}
		if s.TotalPoints != 0 {
			t.Errorf("expected empty team total 0, got %v", s.TotalPoints)
		}
	})

	t.Run("AddPlayer", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/teams/me/players", token, AddPlayerRequest{PlayerID: players["kasun"].ID})
		expectStatus(t, rr, http.StatusOK)

		var resp map[string]any
		decode(t, rr, &resp)
		if resp["remainingBudget"] != float64(8_200_000) {
			t.Errorf("expected remaining budget 8200000, got %v", resp["remainingBudget"])
		}
	})

	t.Run("AddTwiceConflicts", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/teams/me/players", token, AddPlayerRequest{PlayerID: players["kasun"].ID})
		expectStatus(t, rr, http.StatusConflict)
	})

	t.Run("AddUnknownPlayer", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/teams/me/players", token, AddPlayerRequest{PlayerID: "missing"})
		expectStatus(t, rr, http.StatusNotFound)
	})

	t.Run("AddWithoutPlayerID", func(t *testing.T) {
		expectStatus(t, env.do(t, http.MethodPost, "/api/teams/me/players", token, map[string]string{}), http.StatusBadRequest)
	})

	t.Run("InsufficientBudget", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/teams/me/players", token, AddPlayerRequest{PlayerID: players["star"].ID})
		expectStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("Rename", func(t *testing.T) {
		expectStatus(t, env.do(t, http.MethodPut, "/api/teams/me", token, RenameTeamRequest{Name: "Lions"}), http.StatusOK)
		if s := myTeam(t); s.TeamName != "Lions" {
			t.Errorf("expected Lions, got %s", s.TeamName)
		}
		expectStatus(t, env.do(t, http.MethodPut, "/api/teams/me", token, RenameTeamRequest{Name: "   "}), http.StatusBadRequest)
	})

	t.Run("RemovePlayerRefunds", func(t *testing.T) {
		rr := env.do(t, http.MethodDelete, "/api/teams/me/players/"+players["kasun"].ID, token, nil)
		expectStatus(t, rr, http.StatusOK)

		var resp map[string]any
		decode(t, rr, &resp)
		if resp["newBudget"] != float64(domain.DefaultBudget) {
			t.Errorf("expected budget restored, got %v", resp["newBudget"])
		}

		rr = env.do(t, http.MethodDelete, "/api/teams/me/players/"+players["kasun"].ID, token, nil)
		expectStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("FullTeam", func(t *testing.T) {
		for i := 0; i < domain.TeamSize; i++ {
			p := env.addPlayer(t, fmt.Sprintf("Squad Player %02d", i), "All-Rounder", domain.PlayerStatistics{})
			expectStatus(t, env.do(t, http.MethodPost, "/api/teams/me/players", token, AddPlayerRequest{PlayerID: p.ID}), http.StatusOK)
		}

		rr := env.do(t, http.MethodPost, "/api/teams/me/players", token, AddPlayerRequest{PlayerID: players["lahiru"].ID})
		expectStatus(t, rr, http.StatusBadRequest)

		s := myTeam(t)
		if !s.IsComplete || s.PlayerCount != domain.TeamSize {
			t.Errorf("expected complete team, got %+v", s)
		}
		if s.TotalPoints != 0 {
			t.Errorf("zero-stat squad should total 0 points, got %v", s.TotalPoints)
		}
		if s.Budget != domain.DefaultBudget-int64(domain.TeamSize)*100000 {
			t.Errorf("unexpected budget %d", s.Budget)
		}
	})

	t.Run("Leaderboard", func(t *testing.T) {
		other := env.login(t, "ravindu", false)
		rival, err := env.repo.GetUserByUsername(ctx, "ravindu")
		if err != nil {
			t.Fatalf("GetUserByUsername failed: %v", err)
		}
		if err := env.repo.AddPlayerToTeam(ctx, rival.ID, players["nuwan"].ID, 750000); err != nil {
			t.Fatalf("AddPlayerToTeam failed: %v", err)
		}

		rr := env.do(t, http.MethodGet, "/api/leaderboard", other, nil)
		expectStatus(t, rr, http.StatusOK)

		var entries []leaderboard.Entry
		decode(t, rr, &entries)
		if len(entries) != 2 {
			t.Fatalf("expected ranked team plus caller's incomplete team, got %+v", entries)
		}
		if entries[0].Username != "kasun" || entries[0].Rank != 1 || !entries[0].IsComplete {
			t.Errorf("unexpected first entry: %+v", entries[0])
		}
		if entries[1].Username != "ravindu" || entries[1].Rank != 0 || !entries[1].IsCurrentUser {
			t.Errorf("unexpected caller entry: %+v", entries[1])
		}
	})
}

func TestChatbotEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	token := env.login(t, "kasun", false)

	t.Run("TopWicketTakers", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/chatbot/query", token, ChatbotRequest{Message: "Who took the most wickets?"})
		expectStatus(t, rr, http.StatusOK)

		var resp struct {
			Reply              string              `json:"reply"`
			RecommendedPlayers []domain.PlayerView `json:"recommendedPlayers"`
		}
		decode(t, rr, &resp)
		if len(resp.RecommendedPlayers) == 0 || resp.RecommendedPlayers[0].Name != "Nuwan Fernando" {
			t.Errorf("expected Nuwan Fernando first, got %v", viewNames(resp.RecommendedPlayers))
		}
	})

	t.Run("PointsStayHidden", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/chatbot/query", token, ChatbotRequest{Message: "How are points calculated?"})
		expectStatus(t, rr, http.StatusOK)
		if !strings.Contains(rr.Body.String(), "hidden") {
			t.Errorf("expected the points-hidden reply, got %s", rr.Body.String())
		}
	})

	t.Run("EmptyMessage", func(t *testing.T) {
		expectStatus(t, env.do(t, http.MethodPost, "/api/chatbot/query", token, ChatbotRequest{}), http.StatusBadRequest)
	})
}

func TestAdminEndpoints(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t, "admin", true)
	user := env.login(t, "kasun", false)
	ctx := context.Background()

	var created domain.PlayerView

	t.Run("CreatePlayer", func(t *testing.T) {
		events := make(chan domain.PlayerEvent, 8)
		_, _ = env.bus.Subscribe(ctx, domain.TopicPlayersListUpdated, func(ctx context.Context, msg *domain.Message) error {
			ev, err := bus.DecodeEvent(msg)
			if err == nil {
				events <- ev
			}
			return err
		})

		body := `{"name":"Isuru Udana","university":"University of Ruhuna","category":"allrounder",
			"totalRuns":300,"ballsFaced":250,"inningsPlayed":10,"wickets":10,"oversBowled":30,"runsConceded":200}`
		rr := env.do(t, http.MethodPost, "/api/admin/players", admin, body)
		expectStatus(t, rr, http.StatusCreated)
		decode(t, rr, &created)

		if created.Category != domain.CategoryAllRounder {
			t.Errorf("expected canonical category, got %s", created.Category)
		}
		if created.PlayerValue != 950000 {
			t.Errorf("expected value 950000, got %d", created.PlayerValue)
		}

		select {
		case ev := <-events:
			if ev.Type != domain.EventPlayersListUpdated || ev.PlayerID != created.ID {
				t.Errorf("unexpected event %+v", ev)
			}
		case <-time.After(time.Second):
			t.Error("timeout waiting for list update event")
		}
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		body := map[string]any{"name": "isuru udana", "university": "University of Ruhuna", "category": "Bowler"}
		expectStatus(t, env.do(t, http.MethodPost, "/api/admin/players", admin, body), http.StatusConflict)
	})

	t.Run("CreateNegativeStats", func(t *testing.T) {
		body := map[string]any{"name": "Bad", "university": "U", "category": "Bowler", "wickets": -1}
		expectStatus(t, env.do(t, http.MethodPost, "/api/admin/players", admin, body), http.StatusBadRequest)
	})

	t.Run("CreateStatsOutOfRange", func(t *testing.T) {
		tests := []struct {
			name string
			body string
		}{
			{"RunsAboveCap", `{"name":"Big Bat","university":"U","category":"Batsman","totalRuns":1000000001,"ballsFaced":1,"inningsPlayed":1}`},
			{"OversAboveCap", `{"name":"Long Spell","university":"U","category":"Bowler","wickets":1,"oversBowled":1e308}`},
			{"RunsBeyondInt", `{"name":"Huge Bat","university":"U","category":"Batsman","totalRuns":2000000000000000,"ballsFaced":1}`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				expectStatus(t, env.do(t, http.MethodPost, "/api/admin/players", admin, tt.body), http.StatusBadRequest)
			})
		}

		body := `{"name":"Cap Player","university":"U","category":"Batsman","totalRuns":1000000000,"ballsFaced":1,"inningsPlayed":1}`
		rr := env.do(t, http.MethodPost, "/api/admin/players", admin, body)
		expectStatus(t, rr, http.StatusCreated)
		var v domain.PlayerView
		decode(t, rr, &v)
		if v.PlayerValue <= 0 || v.PlayerValue%valuation.ValueStep != 0 {
			t.Errorf("expected positive step-multiple value at the cap, got %d", v.PlayerValue)
		}
		expectStatus(t, env.do(t, http.MethodDelete, "/api/admin/players/"+v.ID, admin, nil), http.StatusOK)
	})

	t.Run("CreateMissingName", func(t *testing.T) {
		body := map[string]any{"university": "U", "category": "Bowler"}
		expectStatus(t, env.do(t, http.MethodPost, "/api/admin/players", admin, body), http.StatusBadRequest)
	})

	t.Run("UpdatePlayer", func(t *testing.T) {
		body := map[string]any{
			"name": "Isuru Udana", "university": "University of Ruhuna", "category": "All-Rounder",
			"totalRuns": 600, "ballsFaced": 400, "inningsPlayed": 10,
		}
		rr := env.do(t, http.MethodPut, "/api/admin/players/"+created.ID, admin, body)
		expectStatus(t, rr, http.StatusOK)

		var view domain.PlayerView
		decode(t, rr, &view)
		if view.PlayerValue != 800000 {
			t.Errorf("expected recomputed value 800000, got %d", view.PlayerValue)
		}
		if view.BowlingStrikeRate != nil {
			t.Errorf("expected undefined bowling strike rate, got %v", *view.BowlingStrikeRate)
		}
	})

	t.Run("UpdateUnknown", func(t *testing.T) {
		body := map[string]any{"name": "X", "university": "U", "category": "Bowler"}
		expectStatus(t, env.do(t, http.MethodPut, "/api/admin/players/missing", admin, body), http.StatusNotFound)
	})

	t.Run("ImportCSV", func(t *testing.T) {
		csv := "Name,University,Category,Total Runs,Balls Faced,Innings Played,Wickets,Overs Bowled,Runs Conceded\n" +
			"Kasun Perera,University of Colombo,Batsman,600,400,10,0,0,0\n" +
			"Nuwan Fernando,University of Colombo,Bowler,20,40,5,18,40,250\n" +
			",University of Colombo,Bowler,1,1,1,1,1,1\n"

		rr := uploadCSV(t, env, admin, "players.csv", csv, false)
		expectStatus(t, rr, http.StatusOK)

		var resp map[string]any
		decode(t, rr, &resp)
		if resp["added"] != float64(2) || resp["skipped"] != float64(1) {
			t.Errorf("unexpected import tally: %v", resp)
		}

		rr = uploadCSV(t, env, admin, "players.csv", csv, false)
		decode(t, rr, &resp)
		if resp["added"] != float64(0) || resp["skipped"] != float64(3) {
			t.Errorf("reimport should skip existing players: %v", resp)
		}
	})

	t.Run("ImportRejectsNonCSV", func(t *testing.T) {
		expectStatus(t, uploadCSV(t, env, admin, "players.txt", "a,b\n", false), http.StatusBadRequest)
	})

	t.Run("ImportWithoutFile", func(t *testing.T) {
		expectStatus(t, env.do(t, http.MethodPost, "/api/admin/players/import", admin, nil), http.StatusBadRequest)
	})

	t.Run("ListPaged", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/admin/players?page=2&pageSize=2", admin, nil)
		expectStatus(t, rr, http.StatusOK)

		var page PlayerPage
		decode(t, rr, &page)
		if page.TotalCount != 3 || page.TotalPages != 2 || len(page.Players) != 1 {
			t.Errorf("unexpected page: total=%d pages=%d len=%d", page.TotalCount, page.TotalPages, len(page.Players))
		}
	})

	t.Run("ListByCategory", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/admin/players?category=bowlers&pageSize=500", admin, nil)
		var page PlayerPage
		decode(t, rr, &page)
		if page.TotalCount != 1 || page.Players[0].Name != "Nuwan Fernando" {
			t.Errorf("unexpected bowlers: %v", viewNames(page.Players))
		}
		if page.PageSize != maxPageSize {
			t.Errorf("expected page size capped at %d, got %d", maxPageSize, page.PageSize)
		}
	})

	t.Run("ListPastEnd", func(t *testing.T) {
		tests := []struct {
			name  string
			query string
		}{
			{"OverflowingPage", "?page=100000000000000000&pageSize=100"},
			{"OverflowingPageByCategory", "?page=100000000000000000&pageSize=100&category=Bowler"},
			{"MaxIntPage", "?page=9223372036854775807&category=bowlers"},
			{"BeyondTotal", "?page=50&pageSize=2"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rr := env.do(t, http.MethodGet, "/api/admin/players"+tt.query, admin, nil)
				expectStatus(t, rr, http.StatusOK)

				var page PlayerPage
				decode(t, rr, &page)
				if len(page.Players) != 0 {
					t.Errorf("expected an empty page, got %v", viewNames(page.Players))
				}
				if page.TotalCount == 0 {
					t.Error("total count should still report every matching player")
				}
			})
		}
	})

	t.Run("Stats", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/admin/stats", admin, nil)
		expectStatus(t, rr, http.StatusOK)

		var resp struct {
			TotalPlayers int            `json:"totalPlayers"`
			ByCategory   map[string]int `json:"byCategory"`
		}
		decode(t, rr, &resp)
		if resp.TotalPlayers != 3 || resp.ByCategory["Batsman"] != 1 {
			t.Errorf("unexpected stats: %+v", resp)
		}
	})

	t.Run("Summary", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/admin/summary", admin, nil)
		expectStatus(t, rr, http.StatusOK)

		var resp struct {
			TotalPlayers       int                `json:"totalPlayers"`
			TotalRuns          int                `json:"totalRuns"`
			TotalWickets       int                `json:"totalWickets"`
			HighestRunScorer   *domain.PlayerView `json:"highestRunScorer"`
			HighestWicketTaker *domain.PlayerView `json:"highestWicketTaker"`
		}
		decode(t, rr, &resp)
		if resp.TotalRuns != 1220 || resp.TotalWickets != 18 {
			t.Errorf("unexpected totals: runs=%d wickets=%d", resp.TotalRuns, resp.TotalWickets)
		}
		if resp.HighestRunScorer == nil || resp.HighestRunScorer.Name != "Isuru Udana" {
			t.Errorf("unexpected top run scorer: %+v", resp.HighestRunScorer)
		}
		if resp.HighestWicketTaker == nil || resp.HighestWicketTaker.Name != "Nuwan Fernando" {
			t.Errorf("unexpected top wicket taker: %+v", resp.HighestWicketTaker)
		}
	})

	t.Run("DeleteRefundsOwners", func(t *testing.T) {
		expectStatus(t, env.do(t, http.MethodPost, "/api/teams/me/players", user, AddPlayerRequest{PlayerID: created.ID}), http.StatusOK)

		expectStatus(t, env.do(t, http.MethodDelete, "/api/admin/players/"+created.ID, admin, nil), http.StatusOK)
		expectStatus(t, env.do(t, http.MethodGet, "/api/admin/players/"+created.ID, admin, nil), http.StatusNotFound)

		owner, err := env.repo.GetUserByUsername(ctx, "kasun")
		if err != nil {
			t.Fatalf("GetUserByUsername failed: %v", err)
		}
		if owner.Budget != domain.DefaultBudget {
			t.Errorf("expected refund to default budget, got %d", owner.Budget)
		}
	})

	t.Run("DeleteAll", func(t *testing.T) {
		rr := env.do(t, http.MethodDelete, "/api/admin/players", admin, nil)
		expectStatus(t, rr, http.StatusOK)

		counts, err := env.repo.CountPlayers(ctx)
		if err != nil {
			t.Fatalf("CountPlayers failed: %v", err)
		}
		if counts.Total != 0 {
			t.Errorf("expected no players, got %d", counts.Total)
		}
	})
}

func uploadCSV(t *testing.T, env *testEnv, token, filename, content string, updateExisting bool) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	_, _ = io.WriteString(fw, content)
	_ = mw.WriteField("updateExisting", fmt.Sprint(updateExisting))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/admin/players/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rr, req)
	return rr
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/health", "", nil)

	rr := env.do(t, http.MethodGet, "/metrics", "", nil)
	expectStatus(t, rr, http.StatusOK)
	if !strings.Contains(rr.Body.String(), `spiritx_http_requests_total{method="GET",route="/health",status="200"}`) {
		t.Errorf("expected request counter for /health in:\n%s", rr.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidInput, http.StatusBadRequest},
		{domain.ErrNegativeStatistic, http.StatusBadRequest},
		{domain.ErrStatisticTooLarge, http.StatusBadRequest},
		{domain.ErrTeamFull, http.StatusBadRequest},
		{domain.ErrInsufficientBudget, http.StatusBadRequest},
		{domain.ErrNotInTeam, http.StatusBadRequest},
		{domain.ErrUnauthorized, http.StatusUnauthorized},
		{domain.ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("player 7: %w", domain.ErrNotFound), http.StatusNotFound},
		{domain.ErrConflict, http.StatusConflict},
		{domain.ErrAlreadyInTeam, http.StatusConflict},
		{domain.ErrThrottled, http.StatusTooManyRequests},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://localhost:3000"})

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"http://evil.example", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/live", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := check(req); got != tt.want {
			t.Errorf("origin %q: got %v, want %v", tt.origin, got, tt.want)
		}
	}

	if !originChecker([]string{"*"})(httptest.NewRequest(http.MethodGet, "/", nil)) {
		t.Error("wildcard should allow every origin")
	}
}
