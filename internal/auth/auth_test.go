package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/spiritx/internal/cache"
	"github.com/opensource-finance/spiritx/internal/domain"
	"github.com/opensource-finance/spiritx/internal/repository"
)

const testSecret = "test-secret-that-is-at-least-32-bytes-long"

func newTestService(t *testing.T) (*Service, domain.Repository) {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "auth.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	svc, err := NewService(repo, cache.NewLRUCache(100), domain.AuthConfig{
		JWTSecret:   testSecret,
		Issuer:      "SpiritX",
		Audience:    "SpiritXUsers",
		TokenTTL:    time.Hour,
		MaxAttempts: 3,
		LockWindow:  time.Minute,
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return svc, repo
}

func TestNewServiceRejectsShortSecret(t *testing.T) {
	_, err := NewService(nil, cache.NewLRUCache(1), domain.AuthConfig{JWTSecret: "short"})
	if err == nil {
		t.Error("expected error for short secret")
	}
}

func TestRegister(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	t.Run("CreatesUserWithDefaultBudget", func(t *testing.T) {
		user, err := svc.Register(ctx, " spirit11 ", "Passw0rd!")
		if err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		if user.Username != "spirit11" {
			t.Errorf("expected trimmed username, got %q", user.Username)
		}
		if user.Budget != domain.DefaultBudget {
			t.Errorf("expected budget %d, got %d", domain.DefaultBudget, user.Budget)
		}
		if user.PasswordHash == "Passw0rd!" {
			t.Error("password must be hashed")
		}

		team, err := repo.GetTeamByUser(ctx, user.ID)
		if err != nil {
			t.Fatalf("expected default team: %v", err)
		}
		if team.Name != domain.DefaultTeamName {
			t.Errorf("expected team name %q, got %q", domain.DefaultTeamName, team.Name)
		}
	})

	t.Run("DuplicateUsername", func(t *testing.T) {
		if _, err := svc.Register(ctx, "SPIRIT11", "another-pass"); !errors.Is(err, domain.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("MissingFields", func(t *testing.T) {
		if _, err := svc.Register(ctx, "", "x"); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestLoginAndVerify(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "kasun", "correct-horse")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	t.Run("Success", func(t *testing.T) {
		session, err := svc.Login(ctx, "kasun", "correct-horse")
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		if session.Username != "kasun" || session.IsAdmin {
			t.Errorf("unexpected session %+v", session)
		}

		claims, err := svc.Verify(ctx, session.Token)
		if err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
		if claims.UserID() != user.ID {
			t.Errorf("expected subject %s, got %s", user.ID, claims.UserID())
		}
		if claims.Issuer != "SpiritX" {
			t.Errorf("expected issuer SpiritX, got %s", claims.Issuer)
		}
		if claims.ID == "" {
			t.Error("expected token id")
		}
	})

	t.Run("WrongPassword", func(t *testing.T) {
		if _, err := svc.Login(ctx, "kasun", "wrong"); !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("UnknownUser", func(t *testing.T) {
		if _, err := svc.Login(ctx, "nobody", "whatever"); !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("TamperedToken", func(t *testing.T) {
		session, _ := svc.Login(ctx, "kasun", "correct-horse")
		if _, err := svc.Verify(ctx, session.Token+"x"); !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("WrongAudience", func(t *testing.T) {
		session, _ := svc.Login(ctx, "kasun", "correct-horse")
		other := *svc
		other.cfg.Audience = "SomeoneElse"
		if _, err := other.Verify(ctx, session.Token); !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("Expired", func(t *testing.T) {
		session, _ := svc.Login(ctx, "kasun", "correct-horse")
		later := *svc
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		if _, err := later.Verify(ctx, session.Token); !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})
}

func TestLoginThrottle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "nuwan", "right-password"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	t.Run("SuccessResetsCounter", func(t *testing.T) {
		_, _ = svc.Login(ctx, "nuwan", "bad")
		_, _ = svc.Login(ctx, "nuwan", "bad")
		if _, err := svc.Login(ctx, "nuwan", "right-password"); err != nil {
			t.Fatalf("third attempt should succeed: %v", err)
		}
		// Counter is back to zero, so two more failures are still allowed.
		_, _ = svc.Login(ctx, "nuwan", "bad")
		_, _ = svc.Login(ctx, "nuwan", "bad")
		if _, err := svc.Login(ctx, "nuwan", "right-password"); err != nil {
			t.Fatalf("expected login after reset, got %v", err)
		}
	})

	t.Run("BlocksAfterLimit", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			if _, err := svc.Login(ctx, "nuwan", "bad"); !errors.Is(err, domain.ErrUnauthorized) {
				t.Fatalf("attempt %d: expected ErrUnauthorized, got %v", i+1, err)
			}
		}
		if _, err := svc.Login(ctx, "Nuwan", "right-password"); !errors.Is(err, domain.ErrThrottled) {
			t.Errorf("expected ErrThrottled, got %v", err)
		}
	})
}

func TestLogout(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _ = svc.Register(ctx, "dilan", "secret-pass")
	session, err := svc.Login(ctx, "dilan", "secret-pass")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	claims, err := svc.Verify(ctx, session.Token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if err := svc.Logout(ctx, claims); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	if _, err := svc.Verify(ctx, session.Token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expected revoked token to be rejected, got %v", err)
	}

	fresh, _ := svc.Login(ctx, "dilan", "secret-pass")
	if _, err := svc.Verify(ctx, fresh.Token); err != nil {
		t.Errorf("a new token should still work: %v", err)
	}

	if err := svc.Logout(ctx, nil); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for nil claims, got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	_, _ = svc.Register(ctx, "player", "player-pass")
	_, _ = svc.Register(ctx, "boss", "boss-pass")
	if err := repo.SetAdmin(ctx, "boss", true); err != nil {
		t.Fatalf("SetAdmin failed: %v", err)
	}

	userSession, _ := svc.Login(ctx, "player", "player-pass")
	adminSession, _ := svc.Login(ctx, "boss", "boss-pass")

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, found := ClaimsFrom(r.Context())
		if !found {
			t.Error("expected claims in context")
		}
		_, _ = w.Write([]byte(claims.Username))
	})
	userOnly := svc.RequireUser(ok)
	adminOnly := svc.RequireUser(RequireAdmin(ok))

	tests := []struct {
		name    string
		handler http.Handler
		header  string
		query   string
		want    int
	}{
		{"no token", userOnly, "", "", http.StatusUnauthorized},
		{"bad scheme", userOnly, "Basic abc", "", http.StatusUnauthorized},
		{"garbage token", userOnly, "Bearer abc.def.ghi", "", http.StatusUnauthorized},
		{"user token", userOnly, "Bearer " + userSession.Token, "", http.StatusOK},
		{"query token", userOnly, "", "?token=" + userSession.Token, http.StatusOK},
		{"user on admin route", adminOnly, "Bearer " + userSession.Token, "", http.StatusForbidden},
		{"admin on admin route", adminOnly, "Bearer " + adminSession.Token, "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			tt.handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			if tt.want != http.StatusOK && !strings.Contains(rec.Body.String(), `"error"`) {
				t.Errorf("expected error body, got %s", rec.Body.String())
			}
		})
	}
}
