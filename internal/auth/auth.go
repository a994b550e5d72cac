// Package auth registers users, issues and revokes signed session tokens,
// and guards HTTP routes with them.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opensource-finance/spiritx/internal/domain"
	"github.com/opensource-finance/spiritx/internal/throttle"
	"golang.org/x/crypto/bcrypt"
)

// MinSecretLength is the shortest HS256 secret NewService accepts.
const MinSecretLength = 32

var errBadCredentials = fmt.Errorf("%w: invalid username or password", domain.ErrUnauthorized)

// Session is returned by a successful login.
type Session struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	IsAdmin   bool      `json:"isAdmin"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service owns user credentials and session tokens.
type Service struct {
	repo    domain.Repository
	cache   domain.Cache
	limiter *throttle.Limiter
	cfg     domain.AuthConfig
	now     func() time.Time
}

// NewService creates the auth service. Login attempts are counted in cache.
func NewService(repo domain.Repository, cache domain.Cache, cfg domain.AuthConfig) (*Service, error) {
	if len(cfg.JWTSecret) < MinSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}

	return &Service{
		repo:    repo,
		cache:   cache,
		limiter: throttle.NewLimiter(cache, domain.NamespaceLoginAttempts, cfg.MaxAttempts, cfg.LockWindow),
		cfg:     cfg,
		now:     time.Now,
	}, nil
}

// Register creates a user with the default budget and an empty default team.
func (s *Service) Register(ctx context.Context, username, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", domain.ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	user := &domain.User{
		Username:     username,
		PasswordHash: string(hash),
		Budget:       domain.DefaultBudget,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	slog.Info("user registered", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// Login checks credentials and returns a signed session token.
// Attempts are throttled per username before the password is checked.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", domain.ErrInvalidInput)
	}

	decision, err := s.limiter.Allow(ctx, username)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		slog.Warn("login throttled", "username", username, "attempts", decision.Count)
		return nil, fmt.Errorf("%w: try again in %s", domain.ErrThrottled, decision.RetryAfter)
	}

	user, err := s.repo.GetUserByUsername(ctx, username)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errBadCredentials
	}

	if err := s.limiter.Reset(ctx, username); err != nil {
		slog.Warn("failed to reset login attempts", "username", username, "error", err)
	}

	token, expires, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	return &Session{
		Token:     token,
		Username:  user.Username,
		IsAdmin:   user.IsAdmin,
		ExpiresAt: expires,
	}, nil
}

// Logout revokes the token described by claims until it would have expired.
func (s *Service) Logout(ctx context.Context, claims *Claims) error {
	if claims == nil || claims.ID == "" {
		return fmt.Errorf("%w: token has no id", domain.ErrUnauthorized)
	}
	if claims.ExpiresAt == nil {
		return fmt.Errorf("%w: token has no expiry", domain.ErrUnauthorized)
	}

	ttl := claims.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.cache.Set(ctx, domain.NamespaceRevokedTokens, claims.ID, []byte(claims.Subject), ttl); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	slog.Info("user logged out", "user_id", claims.Subject)
	return nil
}
