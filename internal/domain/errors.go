package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("already exists")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrThrottled    = errors.New("too many attempts")

	// ErrNegativeStatistic wraps ErrInvalidInput so callers can match either.
	ErrNegativeStatistic = fmt.Errorf("%w: statistics must not be negative", ErrInvalidInput)
	ErrStatisticTooLarge = fmt.Errorf("%w: statistic exceeds %d", ErrInvalidInput, MaxStatistic)
)

// Team rule violations.
var (
	ErrTeamFull           = errors.New("team already has 11 players")
	ErrInsufficientBudget = errors.New("insufficient budget")
	ErrAlreadyInTeam      = errors.New("player is already in your team")
	ErrNotInTeam          = errors.New("player is not in your team")
)
