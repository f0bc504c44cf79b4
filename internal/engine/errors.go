package engine

import "errors"

var (
	// ErrValidation is returned for bad parameters. Nothing is mutated.
	ErrValidation = errors.New("simulation: invalid parameters")
	// ErrInsufficientBalance is returned when a buy spends more than is held.
	ErrInsufficientBalance = errors.New("simulation: insufficient balance")
	// ErrInsufficientPosition is returned when a sell exceeds the holding.
	ErrInsufficientPosition = errors.New("simulation: insufficient position")
	// ErrMarketDataUnavailable is returned when no valid quote could be
	// fetched after all retries.
	ErrMarketDataUnavailable = errors.New("simulation: market data unavailable")
	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = errors.New("simulation: session not found")
	// ErrSessionInactive is returned when trading on an ended session.
	ErrSessionInactive = errors.New("simulation: session is not active")
)
