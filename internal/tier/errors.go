package tier

import "errors"

var (
	errEmptyPolicy = errors.New("invalid_tier_policy")

	// ErrUnknownTier is returned where strict tier parsing is required.
	ErrUnknownTier = errors.New("unknown_tier")
)
