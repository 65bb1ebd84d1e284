package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Risk Engine Errors
	ErrDuplicatePosition      = errors.New("position already exists for instrument, side and mode")
	ErrInsufficientRiskReward = errors.New("risk/reward ratio below horizon policy minimum")
	ErrGuardrailBreached      = errors.New("portfolio guardrail breached")
	ErrStaleExposureConflict  = errors.New("signal inconsistent with current exposure")
	ErrLevelInversion         = errors.New("protective level on wrong side of entry price")
	ErrPositionNotFound       = errors.New("no matching open position")

	// Policy Review Errors
	ErrReviewTimeout = errors.New("policy review timed out")
	ErrReviewFailed  = errors.New("policy review failed")

	// Market Data / Exchange Errors
	ErrMarketDataUnavailable = errors.New("market data unavailable for instrument")
	ErrExchangeUnavailable   = errors.New("exchange API is unavailable")
	ErrAuthenticationFailed  = errors.New("exchange authentication failed (check API keys)")
	ErrRateLimited           = errors.New("API rate limit exceeded")
	ErrInsufficientFunds     = errors.New("insufficient funds for operation")
	ErrOrderNotFound         = errors.New("order not found on the exchange")
	ErrOrderPlacementFailed  = errors.New("failed to place order")
	ErrOrderCancelFailed     = errors.New("failed to cancel order")

	// Database Specific Errors
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrQueryFailed    = errors.New("database query failed")
	ErrUpdateFailed   = errors.New("database update failed")
)
