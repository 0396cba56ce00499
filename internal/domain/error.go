package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrOperationFailed    = errors.New("database operation failed")
	ErrInvalidExecContext = errors.New("invalid execution context")

	// Code redemption
	ErrCodeNotFound        = errors.New("subscription code not found")
	ErrCodeAlreadyRedeemed = errors.New("subscription code already redeemed")
	ErrCodeRevoked         = errors.New("subscription code has been revoked")
	ErrCodeExpired         = errors.New("subscription code has expired")
	ErrAlreadySubscribed   = errors.New("user already has an active subscription")
	ErrCodeSpaceExhausted  = errors.New("could not generate enough unique codes")

	// Administration
	ErrHolderHasActiveCode   = errors.New("previous holder already has an active redeemed code")
	ErrNoProvenance          = errors.New("code has no previous holder to restore")
	ErrCodesAlreadyGenerated = errors.New("codes already generated for purchase")

	// Billing
	ErrBillingUnavailable = errors.New("billing provider unavailable")
	ErrInvalidSignature   = errors.New("invalid webhook signature")

	ErrRateLimited = errors.New("too many attempts")
	ErrLockHeld    = errors.New("lock is held by another owner")
)

// Reason codes returned to API callers.
const (
	ReasonNotFound          = "not_found"
	ReasonAlreadyRedeemed   = "already_redeemed"
	ReasonRevoked           = "revoked"
	ReasonExpired           = "expired"
	ReasonAlreadySubscribed = "already_subscribed"
	ReasonInvalidArgument   = "invalid_argument"
	ReasonConflict          = "conflict"
	ReasonUnavailable       = "unavailable"
	ReasonRateLimited       = "rate_limited"
	ReasonInternal          = "internal"
)

// ReasonOf maps an error returned by a use case to its reason code.
func ReasonOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCodeNotFound), errors.Is(err, ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrCodeAlreadyRedeemed):
		return ReasonAlreadyRedeemed
	case errors.Is(err, ErrCodeRevoked):
		return ReasonRevoked
	case errors.Is(err, ErrCodeExpired):
		return ReasonExpired
	case errors.Is(err, ErrAlreadySubscribed):
		return ReasonAlreadySubscribed
	case errors.Is(err, ErrInvalidArgument):
		return ReasonInvalidArgument
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrHolderHasActiveCode),
		errors.Is(err, ErrNoProvenance),
		errors.Is(err, ErrCodesAlreadyGenerated),
		errors.Is(err, ErrAlreadyExists):
		return ReasonConflict
	case errors.Is(err, ErrBillingUnavailable):
		return ReasonUnavailable
	case errors.Is(err, ErrRateLimited):
		return ReasonRateLimited
	default:
		return ReasonInternal
	}
}
