package identity

import "errors"

// Provider-reported conditions. Callers match them with errors.Is; any
// other error from this package is an unclassified failure.
var (
	ErrInvalidEmail  = errors.New("invalid email")
	ErrUserNotFound  = errors.New("user not found")
	ErrWrongPassword = errors.New("wrong password")
	ErrEmailInUse    = errors.New("email already in use")
	ErrWeakPassword  = errors.New("weak password")
)

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrResetTokenInvalid  = errors.New("reset token invalid or expired")
	ErrFederationDisabled = errors.New("federated sign-in is not configured")
	ErrFederatedCancelled = errors.New("federated sign-in cancelled")
	ErrFederatedNoEmail   = errors.New("federated profile has no email")
)
