package service

import "errors"

// Error kinds.  Every service error wraps exactly one of them so transports
// can pick a status without knowing each failure.
var (
	ErrValidation     = errors.New("validation error")
	ErrAuthentication = errors.New("authentication error")
	ErrUpstream       = errors.New("upstream error")
	ErrConfiguration  = errors.New("configuration error")
	ErrNotFound       = errors.New("not found")
)

// Error is a service failure with a stable machine-readable code.
type Error struct {
	Code string
	Kind error
}

func (e *Error) Error() string { return e.Code }
func (e *Error) Unwrap() error { return e.Kind }

func newError(code string, kind error) *Error { return &Error{Code: code, Kind: kind} }

var (
	ErrMissingFields        = newError("missing_fields", ErrValidation)
	ErrInvalidEmail         = newError("invalid_email", ErrValidation)
	ErrWeakPassword         = newError("weak_password", ErrValidation)
	ErrEmailTaken           = newError("email_taken", ErrValidation)
	ErrInvalidRole          = newError("invalid_role", ErrValidation)
	ErrInvalidName          = newError("invalid_name", ErrValidation)
	ErrInvalidOrExpiredCode = newError("invalid_or_expired_code", ErrAuthentication)
	ErrNoSuchUser           = newError("no_such_user", ErrAuthentication)
	ErrInvalidCredentials   = newError("invalid_credentials", ErrAuthentication)
	ErrOAuthExchangeFailed  = newError("oauth_exchange_failed", ErrUpstream)
	ErrOAuthProfileFailed   = newError("oauth_profile_failed", ErrUpstream)
	ErrSendFailed           = newError("send_failed", ErrUpstream)
	ErrOAuthNotConfigured   = newError("oauth_not_configured", ErrConfiguration)
	ErrUserNotFound         = newError("user_not_found", ErrNotFound)
)

// Code returns the machine code carried by err, or "internal".
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}
