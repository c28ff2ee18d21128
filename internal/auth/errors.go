package auth

import "errors"

var (
	ErrNotFound          = errors.New("auth: not found")
	ErrInvalidCredential = errors.New("auth: invalid credential")
	ErrUnauthenticated   = errors.New("auth: unauthenticated")
	ErrForbidden         = errors.New("auth: forbidden")
	ErrStepUpRequired    = errors.New("auth: billing step-up required")
	ErrStoreUnavailable  = errors.New("auth: user store unavailable")
	ErrPINNotSet         = errors.New("auth: billing pin not set")
	ErrInvalidPIN        = errors.New("auth: invalid pin")
)
