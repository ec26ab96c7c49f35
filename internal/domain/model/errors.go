package model

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the application and its adapters.
var (
	ErrLoginTimeout          = errors.New("login timed out")
	ErrLoginFieldsNotFound   = errors.New("login form fields not found")
	ErrTokenNotFound         = errors.New("token not found after login")
	ErrLoginScript           = errors.New("login script error")
	ErrNetwork               = errors.New("network error")
	ErrUnknownResponseFormat = errors.New("unknown response format")
	ErrFileWrite             = errors.New("file write error")
	ErrShareUnavailable      = errors.New("share unavailable")
	ErrTokenExpired          = errors.New("token rejected by upstream")
	ErrInvalidSupplyID       = errors.New("invalid supply id")
	ErrUnknownSource         = errors.New("bill has no known source page")
	ErrBillNotFound          = errors.New("bill not found")
	ErrNoCredentials         = errors.New("portal credentials not configured")
)

// LoginErrorKind classifies a failed login attempt.
type LoginErrorKind string

const (
	LoginKindTimeout        LoginErrorKind = "LoginTimeout"
	LoginKindFieldsNotFound LoginErrorKind = "LoginFieldsNotFound"
	LoginKindTokenNotFound  LoginErrorKind = "TokenNotFound"
	LoginKindScript         LoginErrorKind = "ScriptError"
	LoginKindNetwork        LoginErrorKind = "NetworkError"
	LoginKindCredentials    LoginErrorKind = "MissingCredentials"
)

// sentinel maps the kind to the error it unwraps to.
func (k LoginErrorKind) sentinel() error {
	switch k {
	case LoginKindTimeout:
		return ErrLoginTimeout
	case LoginKindFieldsNotFound:
		return ErrLoginFieldsNotFound
	case LoginKindTokenNotFound:
		return ErrTokenNotFound
	case LoginKindScript:
		return ErrLoginScript
	case LoginKindNetwork:
		return ErrNetwork
	case LoginKindCredentials:
		return ErrNoCredentials
	default:
		return ErrLoginScript
	}
}

// LoginError is a terminal login failure with a human-readable detail.
type LoginError struct {
	Kind   LoginErrorKind
	Detail string
}

func (e *LoginError) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Unwrap lets errors.Is match the kind's sentinel.
func (e *LoginError) Unwrap() error {
	return e.Kind.sentinel()
}
