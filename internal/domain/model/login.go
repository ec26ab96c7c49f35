package model

import "time"

// LoginOutcome is the single message a login attempt emits. It is either
// LoginSucceeded or LoginFailed.
type LoginOutcome interface {
	isLoginOutcome()
}

// LoginSucceeded carries the scraped token and when it was captured.
type LoginSucceeded struct {
	Token     string
	Timestamp time.Time
}

// LoginFailed carries the terminal failure of an attempt.
type LoginFailed struct {
	Kind   LoginErrorKind
	Detail string
}

func (LoginSucceeded) isLoginOutcome() {}
func (LoginFailed) isLoginOutcome()    {}

// Err converts the failure into a *LoginError.
func (f LoginFailed) Err() error {
	return &LoginError{Kind: f.Kind, Detail: f.Detail}
}

// PortalCredentials are the consumer-portal login credentials.
type PortalCredentials struct {
	Email    string
	Password string
}

// Complete reports whether both fields are set.
func (c PortalCredentials) Complete() bool {
	return c.Email != "" && c.Password != ""
}
