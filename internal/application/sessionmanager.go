// Package application contains use-case orchestration services.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ericfisherdev/recibos/internal/domain/model"
	"github.com/ericfisherdev/recibos/internal/domain/port/driven"
)

// SessionConfig holds the token lifetime and login wait limits.
type SessionConfig struct {
	TokenTTL time.Duration
	// LoginDeadline bounds a whole login attempt and the initiating caller's wait.
	LoginDeadline time.Duration
	// LoginWaitTimeout bounds how long a caller joining an attempt already in flight waits.
	LoginWaitTimeout time.Duration
}

// SessionState is a point-in-time view of the session for status reporting.
type SessionState struct {
	Valid      bool
	LoggingIn  bool
	Token      string // Redacted.
	ObtainedAt time.Time
	ExpiresAt  time.Time
}

// attempt is one in-flight login. Its key is unique so a cleared attempt can
// never be joined again.
type attempt struct {
	key    string
	cancel context.CancelFunc
	run    func() (any, error)
}

// SessionManager owns the portal token. It runs at most one login at a time
// and shares the result with every caller waiting on it.
type SessionManager struct {
	automator driven.LoginAutomator
	creds     *CredentialProvider
	cfg       SessionConfig
	logger    *slog.Logger
	now       func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	token   model.Token
	current *attempt
	seq     uint64
}

// NewSessionManager creates a SessionManager. A nil logger falls back to slog.Default().
func NewSessionManager(automator driven.LoginAutomator, creds *CredentialProvider, cfg SessionConfig, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		automator: automator,
		creds:     creds,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// AcquireToken returns the current token if it has not expired. Otherwise it
// starts a login, or joins the one already running, and waits for its outcome.
func (m *SessionManager) AcquireToken(ctx context.Context) (model.Token, error) {
	m.mu.Lock()
	if m.token.ValidAt(m.now()) {
		tok := m.token
		m.mu.Unlock()
		return tok, nil
	}

	wait := m.cfg.LoginWaitTimeout
	if m.current == nil {
		m.current = m.newAttempt()
		wait = m.cfg.LoginDeadline
	}
	a := m.current
	ch := m.group.DoChan(a.key, a.run)
	m.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.Err != nil {
			return model.Token{}, fmt.Errorf("acquire token: %w", res.Err)
		}
		return res.Val.(model.Token), nil
	case <-timer.C:
		return model.Token{}, fmt.Errorf("acquire token: %w", &model.LoginError{
			Kind:   model.LoginKindTimeout,
			Detail: fmt.Sprintf("login did not complete within %s", wait),
		})
	case <-ctx.Done():
		return model.Token{}, fmt.Errorf("acquire token: %w", ctx.Err())
	}
}

// newAttempt must be called with m.mu held.
func (m *SessionManager) newAttempt() *attempt {
	m.seq++
	attemptCtx, cancel := context.WithTimeout(context.Background(), m.cfg.LoginDeadline)
	a := &attempt{key: fmt.Sprintf("login-%d", m.seq), cancel: cancel}
	a.run = func() (any, error) { return m.login(attemptCtx, a) }
	return a
}

func (m *SessionManager) login(ctx context.Context, a *attempt) (model.Token, error) {
	defer a.cancel()
	m.logger.Info("starting portal login", "attempt", a.key)

	var (
		tok model.Token
		err error
	)
	select {
	case outcome := <-m.automator.Start(ctx, m.creds.Get()):
		switch o := outcome.(type) {
		case model.LoginSucceeded:
			tok = model.NewToken(o.Token, o.Timestamp, m.cfg.TokenTTL)
		case model.LoginFailed:
			err = o.Err()
		default:
			err = &model.LoginError{Kind: model.LoginKindScript, Detail: "login automator closed without an outcome"}
		}
	case <-ctx.Done():
		err = &model.LoginError{Kind: model.LoginKindTimeout, Detail: "login attempt cancelled"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != a {
		// Cleared while running; the outcome no longer belongs to this session.
		return model.Token{}, &model.LoginError{Kind: model.LoginKindTimeout, Detail: "login attempt cancelled"}
	}
	m.current = nil
	if err != nil {
		m.logger.Warn("portal login failed", "attempt", a.key, "error", err)
		return model.Token{}, err
	}
	m.token = tok
	m.logger.Info("portal login succeeded", "attempt", a.key, "token", tok.Redacted(), "expires_at", tok.ExpiresAt)
	return tok, nil
}

// IsValid reports whether a token is held and has not expired.
func (m *SessionManager) IsValid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token.ValidAt(m.now())
}

// Clear forgets the token and cancels any in-flight attempt. Waiters on the
// cancelled attempt fail; the next AcquireToken starts a new login.
func (m *SessionManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = model.Token{}
	if m.current != nil {
		m.current.cancel()
		m.group.Forget(m.current.key)
		m.current = nil
	}
	m.logger.Info("session cleared")
}

// Invalidate drops value if it is still the current token. A token already
// replaced by a newer login is left alone.
func (m *SessionManager) Invalidate(value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if value != "" && m.token.Value == value {
		m.token = model.Token{}
		m.logger.Info("token rejected upstream, invalidated")
	}
}

// State returns a snapshot of the session.
func (m *SessionManager) State() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	valid := m.token.ValidAt(m.now())
	state := SessionState{Valid: valid, LoggingIn: m.current != nil}
	if valid {
		state.Token = m.token.Redacted()
		state.ObtainedAt = m.token.ObtainedAt
		state.ExpiresAt = m.token.ExpiresAt
	}
	return state
}
