// Package browser implements the LoginAutomator port by scripting the portal's
// login page in an embedded browser and scraping the resulting token.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ericfisherdev/recibos/internal/domain/model"
	"github.com/ericfisherdev/recibos/internal/domain/port/driven"
	"github.com/ericfisherdev/recibos/internal/metrics"
)

// Compile-time interface satisfaction check.
var _ driven.LoginAutomator = (*Automator)(nil)

// minTokenLength is the shortest scraped value accepted as a token.
const minTokenLength = 11

// Surface is one isolated browser page.
type Surface interface {
	// Open installs preload to run before page scripts and navigates to url,
	// returning once the page has loaded.
	Open(ctx context.Context, url, preload string) error
	// Eval runs a JavaScript function with JSON-serializable args and returns
	// its string result.
	Eval(ctx context.Context, js string, args ...any) (string, error)
	// URL returns the page's current location.
	URL(ctx context.Context) (string, error)
	Close() error
}

// SurfaceFactory creates a fresh isolated surface per login attempt.
type SurfaceFactory interface {
	NewSurface(ctx context.Context) (Surface, error)
}

// Config holds the automator's timing and target settings.
type Config struct {
	LoginURL string
	// LoginPathMarker is the URL fragment that identifies the login page.
	LoginPathMarker      string
	PageLoadTimeout      time.Duration
	FieldAttempts        int
	FieldRetryInterval   time.Duration
	RedirectPollInterval time.Duration
	RedirectTimeout      time.Duration
}

// DefaultConfig returns the timings the portal login has been tuned for.
func DefaultConfig(loginURL string) Config {
	return Config{
		LoginURL:             loginURL,
		LoginPathMarker:      "iniciar-sesion",
		PageLoadTimeout:      20 * time.Second,
		FieldAttempts:        10,
		FieldRetryInterval:   2 * time.Second,
		RedirectPollInterval: time.Second,
		RedirectTimeout:      15 * time.Second,
	}
}

// state names the automator's progress for logging.
type state string

const (
	stateIdle      state = "idle"
	stateLoading   state = "loading"
	stateScripted  state = "scripted"
	stateRedirect  state = "awaiting_redirect"
	stateExtract   state = "extracting"
	stateSucceeded state = "succeeded"
	stateFailed    state = "failed"
)

// Automator drives one login attempt per Start call.
type Automator struct {
	factory SurfaceFactory
	script  Script
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewAutomator creates an Automator. A nil logger falls back to slog.Default().
func NewAutomator(factory SurfaceFactory, script Script, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Automator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Automator{
		factory: factory,
		script:  script,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Start launches an attempt in the background. The returned channel receives
// exactly one outcome and is then closed.
func (a *Automator) Start(ctx context.Context, creds model.PortalCredentials) <-chan model.LoginOutcome {
	out := make(chan model.LoginOutcome, 1)
	go func() {
		defer close(out)
		outcome := a.run(ctx, creds)
		switch o := outcome.(type) {
		case model.LoginSucceeded:
			a.metrics.LoginAttempt("success")
			a.transition(stateSucceeded)
		case model.LoginFailed:
			a.metrics.LoginAttempt(string(o.Kind))
			a.transition(stateFailed, "kind", o.Kind, "detail", o.Detail)
		}
		out <- outcome
	}()
	return out
}

func (a *Automator) run(ctx context.Context, creds model.PortalCredentials) model.LoginOutcome {
	a.transition(stateIdle)
	if !creds.Complete() {
		return failed(model.LoginKindCredentials, "portal email and password are not configured")
	}

	surface, err := a.factory.NewSurface(ctx)
	if err != nil {
		return failed(model.LoginKindNetwork, fmt.Sprintf("starting browser: %v", err))
	}
	defer func() {
		if err := surface.Close(); err != nil {
			a.logger.Warn("closing login surface", "error", err)
		}
	}()

	if outcome := a.load(ctx, surface); outcome != nil {
		return outcome
	}
	if outcome := a.fillForm(ctx, surface, creds); outcome != nil {
		return outcome
	}
	if outcome := a.awaitRedirect(ctx, surface); outcome != nil {
		return outcome
	}
	return a.extract(ctx, surface)
}

func (a *Automator) load(ctx context.Context, surface Surface) model.LoginOutcome {
	a.transition(stateLoading, "url", a.cfg.LoginURL)
	loadCtx, cancel := context.WithTimeout(ctx, a.cfg.PageLoadTimeout)
	defer cancel()

	err := surface.Open(loadCtx, a.cfg.LoginURL, a.script.Preload)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return failed(model.LoginKindTimeout, "login attempt cancelled")
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(loadCtx.Err(), context.DeadlineExceeded):
		return failed(model.LoginKindTimeout, fmt.Sprintf("login page did not load within %s", a.cfg.PageLoadTimeout))
	default:
		return failed(model.LoginKindNetwork, fmt.Sprintf("loading login page: %v", err))
	}
}

// fieldPresence is the Locate script result.
type fieldPresence struct {
	Email    bool `json:"email"`
	Password bool `json:"password"`
	Button   bool `json:"button"`
}

func (p fieldPresence) complete() bool {
	return p.Email && p.Password && p.Button
}

func (a *Automator) fillForm(ctx context.Context, surface Surface, creds model.PortalCredentials) model.LoginOutcome {
	var found fieldPresence
	for attempt := 1; attempt <= a.cfg.FieldAttempts; attempt++ {
		a.transition(stateScripted, "attempt", attempt)

		raw, err := surface.Eval(ctx, a.script.Locate, a.script.Selectors)
		if err != nil {
			return a.scriptFailure(ctx, "locating login fields", err)
		}
		if err := json.Unmarshal([]byte(raw), &found); err != nil {
			return failed(model.LoginKindScript, fmt.Sprintf("locate script returned %q", raw))
		}
		if found.complete() {
			break
		}
		if attempt == a.cfg.FieldAttempts {
			return failed(model.LoginKindFieldsNotFound, fmt.Sprintf(
				"login fields not found after %d attempts (email=%t password=%t button=%t)",
				attempt, found.Email, found.Password, found.Button))
		}
		if err := sleep(ctx, a.cfg.FieldRetryInterval); err != nil {
			return failed(model.LoginKindTimeout, "login attempt cancelled")
		}
	}

	result, err := surface.Eval(ctx, a.script.Submit, a.script.Selectors, creds.Email, creds.Password)
	if err != nil {
		return a.scriptFailure(ctx, "submitting login form", err)
	}
	if result != "submitted" {
		return failed(model.LoginKindScript, fmt.Sprintf("submit script returned %q", result))
	}
	return nil
}

func (a *Automator) awaitRedirect(ctx context.Context, surface Surface) model.LoginOutcome {
	a.transition(stateRedirect)
	deadline := a.now().Add(a.cfg.RedirectTimeout)

	for {
		if err := sleep(ctx, a.cfg.RedirectPollInterval); err != nil {
			return failed(model.LoginKindTimeout, "login attempt cancelled")
		}
		current, err := surface.URL(ctx)
		if err != nil {
			return a.scriptFailure(ctx, "reading page location", err)
		}
		if !strings.Contains(current, a.cfg.LoginPathMarker) {
			a.logger.Debug("login redirect detected", "url", current)
			return nil
		}
		if !a.now().Before(deadline) {
			return failed(model.LoginKindTimeout, fmt.Sprintf(
				"still on the login page after %s; check credentials", a.cfg.RedirectTimeout))
		}
	}
}

func (a *Automator) extract(ctx context.Context, surface Surface) model.LoginOutcome {
	a.transition(stateExtract)
	token, err := surface.Eval(ctx, a.script.Extract)
	if err != nil {
		return a.scriptFailure(ctx, "extracting token", err)
	}
	token = strings.TrimSpace(token)
	if len(token) < minTokenLength {
		return failed(model.LoginKindTokenNotFound, "login succeeded but no token was found")
	}
	return model.LoginSucceeded{Token: token, Timestamp: a.now()}
}

func (a *Automator) scriptFailure(ctx context.Context, step string, err error) model.LoginOutcome {
	if ctx.Err() != nil {
		return failed(model.LoginKindTimeout, "login attempt cancelled")
	}
	return failed(model.LoginKindScript, fmt.Sprintf("%s: %v", step, err))
}

func (a *Automator) transition(s state, args ...any) {
	a.logger.Debug("login automator", append([]any{"state", s}, args...)...)
}

func failed(kind model.LoginErrorKind, detail string) model.LoginOutcome {
	return model.LoginFailed{Kind: kind, Detail: detail}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
