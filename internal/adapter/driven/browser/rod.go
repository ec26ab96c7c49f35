package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
)

// Compile-time interface satisfaction check.
var _ SurfaceFactory = (*RodLauncher)(nil)

// RodLauncher owns one Chrome process (local or remote) and hands out an
// incognito context per surface, so attempts never share cookies or storage.
type RodLauncher struct {
	remoteURL string
	headless  bool
	logger    *slog.Logger

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// NewRodLauncher creates a launcher. With remoteURL empty a local Chrome is
// started on first use; otherwise the DevTools endpoint at remoteURL is used.
func NewRodLauncher(remoteURL string, headless bool, logger *slog.Logger) *RodLauncher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RodLauncher{remoteURL: remoteURL, headless: headless, logger: logger}
}

// NewSurface opens a stealth page in a fresh incognito context.
func (l *RodLauncher) NewSurface(_ context.Context) (Surface, error) {
	b, err := l.ensure()
	if err != nil {
		return nil, err
	}

	incognito, err := b.Incognito()
	if err != nil {
		return nil, fmt.Errorf("browser: incognito context: %w", err)
	}

	page, err := stealth.Page(incognito)
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	return &rodSurface{browser: incognito, page: page}, nil
}

// Close shuts the browser down. A later NewSurface starts a new one.
func (l *RodLauncher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var err error
	if l.browser != nil {
		err = l.browser.Close()
		l.browser = nil
	}
	if l.lnch != nil {
		l.lnch.Kill()
		l.lnch = nil
	}
	return err
}

// ensure starts or connects the shared browser. It is not bound to any
// attempt's context; attempts cancel through their own page contexts.
func (l *RodLauncher) ensure() (*rod.Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.browser != nil {
		return l.browser, nil
	}

	var wsURL string
	if l.remoteURL != "" {
		u, err := launcher.ResolveURL(l.remoteURL)
		if err != nil {
			return nil, fmt.Errorf("browser: resolve remote %s: %w", l.remoteURL, err)
		}
		wsURL = u
		l.logger.Info("browser: connecting to remote", "url", l.remoteURL)
	} else {
		lnch := launcher.New().
			Headless(l.headless).
			Set("disable-blink-features", "AutomationControlled")
		u, err := lnch.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		l.lnch = lnch
		l.logger.Info("browser: launched local chrome", "headless", l.headless)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	l.browser = b
	return b, nil
}

// rodSurface is one stealth page inside its own incognito context.
type rodSurface struct {
	browser *rod.Browser
	page    *rod.Page
}

func (s *rodSurface) Open(ctx context.Context, url, preload string) error {
	if preload != "" {
		if _, err := s.page.EvalOnNewDocument(preload); err != nil {
			return fmt.Errorf("browser: install preload: %w", err)
		}
	}
	if err := s.page.Context(ctx).Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := s.page.Context(ctx).WaitLoad(); err != nil {
		return fmt.Errorf("browser: wait load %s: %w", url, err)
	}
	return nil
}

func (s *rodSurface) Eval(ctx context.Context, js string, args ...any) (string, error) {
	res, err := s.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return "", fmt.Errorf("browser: eval: %w", err)
	}
	return res.Value.Str(), nil
}

// URL reads location.href, which reflects hash-route changes immediately.
func (s *rodSurface) URL(ctx context.Context) (string, error) {
	return s.Eval(ctx, `() => window.location.href`)
}

func (s *rodSurface) Close() error {
	pageErr := s.page.Close()
	if err := s.browser.Close(); err != nil {
		return err
	}
	return pageErr
}
