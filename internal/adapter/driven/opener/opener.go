// Package opener hands saved documents to the operating system's default viewer.
package opener

import (
	"context"
	"fmt"

	"github.com/cli/browser"

	"github.com/ericfisherdev/recibos/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.DocumentOpener = (*System)(nil)

// System opens files with the platform URL handler (xdg-open, open, start).
type System struct {
	enabled  bool
	openFile func(string) error
}

// NewSystem creates an opener. When enabled is false Available reports false
// and Open is never attempted; headless servers run this way.
func NewSystem(enabled bool) *System {
	return &System{enabled: enabled, openFile: browser.OpenFile}
}

// Available reports whether opening may be attempted.
func (s *System) Available() bool {
	return s.enabled
}

// Open launches the default viewer for path.
func (s *System) Open(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.openFile(path); err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	return nil
}
