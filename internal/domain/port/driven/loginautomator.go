package driven

import (
	"context"

	"github.com/ericfisherdev/recibos/internal/domain/model"
)

// LoginAutomator runs one scripted login attempt against the portal.
// Start returns immediately; the attempt emits exactly one outcome on the
// returned channel and then closes it. Cancelling ctx aborts the attempt.
type LoginAutomator interface {
	Start(ctx context.Context, creds model.PortalCredentials) <-chan model.LoginOutcome
}
