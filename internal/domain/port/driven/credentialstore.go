package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/recibos/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by CredentialStore operations when
// RECIBOS_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set RECIBOS_SECRET_KEY")

// CredentialStore defines the driven port for encrypted credential persistence.
// The adapter layer is responsible for encryption/decryption; this interface
// operates on plaintext values at the domain boundary.
type CredentialStore interface {
	// Set stores or replaces the credential identified by service and key.
	// Returns ErrEncryptionKeyNotSet if the adapter was constructed without a key.
	Set(ctx context.Context, service, key, plaintext string) error

	// Get retrieves the plaintext credential. Returns ("", nil) if none exists.
	Get(ctx context.Context, service, key string) (string, error)

	// GetAll returns every key/value stored for service.
	GetAll(ctx context.Context, service string) (map[string]string, error)

	// List returns all stored credentials with decrypted values.
	List(ctx context.Context) ([]model.Credential, error)

	// Delete removes the credential identified by service and key.
	Delete(ctx context.Context, service, key string) error
}
