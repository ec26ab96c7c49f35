package application

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ericfisherdev/recibos/internal/domain/model"
	"github.com/ericfisherdev/recibos/internal/domain/port/driven"
)

// Credential keys under which portal credentials are stored.
const (
	CredentialService  = "sedapal"
	CredentialEmail    = "email"
	CredentialPassword = "password"
)

// CredentialProvider enables runtime hot-swap of the portal credentials.
// It holds a mutex-protected copy so credential updates take effect on the
// next login attempt without restarting the application.
type CredentialProvider struct {
	mu    sync.RWMutex
	creds model.PortalCredentials
}

// NewCredentialProvider creates a provider with the given initial credentials,
// which may be empty if none are configured at startup.
func NewCredentialProvider(creds model.PortalCredentials) *CredentialProvider {
	return &CredentialProvider{creds: creds}
}

// Get returns the current credentials.
func (p *CredentialProvider) Get() model.PortalCredentials {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.creds
}

// Replace swaps the current credentials. The next login attempt uses them.
func (p *CredentialProvider) Replace(creds model.PortalCredentials) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.creds = creds
}

// HasCredentials returns true if both email and password are set.
func (p *CredentialProvider) HasCredentials() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.creds.Complete()
}

// ResolveCredentials merges stored credentials over env, field by field.
// A store without an encryption key is treated as empty.
func ResolveCredentials(ctx context.Context, store driven.CredentialStore, env model.PortalCredentials) (model.PortalCredentials, error) {
	if store == nil {
		return env, nil
	}
	stored, err := store.GetAll(ctx, CredentialService)
	if errors.Is(err, driven.ErrEncryptionKeyNotSet) {
		return env, nil
	}
	if err != nil {
		return env, fmt.Errorf("load stored credentials: %w", err)
	}

	creds := env
	if v := stored[CredentialEmail]; v != "" {
		creds.Email = v
	}
	if v := stored[CredentialPassword]; v != "" {
		creds.Password = v
	}
	return creds, nil
}

// StoreCredentials persists creds and swaps them into the provider.
func StoreCredentials(ctx context.Context, store driven.CredentialStore, provider *CredentialProvider, creds model.PortalCredentials) error {
	if !creds.Complete() {
		return model.ErrNoCredentials
	}
	if store != nil {
		if err := store.Set(ctx, CredentialService, CredentialEmail, creds.Email); err != nil {
			return fmt.Errorf("store email: %w", err)
		}
		if err := store.Set(ctx, CredentialService, CredentialPassword, creds.Password); err != nil {
			return fmt.Errorf("store password: %w", err)
		}
	}
	provider.Replace(creds)
	return nil
}
