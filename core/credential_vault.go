package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// CredentialVault holds exchanged credentials until they are consumed once.
type CredentialVault struct {
	store TransientStore
	ttl   time.Duration
}

func NewCredentialVault(store TransientStore, ttl time.Duration) *CredentialVault {
	if ttl <= 0 {
		ttl = DefaultCredentialsTTL
	}
	return &CredentialVault{store: store, ttl: ttl}
}

// Deposit stores the raw token payload for the identity, replacing any
// unclaimed credentials.
func (v *CredentialVault) Deposit(ctx context.Context, id IdentityRef, payload []byte) error {
	if v == nil || v.store == nil {
		return fmt.Errorf("core: transient store is not configured")
	}
	id = id.Normalized()
	if err := id.Validate(); err != nil {
		return err
	}
	if !json.Valid(payload) {
		return fmt.Errorf("core: credential payload is malformed")
	}
	if err := v.store.Set(ctx, CredentialsKey(id), payload, v.ttl); err != nil {
		return fmt.Errorf("core: store credentials: %w", err)
	}
	return nil
}

// Consume returns the stored credentials and removes them. A second call
// for the same identity yields CredentialsMissingError.
func (v *CredentialVault) Consume(ctx context.Context, id IdentityRef) (Credentials, error) {
	if v == nil || v.store == nil {
		return Credentials{}, fmt.Errorf("core: transient store is not configured")
	}
	id = id.Normalized()
	if err := id.Validate(); err != nil {
		return Credentials{}, err
	}
	payload, found, err := takeTransient(ctx, v.store, CredentialsKey(id))
	if err != nil {
		return Credentials{}, fmt.Errorf("core: consume credentials: %w", err)
	}
	if !found {
		return Credentials{}, CredentialsMissingError("")
	}
	return ParseCredentials(payload)
}
