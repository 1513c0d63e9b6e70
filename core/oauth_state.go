package core

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const stateTokenBytes = 32

// StateTokenManager issues and consumes the anti-CSRF state bound to an
// identity. The stored copy is removed before it is compared, so a state is
// usable at most once whatever happens afterwards.
type StateTokenManager struct {
	store  TransientStore
	ttl    time.Duration
	random func([]byte) (int, error)
}

func NewStateTokenManager(store TransientStore, ttl time.Duration) *StateTokenManager {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateTokenManager{store: store, ttl: ttl, random: rand.Read}
}

// Issue stores a fresh pending state for the identity, replacing any earlier
// one, and returns its serialized form.
func (m *StateTokenManager) Issue(ctx context.Context, id IdentityRef) (PendingAuthState, string, error) {
	if m == nil || m.store == nil {
		return PendingAuthState{}, "", fmt.Errorf("core: transient store is not configured")
	}
	id = id.Normalized()
	if err := id.Validate(); err != nil {
		return PendingAuthState{}, "", err
	}
	token, err := m.generate()
	if err != nil {
		return PendingAuthState{}, "", err
	}
	pending := PendingAuthState{State: token, UserID: id.UserID, OrgID: id.OrgID}
	encoded, err := json.Marshal(pending)
	if err != nil {
		return PendingAuthState{}, "", fmt.Errorf("core: encode oauth state: %w", err)
	}
	if err := m.store.Set(ctx, StateKey(id), encoded, m.ttl); err != nil {
		return PendingAuthState{}, "", fmt.Errorf("core: store oauth state: %w", err)
	}
	return pending, string(encoded), nil
}

// Consume validates the state returned by the provider. Missing, expired and
// mismatched states all yield StateMismatchError.
func (m *StateTokenManager) Consume(ctx context.Context, encoded string) (IdentityRef, error) {
	if m == nil || m.store == nil {
		return IdentityRef{}, fmt.Errorf("core: transient store is not configured")
	}
	returned, err := ParsePendingAuthState(encoded)
	if err != nil {
		return IdentityRef{}, StateMismatchError()
	}
	id := returned.Identity()

	stored, found, err := takeTransient(ctx, m.store, StateKey(id))
	if err != nil {
		return id, fmt.Errorf("core: consume oauth state: %w", err)
	}
	if !found {
		return id, StateMismatchError()
	}
	var saved PendingAuthState
	if err := json.Unmarshal(stored, &saved); err != nil {
		return id, StateMismatchError()
	}
	if subtle.ConstantTimeCompare([]byte(saved.State), []byte(returned.State)) != 1 {
		return id, StateMismatchError()
	}
	return id, nil
}

func (m *StateTokenManager) generate() (string, error) {
	raw := make([]byte, stateTokenBytes)
	if _, err := m.random(raw); err != nil {
		return "", fmt.Errorf("core: generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func ParsePendingAuthState(encoded string) (PendingAuthState, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return PendingAuthState{}, fmt.Errorf("core: oauth state is required")
	}
	var pending PendingAuthState
	if err := json.Unmarshal([]byte(encoded), &pending); err != nil {
		return PendingAuthState{}, fmt.Errorf("core: oauth state is malformed: %w", err)
	}
	if strings.TrimSpace(pending.State) == "" {
		return PendingAuthState{}, fmt.Errorf("core: oauth state token is required")
	}
	if err := pending.Identity().Validate(); err != nil {
		return PendingAuthState{}, err
	}
	return pending, nil
}

// takeTransient prefers an atomic take and falls back to get then delete.
// The delete is attempted even when the read fails.
func takeTransient(ctx context.Context, store TransientStore, key string) ([]byte, bool, error) {
	if taker, ok := store.(TransientTaker); ok {
		return taker.Take(ctx, key)
	}
	value, found, getErr := store.Get(ctx, key)
	if deleteErr := store.Delete(ctx, key); deleteErr != nil && getErr == nil {
		return nil, false, deleteErr
	}
	if getErr != nil {
		return nil, false, getErr
	}
	return value, found, nil
}
