package core

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"
)

type fakeProvider struct {
	mu            sync.Mutex
	id            string
	tokenPayload  []byte
	exchangeErr   error
	exchangeCodes []string
	page          ItemPage
	listErr       error
	listTokens    []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		id:           "hubspot",
		tokenPayload: []byte(`{"access_token":"abc","refresh_token":"ref","expires_in":1800,"token_type":"bearer"}`),
	}
}

func (p *fakeProvider) ID() string { return p.id }

func (p *fakeProvider) AuthorizationURL(_ context.Context, state string) (string, error) {
	query := url.Values{}
	query.Set("client_id", "client-1")
	query.Set("state", state)
	return "https://provider.test/oauth/authorize?" + query.Encode(), nil
}

func (p *fakeProvider) ExchangeCode(_ context.Context, code string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exchangeCodes = append(p.exchangeCodes, code)
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	return append([]byte(nil), p.tokenPayload...), nil
}

func (p *fakeProvider) ListItems(_ context.Context, credentials Credentials) (ItemPage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listTokens = append(p.listTokens, credentials.AccessToken)
	if p.listErr != nil {
		return ItemPage{}, p.listErr
	}
	return p.page, nil
}

func (p *fakeProvider) exchangeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.exchangeCodes)
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// plainStore implements only the base contract, exercising the get then
// delete fallback.
type plainStore struct {
	mu      sync.Mutex
	entries map[string][]byte
	deletes []string
}

func newPlainStore() *plainStore {
	return &plainStore{entries: map[string][]byte{}}
}

func (s *plainStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = append([]byte(nil), value...)
	return nil
}

func (s *plainStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.entries[key]
	return value, ok, nil
}

func (s *plainStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, key)
	delete(s.entries, key)
	return nil
}

func newTestService(provider Provider, opts ...Option) (*Service, *MemoryTransientStore, *manualClock, error) {
	clock := newManualClock()
	store := NewMemoryTransientStoreWithLimits(0, clock.Now)
	base := []Option{
		WithProvider(provider),
		WithTransientStore(store),
		WithClock(clock.Now),
		WithLogger(stubLogger{}),
	}
	svc, err := NewService(DefaultConfig(), append(base, opts...)...)
	return svc, store, clock, err
}

func stateFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Query().Get("state")
}

func tamperState(encoded string, token string) string {
	var pending PendingAuthState
	_ = json.Unmarshal([]byte(encoded), &pending)
	pending.State = token
	out, _ := json.Marshal(pending)
	return string(out)
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}
