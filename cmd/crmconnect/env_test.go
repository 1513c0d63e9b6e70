package main

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-crm-connect/core"
)

func TestLoadSettings_Defaults(t *testing.T) {
	settings, err := LoadSettings(map[string]string{})
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if settings.Store.Driver != driverMemory {
		t.Fatalf("expected memory store, got %q", settings.Store.Driver)
	}
	if settings.HTTP.Addr != ":8080" {
		t.Fatalf("unexpected addr %q", settings.HTTP.Addr)
	}
	if settings.Store.PurgeInterval != time.Minute {
		t.Fatalf("unexpected purge interval %s", settings.Store.PurgeInterval)
	}

	raw, err := settings.LoadRaw(context.Background())
	if err != nil {
		t.Fatalf("load raw: %v", err)
	}
	if len(raw) != 0 {
		t.Fatalf("expected empty raw config, got %#v", raw)
	}
}

func TestLoadSettings_ReadsPrefixedVariables(t *testing.T) {
	settings, err := LoadSettings(map[string]string{
		"CRMCONNECT_OAUTH_CLIENT_ID":           "client",
		"CRMCONNECT_OAUTH_CLIENT_SECRET":       "secret",
		"CRMCONNECT_OAUTH_REDIRECT_URI":        "https://app.example.com/integrations/hubspot/oauth2callback",
		"CRMCONNECT_OAUTH_SCOPES":              "crm.objects.contacts.read, oauth",
		"CRMCONNECT_TRANSIENT_STATE_TTL":       "5m",
		"CRMCONNECT_TRANSIENT_CREDENTIALS_TTL": "90s",
		"CRMCONNECT_ITEMS_PAGE_SIZE":           "25",
		"CRMCONNECT_STORE_DRIVER":              "SQLite",
		"CRMCONNECT_STORE_DSN":                 "file:crm.db",
		"CRMCONNECT_STORE_CACHE":               "true",
		"CRMCONNECT_HTTP_ADDR":                 ":9090",
	})
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if settings.Store.Driver != driverSQLite || !settings.Store.Cache || settings.Store.DSN != "file:crm.db" {
		t.Fatalf("unexpected store settings %+v", settings.Store)
	}
	if settings.HTTP.Addr != ":9090" {
		t.Fatalf("unexpected addr %q", settings.HTTP.Addr)
	}

	raw, err := settings.LoadRaw(context.Background())
	if err != nil {
		t.Fatalf("load raw: %v", err)
	}
	oauth, ok := raw["oauth"].(map[string]any)
	if !ok {
		t.Fatalf("expected oauth section, got %#v", raw["oauth"])
	}
	if oauth["client_id"] != "client" || oauth["client_secret"] != "secret" {
		t.Fatalf("unexpected oauth section %#v", oauth)
	}
	scopes, ok := oauth["scopes"].([]any)
	if !ok || len(scopes) != 2 || scopes[1] != "oauth" {
		t.Fatalf("unexpected scopes %#v", oauth["scopes"])
	}
	transient := raw["transient"].(map[string]any)
	if transient["state_ttl_seconds"] != 300 || transient["credentials_ttl_seconds"] != 90 {
		t.Fatalf("unexpected transient section %#v", transient)
	}
	if raw["items"].(map[string]any)["page_size"] != 25 {
		t.Fatalf("unexpected items section %#v", raw["items"])
	}
}

func TestLoadSettings_InvalidDuration(t *testing.T) {
	if _, err := LoadSettings(map[string]string{"CRMCONNECT_STORE_PURGE_INTERVAL": "soon"}); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSettings_FeedConfigProvider(t *testing.T) {
	settings, err := LoadSettings(map[string]string{
		"CRMCONNECT_OAUTH_CLIENT_ID":     "client",
		"CRMCONNECT_ITEMS_PAGE_SIZE":     "20",
		"CRMCONNECT_TRANSIENT_STATE_TTL": "2m",
	})
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	cfg, err := core.NewCfgxConfigProvider(settings).Load(context.Background(), core.DefaultConfig())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.OAuth.ClientID != "client" {
		t.Fatalf("unexpected client id %q", cfg.OAuth.ClientID)
	}
	if cfg.PageSize() != 20 {
		t.Fatalf("unexpected page size %d", cfg.PageSize())
	}
	if cfg.StateTTL() != 2*time.Minute {
		t.Fatalf("unexpected state ttl %s", cfg.StateTTL())
	}
	if cfg.OAuth.ProviderID != "hubspot" {
		t.Fatalf("expected default provider id, got %q", cfg.OAuth.ProviderID)
	}
}

func TestRootOptions_OverrideStore(t *testing.T) {
	settings := Settings{Store: StoreEnv{Driver: driverMemory}}
	(&RootOptions{StoreDriver: driverPostgres, StoreDSN: "postgres://localhost/crm"}).apply(&settings)
	if settings.Store.Driver != driverPostgres || settings.Store.DSN != "postgres://localhost/crm" {
		t.Fatalf("unexpected store %+v", settings.Store)
	}
}

func TestOpenTransientStore_Memory(t *testing.T) {
	store, closeFn, err := openTransientStore(context.Background(), StoreEnv{Driver: driverMemory}, true)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer closeFn()
	if _, ok := store.(*core.MemoryTransientStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestOpenTransientStore_SQLiteMigratesAndCaches(t *testing.T) {
	store, closeFn, err := openTransientStore(context.Background(), StoreEnv{
		Driver: driverSQLite,
		DSN:    "file:crmconnect-cmd-test?mode=memory&cache=shared",
		Cache:  true,
	}, true)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer closeFn()

	ctx := context.Background()
	if err := store.Set(ctx, "state:o1:u1", []byte(`{"state":"s"}`), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	value, ok, err := store.Get(ctx, "state:o1:u1")
	if err != nil || !ok || string(value) != `{"state":"s"}` {
		t.Fatalf("unexpected get result %q %v %v", value, ok, err)
	}
}

func TestOpenTransientStore_RequiresDSN(t *testing.T) {
	if _, _, err := openTransientStore(context.Background(), StoreEnv{Driver: driverPostgres}, false); err == nil {
		t.Fatalf("expected dsn error")
	}
}
