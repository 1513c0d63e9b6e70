package sqlstore_test

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-crm-connect/core"
	servicemigrations "github.com/goliatone/go-crm-connect/migrations"
	sqlstore "github.com/goliatone/go-crm-connect/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-crm-connect-tests"
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"transient_entries",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "transient_entries" {
		t.Fatalf("expected transient_entries table, got %q", tableName)
	}
}

func TestTransientStore_SetGetOverwrite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	store := newTestTransientStore(t, client)
	ctx := context.Background()

	if err := store.Set(ctx, "state:o1:u1", []byte(`{"state":"a"}`), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, "state:o1:u1", []byte(`{"state":"b"}`), time.Minute); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	value, ok, err := store.Get(ctx, "state:o1:u1")
	if err != nil || !ok {
		t.Fatalf("expected value, ok=%v err=%v", ok, err)
	}
	if string(value) != `{"state":"b"}` {
		t.Fatalf("expected overwritten value, got %s", value)
	}

	var rows int
	if err := client.DB().NewRaw("SELECT COUNT(*) FROM transient_entries").Scan(ctx, &rows); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected one row per key, got %d", rows)
	}

	if err := store.Set(ctx, " ", []byte("x"), time.Minute); err == nil {
		t.Fatalf("expected empty key error")
	}
	if err := store.Set(ctx, "k", []byte("x"), 0); err == nil {
		t.Fatalf("expected ttl error")
	}
}

func TestTransientStore_ConcurrentSetsKeepOneRow(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	store := newTestTransientStore(t, client)
	ctx := context.Background()

	const writers = 16
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- store.Set(ctx, "state:o1:u1", []byte(fmt.Sprintf(`{"state":"%d"}`, i)), time.Minute)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent set: %v", err)
		}
	}

	var rows int
	if err := client.DB().NewRaw("SELECT COUNT(*) FROM transient_entries WHERE entry_key = ?", "state:o1:u1").Scan(ctx, &rows); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected one row for the key, got %d", rows)
	}
	if _, ok, err := store.Get(ctx, "state:o1:u1"); err != nil || !ok {
		t.Fatalf("expected a live value, ok=%v err=%v", ok, err)
	}
}

func TestTransientStore_ExpiryHidesEntries(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	clock := &testClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := newTestTransientStore(t, client).WithClock(clock.Now)
	ctx := context.Background()

	if err := store.Set(ctx, "credentials:o1:u1", []byte(`{"access_token":"a"}`), 600*time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	entry, ok, err := store.Lookup(ctx, "credentials:o1:u1")
	if err != nil || !ok {
		t.Fatalf("expected live entry, ok=%v err=%v", ok, err)
	}
	if !entry.ExpiresAt.Equal(clock.Now().Add(600 * time.Second)) {
		t.Fatalf("unexpected expiry %s", entry.ExpiresAt)
	}

	clock.Advance(600 * time.Second)
	if _, ok, err := store.Get(ctx, "credentials:o1:u1"); err != nil || ok {
		t.Fatalf("expected expired entry to be absent, ok=%v err=%v", ok, err)
	}
	if _, ok, err := store.Take(ctx, "credentials:o1:u1"); err != nil || ok {
		t.Fatalf("expected expired entry not to be taken, ok=%v err=%v", ok, err)
	}
}

func TestTransientStore_TakeIsSingleUse(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	store := newTestTransientStore(t, client)
	ctx := context.Background()

	if err := store.Set(ctx, "state:o1:u1", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	value, ok, err := store.Take(ctx, "state:o1:u1")
	if err != nil || !ok || string(value) != "v" {
		t.Fatalf("expected first take to succeed, value=%q ok=%v err=%v", value, ok, err)
	}
	if _, ok, err := store.Take(ctx, "state:o1:u1"); err != nil || ok {
		t.Fatalf("expected second take to miss, ok=%v err=%v", ok, err)
	}

	if err := store.Set(ctx, "state:o2:u2", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Delete(ctx, "state:o2:u2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "state:o2:u2"); ok {
		t.Fatalf("expected deleted key to be absent")
	}
	if err := store.Delete(ctx, "missing"); err != nil {
		t.Fatalf("expected delete of missing key to succeed: %v", err)
	}
}

func TestTransientStore_PurgeExpired(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	clock := &testClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := newTestTransientStore(t, client).WithClock(clock.Now)
	ctx := context.Background()

	if err := store.Set(ctx, "short", []byte("a"), time.Second); err != nil {
		t.Fatalf("set short: %v", err)
	}
	if err := store.Set(ctx, "long", []byte("b"), time.Hour); err != nil {
		t.Fatalf("set long: %v", err)
	}
	removed, err := store.PurgeExpired(ctx, clock.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one purged row, got %d", removed)
	}
	if _, ok, _ := store.Get(ctx, "long"); !ok {
		t.Fatalf("expected long-lived entry to survive purge")
	}
}

func TestTransientStore_BacksServiceFlow(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	store := newTestTransientStore(t, client)
	ctx := context.Background()

	vault := core.NewCredentialVault(store, core.DefaultCredentialsTTL)
	id := core.IdentityRef{UserID: "u1", OrgID: "o1"}
	if err := vault.Deposit(ctx, id, []byte(`{"access_token":"a1","token_type":"bearer"}`)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	creds, err := vault.Consume(ctx, id)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if creds.AccessToken != "a1" {
		t.Fatalf("unexpected credentials %+v", creds)
	}
	if _, err := vault.Consume(ctx, id); !core.IsCredentialsMissing(err) {
		t.Fatalf("expected credentials missing on second consume, got %v", err)
	}
}

func TestNewTransientStoreFromPersistence_RequiresClient(t *testing.T) {
	if _, err := sqlstore.NewTransientStoreFromPersistence(nil); err == nil {
		t.Fatalf("expected nil client error")
	}
	if _, err := sqlstore.NewCachedTransientStoreFromDB("bogus", nil); err == nil {
		t.Fatalf("expected unsupported candidate error")
	}
}

func newTestTransientStore(t *testing.T, client *persistence.Client) *sqlstore.TransientStore {
	t.Helper()
	store, err := sqlstore.NewTransientStoreFromPersistence(client)
	if err != nil {
		t.Fatalf("new transient store: %v", err)
	}
	return store
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:crmconnect-test-%d?mode=memory&cache=shared",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	err = servicemigrations.RegisterDialect(ctx, servicemigrations.DialectSQLite, func(fsys fs.FS) {
		client.RegisterSQLMigrations(fsys)
	})
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
