package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-crm-connect/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TransientStore persists pending OAuth state and deposited credentials in
// the transient_entries table. Expired rows are invisible to reads and are
// removed by PurgeExpired.
type TransientStore struct {
	db   *bun.DB
	repo repository.Repository[*transientEntryRecord]
	now  func() time.Time
}

func NewTransientStore(db *bun.DB) (*TransientStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*transientEntryRecord](db, transientEntryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid transient entry repository wiring: %w", err)
		}
	}
	return &TransientStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock replaces the clock used for expiry checks.
func (s *TransientStore) WithClock(now func() time.Time) *TransientStore {
	if s != nil && now != nil {
		s.now = func() time.Time { return now().UTC() }
	}
	return s
}

func (s *TransientStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: transient store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("sqlstore: transient key is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("sqlstore: transient ttl must be positive")
	}
	now := s.now()
	payload := append([]byte(nil), value...)

	// Single upsert on the unique entry_key index.
	_, err := s.db.NewInsert().
		Model(&transientEntryRecord{
			ID:        uuid.NewString(),
			EntryKey:  key,
			Value:     payload,
			ExpiresAt: now.Add(ttl),
			CreatedAt: now,
			UpdatedAt: now,
		}).
		On("CONFLICT (entry_key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("expires_at = EXCLUDED.expires_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *TransientStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, ok, err := s.Lookup(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	return entry.Value, true, nil
}

func (s *TransientStore) Lookup(ctx context.Context, key string) (core.TransientEntry, bool, error) {
	if s == nil || s.repo == nil {
		return core.TransientEntry{}, false, fmt.Errorf("sqlstore: transient store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return core.TransientEntry{}, false, nil
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("entry_key", "=", key),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.TransientEntry{}, false, err
	}
	if len(records) == 0 {
		return core.TransientEntry{}, false, nil
	}
	entry := records[0].toDomain()
	if entry.Expired(s.now()) {
		return core.TransientEntry{}, false, nil
	}
	return entry, true, nil
}

func (s *TransientStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: transient store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*transientEntryRecord)(nil)).
		Where("entry_key = ?", strings.TrimSpace(key)).
		Exec(ctx)
	return err
}

// Take deletes the row and returns its value in one transaction. An expired
// row is still deleted but reported as absent.
func (s *TransientStore) Take(ctx context.Context, key string) ([]byte, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, fmt.Errorf("sqlstore: transient store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false, nil
	}
	now := s.now()

	var (
		value []byte
		found bool
	)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findTransientEntryTx(ctx, tx, key)
		if err != nil || record == nil {
			return err
		}
		result, err := tx.NewDelete().
			Model((*transientEntryRecord)(nil)).
			Where("id = ?", record.ID).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, affErr := result.RowsAffected(); affErr == nil && affected == 0 {
			return nil
		}
		if !now.Before(record.ExpiresAt.UTC()) {
			return nil
		}
		value = record.Value
		found = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return value, found, nil
}

func (s *TransientStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: transient store is not configured")
	}
	if now.IsZero() {
		now = s.now()
	}
	result, err := s.db.NewDelete().
		Model((*transientEntryRecord)(nil)).
		Where("expires_at <= ?", now.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (r *transientEntryRecord) toDomain() core.TransientEntry {
	if r == nil {
		return core.TransientEntry{}
	}
	return core.TransientEntry{
		Key:       r.EntryKey,
		Value:     append([]byte(nil), r.Value...),
		ExpiresAt: r.ExpiresAt.UTC(),
	}
}

func findTransientEntryTx(ctx context.Context, tx bun.Tx, key string) (*transientEntryRecord, error) {
	record := &transientEntryRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.entry_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}
