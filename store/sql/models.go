package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type transientEntryRecord struct {
	bun.BaseModel `bun:"table:transient_entries,alias:te"`

	ID        string    `bun:"id,pk"`
	EntryKey  string    `bun:"entry_key,notnull"`
	Value     []byte    `bun:"value,notnull"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
