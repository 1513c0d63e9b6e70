package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func transientEntryHandlers() repository.ModelHandlers[*transientEntryRecord] {
	return repository.ModelHandlers[*transientEntryRecord]{
		NewRecord: func() *transientEntryRecord {
			return &transientEntryRecord{}
		},
		GetID: func(record *transientEntryRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *transientEntryRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "entry_key"
		},
		GetIdentifierValue: func(record *transientEntryRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.EntryKey)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
