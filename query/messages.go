package query

import "github.com/goliatone/go-crm-connect/core"

const (
	TypeListItems           = "crmconnect.query.items.list"
	TypeAuthorizationStatus = "crmconnect.query.authorization.status"
)

// ListItemsMessage carries a credential blob in any shape DecodeCredentials
// accepts. A nil blob is reported by the service as missing credentials.
type ListItemsMessage struct {
	Credentials any
}

func (ListItemsMessage) Type() string { return TypeListItems }

func (ListItemsMessage) Validate() error { return nil }

type AuthorizationStatusMessage struct {
	Identity core.IdentityRef
}

func (AuthorizationStatusMessage) Type() string { return TypeAuthorizationStatus }

func (m AuthorizationStatusMessage) Validate() error {
	return core.IdentityValidationError("query", m.Identity)
}
