package core

import (
	"strings"
	"time"
)

const (
	DefaultStateTTL       = 600 * time.Second
	DefaultCredentialsTTL = 600 * time.Second

	stateKeyPrefix       = "state"
	credentialsKeyPrefix = "credentials"
	transientKeySep      = ":"
)

// CloseWindowHTML is returned once the callback completes so the popup that
// hosted the provider consent screen can dismiss itself.
const CloseWindowHTML = "<html><script>window.close();</script></html>"

type IdentityRef struct {
	UserID string `json:"user_id"`
	OrgID  string `json:"org_id"`
}

// Validate requires both ids and rejects the transient key separator, so
// every identity maps to its own state and credentials keys.
func (r IdentityRef) Validate() error {
	return IdentityValidationError("core", r)
}

func (r IdentityRef) Normalized() IdentityRef {
	return IdentityRef{
		UserID: strings.TrimSpace(r.UserID),
		OrgID:  strings.TrimSpace(r.OrgID),
	}
}

// StateKey is the transient store key holding the pending authorization for
// the identity.
func StateKey(id IdentityRef) string {
	return transientKey(stateKeyPrefix, id)
}

// CredentialsKey is the transient store key holding the token payload for
// the identity.
func CredentialsKey(id IdentityRef) string {
	return transientKey(credentialsKeyPrefix, id)
}

func transientKey(prefix string, id IdentityRef) string {
	id = id.Normalized()
	return prefix + transientKeySep + id.OrgID + transientKeySep + id.UserID
}

// PendingAuthState is echoed through the provider untouched and compared
// against the stored copy on callback.
type PendingAuthState struct {
	State  string `json:"state"`
	UserID string `json:"user_id"`
	OrgID  string `json:"org_id"`
}

func (p PendingAuthState) Identity() IdentityRef {
	return IdentityRef{UserID: p.UserID, OrgID: p.OrgID}.Normalized()
}

type IntegrationItem struct {
	ID               string     `json:"id"`
	Type             string     `json:"type"`
	Name             string     `json:"name"`
	CreationTime     *time.Time `json:"creation_time"`
	LastModifiedTime *time.Time `json:"last_modified_time"`
	ParentID         *string    `json:"parent_id"`
}

// ItemPage is a single provider page plus the non-fatal issues found while
// normalizing it.
type ItemPage struct {
	Items    []IntegrationItem
	Warnings []error
}

type TransientEntry struct {
	Key       string
	Value     []byte
	ExpiresAt time.Time
}

func (e TransientEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

type AuthorizeRequest struct {
	UserID string
	OrgID  string
}

func (r AuthorizeRequest) Identity() IdentityRef {
	return IdentityRef{UserID: r.UserID, OrgID: r.OrgID}.Normalized()
}

type AuthorizeResponse struct {
	URL      string
	State    string
	Identity IdentityRef
}

type CallbackRequest struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

type CallbackCompletion struct {
	Identity IdentityRef
	HTML     string
}

type AuthorizationStatus struct {
	Identity             IdentityRef `json:"identity"`
	Pending              bool        `json:"pending"`
	PendingExpiresAt     *time.Time  `json:"pending_expires_at,omitempty"`
	CredentialsReady     bool        `json:"credentials_ready"`
	CredentialsExpiresAt *time.Time  `json:"credentials_expires_at,omitempty"`
}
