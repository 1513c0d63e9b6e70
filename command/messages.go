package command

import (
	"strings"

	"github.com/goliatone/go-crm-connect/core"
	goerrors "github.com/goliatone/go-errors"
)

const (
	TypeAuthorize          = "crmconnect.command.authorize"
	TypeCompleteCallback   = "crmconnect.command.callback.complete"
	TypeConsumeCredentials = "crmconnect.command.credentials.consume"
	TypePurgeExpired       = "crmconnect.command.transient.purge"
)

type AuthorizeMessage struct {
	Request core.AuthorizeRequest
}

func (AuthorizeMessage) Type() string { return TypeAuthorize }

func (m AuthorizeMessage) Validate() error {
	return core.IdentityValidationError("command", m.Request.Identity())
}

// CompleteCallbackMessage carries the provider redirect. Code and State are
// checked by the service so that a provider error can be surfaced first.
type CompleteCallbackMessage struct {
	Request core.CallbackRequest
}

func (CompleteCallbackMessage) Type() string { return TypeCompleteCallback }

func (m CompleteCallbackMessage) Validate() error {
	if strings.TrimSpace(m.Request.Error) != "" {
		return nil
	}
	if strings.TrimSpace(m.Request.State) == "" {
		return core.FieldValidationError("command", goerrors.FieldError{Field: "state", Message: "state is required"})
	}
	return nil
}

type ConsumeCredentialsMessage struct {
	Identity core.IdentityRef
}

func (ConsumeCredentialsMessage) Type() string { return TypeConsumeCredentials }

func (m ConsumeCredentialsMessage) Validate() error {
	return core.IdentityValidationError("command", m.Identity)
}

type PurgeExpiredMessage struct{}

func (PurgeExpiredMessage) Type() string { return TypePurgeExpired }

func (PurgeExpiredMessage) Validate() error { return nil }
