package command

import (
	"context"

	"github.com/goliatone/go-crm-connect/core"
	gocmd "github.com/goliatone/go-command"
)

type MutatingService interface {
	Authorize(ctx context.Context, req core.AuthorizeRequest) (core.AuthorizeResponse, error)
	HandleCallback(ctx context.Context, req core.CallbackRequest) (core.CallbackCompletion, error)
	GetCredentials(ctx context.Context, id core.IdentityRef) (core.Credentials, error)
}

type PurgingService interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// PurgeResult is stored on the result collector by PurgeExpiredCommand.
type PurgeResult struct {
	Removed int
}

type AuthorizeCommand struct {
	service MutatingService
}

func NewAuthorizeCommand(service MutatingService) *AuthorizeCommand {
	return &AuthorizeCommand{service: service}
}

func (c *AuthorizeCommand) Execute(ctx context.Context, msg AuthorizeMessage) error {
	if c == nil || c.service == nil {
		return core.DependencyError("command", "authorize service")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.Authorize(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CompleteCallbackCommand struct {
	service MutatingService
}

func NewCompleteCallbackCommand(service MutatingService) *CompleteCallbackCommand {
	return &CompleteCallbackCommand{service: service}
}

func (c *CompleteCallbackCommand) Execute(ctx context.Context, msg CompleteCallbackMessage) error {
	if c == nil || c.service == nil {
		return core.DependencyError("command", "callback service")
	}
	out, err := c.service.HandleCallback(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

// ConsumeCredentialsCommand removes the deposited credentials. It mutates
// the store, which is why it is a command and not a query.
type ConsumeCredentialsCommand struct {
	service MutatingService
}

func NewConsumeCredentialsCommand(service MutatingService) *ConsumeCredentialsCommand {
	return &ConsumeCredentialsCommand{service: service}
}

func (c *ConsumeCredentialsCommand) Execute(ctx context.Context, msg ConsumeCredentialsMessage) error {
	if c == nil || c.service == nil {
		return core.DependencyError("command", "credentials service")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.GetCredentials(ctx, msg.Identity)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type PurgeExpiredCommand struct {
	service PurgingService
}

func NewPurgeExpiredCommand(service PurgingService) *PurgeExpiredCommand {
	return &PurgeExpiredCommand{service: service}
}

func (c *PurgeExpiredCommand) Execute(ctx context.Context, _ PurgeExpiredMessage) error {
	if c == nil || c.service == nil {
		return core.DependencyError("command", "purge service")
	}
	removed, err := c.service.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, PurgeResult{Removed: removed})
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
