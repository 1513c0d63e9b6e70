// Package gocommand mounts the connector facade on the go-command registry
// and dispatcher.
package gocommand

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	crmconnect "github.com/goliatone/go-crm-connect"
	crmcommand "github.com/goliatone/go-crm-connect/command"
	"github.com/goliatone/go-crm-connect/core"
	crmquery "github.com/goliatone/go-crm-connect/query"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// QueueResolverKey is the resolver name used when commands are mirrored into
// a go-job queue registry.
const QueueResolverKey = "queue"

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

// Bus owns a command registry and the dispatcher subscriptions made through
// it. Close releases the subscriptions.
type Bus struct {
	mu         sync.Mutex
	registry   *command.Registry
	queue      *jobqueuecommand.Registry
	runnerOpts []runner.Option
	subs       []commanddispatcher.Subscription
}

type BusOption func(*Bus)

func WithRegistry(registry *command.Registry) BusOption {
	return func(b *Bus) {
		if registry != nil {
			b.registry = registry
		}
	}
}

// WithQueueRegistry mirrors every registered command into queueRegistry so
// it can be enqueued as a go-job task.
func WithQueueRegistry(queueRegistry *jobqueuecommand.Registry) BusOption {
	return func(b *Bus) {
		b.queue = queueRegistry
	}
}

func WithRunnerOptions(opts ...runner.Option) BusOption {
	return func(b *Bus) {
		b.runnerOpts = append(b.runnerOpts, opts...)
	}
}

func NewBus(opts ...BusOption) (*Bus, error) {
	b := &Bus{registry: command.NewRegistry()}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	if b.queue != nil {
		if err := b.registry.AddResolver(QueueResolverKey, jobqueuecommand.QueueResolver(b.queue)); err != nil {
			return nil, fmt.Errorf("gocommand: add queue resolver: %w", err)
		}
	}
	return b, nil
}

func (b *Bus) Registry() *command.Registry {
	if b == nil {
		return nil
	}
	return b.registry
}

// QueueRegistry returns the go-job registry commands are mirrored into, or
// nil when the bus was built without one.
func (b *Bus) QueueRegistry() *jobqueuecommand.Registry {
	if b == nil {
		return nil
	}
	return b.queue
}

func (b *Bus) AddResolver(key string, resolver command.Resolver) error {
	if b == nil || b.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return b.registry.AddResolver(strings.TrimSpace(key), resolver)
}

func (b *Bus) HasResolver(key string) bool {
	if b == nil || b.registry == nil {
		return false
	}
	return b.registry.HasResolver(strings.TrimSpace(key))
}

// Initialize runs the registry resolvers. Call it once every handler is
// registered.
func (b *Bus) Initialize() error {
	if b == nil || b.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return b.registry.Initialize()
}

// Mount registers and subscribes every facade command and query. On error
// the subscriptions made by this call are released.
func (b *Bus) Mount(facade *crmconnect.Facade) error {
	if b == nil || b.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	if facade == nil {
		return fmt.Errorf("gocommand: facade is required")
	}
	commands := facade.Commands()
	queries := facade.Queries()

	var mounted []commanddispatcher.Subscription
	steps := []func() (commanddispatcher.Subscription, error){
		func() (commanddispatcher.Subscription, error) {
			return RegisterCommand[crmcommand.AuthorizeMessage](b, commands.Authorize)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterCommand[crmcommand.CompleteCallbackMessage](b, commands.CompleteCallback)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterCommand[crmcommand.ConsumeCredentialsMessage](b, commands.ConsumeCredentials)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterCommand[crmcommand.PurgeExpiredMessage](b, commands.PurgeExpired)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterQuery[crmquery.ListItemsMessage, []core.IntegrationItem](b, queries.ListItems)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterQuery[crmquery.AuthorizationStatusMessage, core.AuthorizationStatus](b, queries.AuthorizationStatus)
		},
	}
	for _, step := range steps {
		sub, err := step()
		if err != nil {
			for _, done := range mounted {
				done.Unsubscribe()
			}
			return err
		}
		mounted = append(mounted, sub)
	}

	b.mu.Lock()
	b.subs = append(b.subs, mounted...)
	b.mu.Unlock()
	return nil
}

// Subscriptions reports how many dispatcher subscriptions the bus holds.
func (b *Bus) Subscriptions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()
	for _, sub := range subs {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
}

// RegisterCommand subscribes cmd on the dispatcher and records it in the
// bus registry.
func RegisterCommand[T any](b *Bus, cmd command.Commander[T]) (commanddispatcher.Subscription, error) {
	if b == nil || b.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	sub := commanddispatcher.SubscribeCommand(cmd, b.runnerOpts...)
	if err := b.registry.RegisterCommand(cmd); err != nil {
		if sub != nil {
			sub.Unsubscribe()
		}
		return nil, err
	}
	return sub, nil
}

// RegisterQuery subscribes qry on the dispatcher. Queries stay out of the
// registry: its resolvers, the queue resolver included, only accept
// commanders.
func RegisterQuery[T any, R any](b *Bus, qry command.Querier[T, R]) (commanddispatcher.Subscription, error) {
	if b == nil || b.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	return commanddispatcher.SubscribeQuery(qry, b.runnerOpts...), nil
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}
