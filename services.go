package crmconnect

import "github.com/goliatone/go-crm-connect/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type TransientStore = core.TransientStore
type Provider = core.Provider
type ProviderFactory = core.ProviderFactory

type IdentityRef = core.IdentityRef
type AuthorizeRequest = core.AuthorizeRequest
type AuthorizeResponse = core.AuthorizeResponse
type CallbackRequest = core.CallbackRequest
type CallbackCompletion = core.CallbackCompletion
type Credentials = core.Credentials
type IntegrationItem = core.IntegrationItem
type AuthorizationStatus = core.AuthorizationStatus

var (
	WithLogger          = core.WithLogger
	WithLoggerProvider  = core.WithLoggerProvider
	WithMetricsRecorder = core.WithMetricsRecorder
	WithErrorMapper     = core.WithErrorMapper
	WithConfigProvider  = core.WithConfigProvider
	WithOptionsResolver = core.WithOptionsResolver
	WithTransientStore  = core.WithTransientStore
	WithProvider        = core.WithProvider
	WithProviderFactory = core.WithProviderFactory
	WithClock           = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// NewService builds a connector service. Without an explicit provider the
// HubSpot provider is built from the resolved config.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, withDefaultProvider(opts)...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, withDefaultProvider(opts)...)
}

func withDefaultProvider(opts []Option) []Option {
	out := make([]Option, 0, len(opts)+1)
	out = append(out, WithProviderFactory(HubSpotProviderFactory))
	return append(out, opts...)
}
