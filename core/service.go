package core

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	transientStore  TransientStore
	provider        Provider
	states          *StateTokenManager
	vault           *CredentialVault
	now             func() time.Time
}

type ServiceDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ErrorMapper     ErrorMapper
	ConfigProvider  ConfigProvider
	OptionsResolver OptionsResolver
	TransientStore  TransientStore
	Provider        Provider
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("crmconnect", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("crmconnect"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.transientStore == nil {
		builder.transientStore = NewMemoryTransientStoreWithLimits(0, builder.now)
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.provider == nil && builder.providerFactory != nil {
		built, buildErr := builder.providerFactory(finalConfig)
		if buildErr != nil {
			return nil, mapBuildError(builder.errorMapper, buildErr)
		}
		builder.provider = built
	}
	if builder.provider == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: provider is required"))
	}

	states := NewStateTokenManager(builder.transientStore, finalConfig.StateTTL())
	if builder.random != nil {
		states.random = builder.random
	}

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		transientStore:  builder.transientStore,
		provider:        builder.provider,
		states:          states,
		vault:           NewCredentialVault(builder.transientStore, finalConfig.CredentialsTTL()),
		now:             builder.now,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) ProviderID() string {
	if s == nil || s.provider == nil {
		return ""
	}
	return s.provider.ID()
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:          s.logger,
		LoggerProvider:  s.loggerProvider,
		MetricsRecorder: s.metricsRecorder,
		ErrorMapper:     s.errorMapper,
		ConfigProvider:  s.configProvider,
		OptionsResolver: s.optionsResolver,
		TransientStore:  s.transientStore,
		Provider:        s.provider,
	}
}

// Authorize records a pending state for the identity and returns the
// provider consent URL carrying it.
func (s *Service) Authorize(ctx context.Context, req AuthorizeRequest) (response AuthorizeResponse, err error) {
	id := req.Identity()
	op := s.begin(ctx, "authorize", id)
	defer func() { op.finish(err) }()

	if err = id.Validate(); err != nil {
		err = s.mapError(err)
		return AuthorizeResponse{}, err
	}
	_, encoded, err := s.states.Issue(ctx, id)
	if err != nil {
		err = s.mapError(err)
		return AuthorizeResponse{}, err
	}
	authURL, err := s.provider.AuthorizationURL(ctx, encoded)
	if err != nil {
		err = s.mapError(err)
		return AuthorizeResponse{}, err
	}
	return AuthorizeResponse{URL: authURL, State: encoded, Identity: id}, nil
}

// HandleCallback consumes the pending state before exchanging the code, so
// a state can never be replayed even when the exchange fails.
func (s *Service) HandleCallback(ctx context.Context, req CallbackRequest) (completion CallbackCompletion, err error) {
	op := s.begin(ctx, "handle_callback", IdentityRef{})
	defer func() { op.finish(err) }()

	if providerErr := strings.TrimSpace(req.Error); providerErr != "" {
		message := providerErr
		if description := strings.TrimSpace(req.ErrorDescription); description != "" {
			message = providerErr + ": " + description
		}
		err = ProviderError(http.StatusBadRequest, message)
		return CallbackCompletion{}, err
	}

	id, err := s.states.Consume(ctx, req.State)
	op.identify(id)
	if err != nil {
		err = s.mapError(err)
		return CallbackCompletion{}, err
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		err = BadInputError("authorization code is required")
		return CallbackCompletion{}, err
	}
	payload, err := s.provider.ExchangeCode(ctx, code)
	if err != nil {
		err = s.mapError(err)
		return CallbackCompletion{}, err
	}
	if err = s.vault.Deposit(ctx, id, payload); err != nil {
		err = s.mapError(err)
		return CallbackCompletion{}, err
	}
	return CallbackCompletion{Identity: id, HTML: CloseWindowHTML}, nil
}

// GetCredentials hands out the stored credentials once.
func (s *Service) GetCredentials(ctx context.Context, id IdentityRef) (credentials Credentials, err error) {
	id = id.Normalized()
	op := s.begin(ctx, "get_credentials", id)
	defer func() { op.finish(err) }()

	if err = id.Validate(); err != nil {
		err = s.mapError(err)
		return Credentials{}, err
	}
	credentials, err = s.vault.Consume(ctx, id)
	if err != nil {
		err = s.mapError(err)
		return Credentials{}, err
	}
	return credentials, nil
}

// ListItems fetches the first page of provider records. Records with
// unreadable timestamps are kept and the issue is logged.
func (s *Service) ListItems(ctx context.Context, input any) (items []IntegrationItem, err error) {
	op := s.begin(ctx, "list_items", IdentityRef{})
	defer func() {
		op.set("item_count", len(items))
		op.finish(err)
	}()

	credentials, err := DecodeCredentials(input)
	if err != nil {
		err = s.mapError(err)
		return nil, err
	}
	if strings.TrimSpace(credentials.AccessToken) == "" {
		err = CredentialsMissingError("access token is required")
		return nil, err
	}
	page, err := s.provider.ListItems(ctx, credentials)
	if err != nil {
		err = s.mapError(err)
		return nil, err
	}
	for _, warning := range page.Warnings {
		op.warn("list_items record degraded", map[string]any{"warning": warning.Error()})
	}
	op.set("warning_count", len(page.Warnings))
	items = page.Items
	if items == nil {
		items = []IntegrationItem{}
	}
	return items, nil
}

// Status reports what is stored for the identity without consuming it.
func (s *Service) Status(ctx context.Context, id IdentityRef) (status AuthorizationStatus, err error) {
	id = id.Normalized()
	op := s.begin(ctx, "authorization_status", id)
	defer func() { op.finish(err) }()

	if err = id.Validate(); err != nil {
		err = s.mapError(err)
		return AuthorizationStatus{}, err
	}
	status.Identity = id

	pending, err := s.lookup(ctx, StateKey(id))
	if err != nil {
		err = s.mapError(err)
		return AuthorizationStatus{}, err
	}
	if pending != nil {
		status.Pending = true
		status.PendingExpiresAt = pending
	}
	ready, err := s.lookup(ctx, CredentialsKey(id))
	if err != nil {
		err = s.mapError(err)
		return AuthorizationStatus{}, err
	}
	if ready != nil {
		status.CredentialsReady = true
		status.CredentialsExpiresAt = ready
	}
	return status, nil
}

// PurgeExpired removes lapsed entries when the store supports it.
func (s *Service) PurgeExpired(ctx context.Context) (removed int, err error) {
	op := s.begin(ctx, "purge_expired", IdentityRef{})
	defer func() {
		op.set("removed", removed)
		op.finish(err)
	}()

	purger, ok := s.transientStore.(TransientPurger)
	if !ok {
		return 0, nil
	}
	removed, err = purger.PurgeExpired(ctx, s.now())
	if err != nil {
		err = s.mapError(err)
		return 0, err
	}
	return removed, nil
}

// lookup returns the entry expiry, or nil when the key is not live.
func (s *Service) lookup(ctx context.Context, key string) (*time.Time, error) {
	if reader, ok := s.transientStore.(TransientEntryReader); ok {
		entry, found, err := reader.Lookup(ctx, key)
		if err != nil || !found {
			return nil, err
		}
		expiresAt := entry.ExpiresAt
		return &expiresAt, nil
	}
	_, found, err := s.transientStore.Get(ctx, key)
	if err != nil || !found {
		return nil, err
	}
	unknown := time.Time{}
	return &unknown, nil
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
