package hubspot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-crm-connect/core"
	"github.com/goliatone/go-crm-connect/providers"
	"github.com/goliatone/go-crm-connect/transport"
)

const (
	ProviderID       = "hubspot"
	DefaultAuthURL   = "https://app.hubspot.com/oauth/authorize"
	DefaultTokenURL  = "https://api.hubapi.com/oauth/v1/token"
	DefaultAPIBase   = "https://api.hubapi.com"
	DefaultItemType  = "hubspot"
	DefaultPageSize  = 10
	contactsListPath = "/crm/v3/objects/contacts"
)

const (
	ScopeContactsRead = "crm.objects.contacts.read"
	ScopeOAuth        = "oauth"
)

var contactPropertyNames = []string{"firstname", "lastname", "email", "createdate", "lastmodifieddate"}

type Config struct {
	ClientID       string
	ClientSecret   string
	RedirectURI    string
	AuthURL        string
	TokenURL       string
	APIBaseURL     string
	Scopes         []string
	PageSize       int
	ItemType       string
	RequestTimeout time.Duration
	HTTPClient     core.HTTPDoer
}

// Provider authorizes against HubSpot and lists the first page of contacts.
type Provider struct {
	oauth    *providers.OAuth2Provider
	api      *transport.Client
	apiBase  string
	pageSize int
	itemType string
	timeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		AuthURL:    DefaultAuthURL,
		TokenURL:   DefaultTokenURL,
		APIBaseURL: DefaultAPIBase,
		Scopes:     []string{ScopeContactsRead},
		PageSize:   DefaultPageSize,
		ItemType:   DefaultItemType,
	}
}

// ConfigFromCore maps resolved service configuration onto provider settings.
func ConfigFromCore(cfg core.Config) Config {
	return Config{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		RedirectURI:  cfg.OAuth.RedirectURI,
		AuthURL:      cfg.OAuth.AuthURL,
		TokenURL:     cfg.OAuth.TokenURL,
		APIBaseURL:   cfg.Items.APIBaseURL,
		Scopes:       append([]string(nil), cfg.OAuth.Scopes...),
		PageSize:     cfg.PageSize(),
		ItemType:     cfg.Items.ItemType,
	}
}

func New(cfg Config) (*Provider, error) {
	defaults := DefaultConfig()
	if strings.TrimSpace(cfg.AuthURL) == "" {
		cfg.AuthURL = defaults.AuthURL
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		cfg.TokenURL = defaults.TokenURL
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		cfg.APIBaseURL = defaults.APIBaseURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = defaults.Scopes
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaults.PageSize
	}
	if strings.TrimSpace(cfg.ItemType) == "" {
		cfg.ItemType = defaults.ItemType
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, fmt.Errorf("providers/hubspot: client secret is required")
	}

	oauth, err := providers.NewOAuth2Provider(providers.OAuth2Config{
		ID:                  ProviderID,
		AuthURL:             cfg.AuthURL,
		TokenURL:            cfg.TokenURL,
		ClientID:            cfg.ClientID,
		ClientSecret:        cfg.ClientSecret,
		ClientSecretInBody:  true,
		RedirectURI:         cfg.RedirectURI,
		DefaultScopes:       cfg.Scopes,
		TokenRequestTimeout: cfg.RequestTimeout,
		HTTPClient:          cfg.HTTPClient,
	})
	if err != nil {
		return nil, err
	}

	return &Provider{
		oauth:    oauth,
		api:      transport.NewClient(cfg.HTTPClient, transport.WithHeader("Accept", "application/json")),
		apiBase:  strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/"),
		pageSize: cfg.PageSize,
		itemType: strings.TrimSpace(cfg.ItemType),
		timeout:  cfg.RequestTimeout,
	}, nil
}

func (p *Provider) ID() string {
	return ProviderID
}

func (p *Provider) AuthorizationURL(ctx context.Context, state string) (string, error) {
	return p.oauth.AuthorizationURL(ctx, state)
}

func (p *Provider) ExchangeCode(ctx context.Context, code string) ([]byte, error) {
	return p.oauth.ExchangeCode(ctx, code)
}

// ListItems reads one page of contacts. Pagination cursors are ignored.
func (p *Provider) ListItems(ctx context.Context, credentials core.Credentials) (core.ItemPage, error) {
	token := strings.TrimSpace(credentials.AccessToken)
	if token == "" {
		return core.ItemPage{}, core.CredentialsMissingError("access token is required")
	}

	body, err := p.api.GetJSON(ctx, p.apiBase+contactsListPath, token, map[string]string{
		"limit":      strconv.Itoa(p.pageSize),
		"properties": strings.Join(contactPropertyNames, ","),
	}, p.timeout, describeAPIError)
	if err != nil {
		return core.ItemPage{}, err
	}
	return normalizeContactPage(body, p.itemType)
}

var _ core.Provider = (*Provider)(nil)
