package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

type OAuthConfig struct {
	ProviderID   string   `koanf:"provider_id" mapstructure:"provider_id"`
	ClientID     string   `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret string   `koanf:"client_secret" mapstructure:"client_secret"`
	RedirectURI  string   `koanf:"redirect_uri" mapstructure:"redirect_uri"`
	Scopes       []string `koanf:"scopes" mapstructure:"scopes"`
	AuthURL      string   `koanf:"auth_url" mapstructure:"auth_url"`
	TokenURL     string   `koanf:"token_url" mapstructure:"token_url"`
}

type TransientConfig struct {
	StateTTLSeconds       int `koanf:"state_ttl_seconds" mapstructure:"state_ttl_seconds"`
	CredentialsTTLSeconds int `koanf:"credentials_ttl_seconds" mapstructure:"credentials_ttl_seconds"`
}

type ItemsConfig struct {
	APIBaseURL string `koanf:"api_base_url" mapstructure:"api_base_url"`
	PageSize   int    `koanf:"page_size" mapstructure:"page_size"`
	ItemType   string `koanf:"item_type" mapstructure:"item_type"`
}

type Config struct {
	ServiceName string          `koanf:"service_name" mapstructure:"service_name"`
	OAuth       OAuthConfig     `koanf:"oauth" mapstructure:"oauth"`
	Transient   TransientConfig `koanf:"transient" mapstructure:"transient"`
	Items       ItemsConfig     `koanf:"items" mapstructure:"items"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "crmconnect",
		OAuth: OAuthConfig{
			ProviderID: "hubspot",
		},
		Transient: TransientConfig{
			StateTTLSeconds:       int(DefaultStateTTL / time.Second),
			CredentialsTTLSeconds: int(DefaultCredentialsTTL / time.Second),
		},
		Items: ItemsConfig{
			PageSize: defaultPageSize,
			ItemType: "hubspot",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.OAuth.ProviderID) == "" {
		return fmt.Errorf("core: oauth.provider_id is required")
	}
	if redirect := strings.TrimSpace(c.OAuth.RedirectURI); redirect != "" {
		if _, err := url.ParseRequestURI(redirect); err != nil {
			return fmt.Errorf("core: oauth.redirect_uri is invalid: %w", err)
		}
	}
	if c.Transient.StateTTLSeconds < 0 || c.Transient.CredentialsTTLSeconds < 0 {
		return fmt.Errorf("core: transient ttl values must not be negative")
	}
	if c.Items.PageSize < 0 || c.Items.PageSize > maxPageSize {
		return fmt.Errorf("core: items.page_size must be between 1 and %d", maxPageSize)
	}
	return nil
}

func (c Config) StateTTL() time.Duration {
	if c.Transient.StateTTLSeconds <= 0 {
		return DefaultStateTTL
	}
	return time.Duration(c.Transient.StateTTLSeconds) * time.Second
}

func (c Config) CredentialsTTL() time.Duration {
	if c.Transient.CredentialsTTLSeconds <= 0 {
		return DefaultCredentialsTTL
	}
	return time.Duration(c.Transient.CredentialsTTLSeconds) * time.Second
}

func (c Config) PageSize() int {
	if c.Items.PageSize <= 0 {
		return defaultPageSize
	}
	return c.Items.PageSize
}
