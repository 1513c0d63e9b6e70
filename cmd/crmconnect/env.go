package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const envPrefix = "CRMCONNECT_"

type OAuthEnv struct {
	ProviderID   string   `env:"PROVIDER_ID"`
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	RedirectURI  string   `env:"REDIRECT_URI"`
	Scopes       []string `env:"SCOPES" envSeparator:","`
	AuthURL      string   `env:"AUTH_URL"`
	TokenURL     string   `env:"TOKEN_URL"`
}

type TransientEnv struct {
	StateTTL       time.Duration `env:"STATE_TTL"`
	CredentialsTTL time.Duration `env:"CREDENTIALS_TTL"`
}

type ItemsEnv struct {
	APIBaseURL string `env:"API_BASE_URL"`
	PageSize   int    `env:"PAGE_SIZE"`
	ItemType   string `env:"ITEM_TYPE"`
}

type StoreEnv struct {
	Driver        string        `env:"DRIVER" envDefault:"memory"`
	DSN           string        `env:"DSN"`
	Cache         bool          `env:"CACHE" envDefault:"false"`
	PurgeInterval time.Duration `env:"PURGE_INTERVAL" envDefault:"1m"`
	Debug         bool          `env:"DEBUG" envDefault:"false"`
}

type HTTPEnv struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type LogEnv struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"console"`
}

// Settings is the process configuration read from CRMCONNECT_* variables.
type Settings struct {
	ServiceName string       `env:"SERVICE_NAME"`
	OAuth       OAuthEnv     `envPrefix:"OAUTH_"`
	Transient   TransientEnv `envPrefix:"TRANSIENT_"`
	Items       ItemsEnv     `envPrefix:"ITEMS_"`
	Store       StoreEnv     `envPrefix:"STORE_"`
	HTTP        HTTPEnv      `envPrefix:"HTTP_"`
	Log         LogEnv       `envPrefix:"LOG_"`
}

// LoadSettings parses the environment. A nil environ reads the process
// environment.
func LoadSettings(environ map[string]string) (Settings, error) {
	var settings Settings
	options := env.Options{Prefix: envPrefix}
	if environ != nil {
		options.Environment = environ
	}
	if err := env.ParseWithOptions(&settings, options); err != nil {
		return Settings{}, fmt.Errorf("parse env: %w", err)
	}
	settings.Store.Driver = strings.ToLower(strings.TrimSpace(settings.Store.Driver))
	settings.Log.Format = strings.ToLower(strings.TrimSpace(settings.Log.Format))
	return settings, nil
}

// LoadRaw exposes the connector section as the raw map consumed by the
// service config provider. Unset values are left out so defaults apply.
func (s Settings) LoadRaw(context.Context) (map[string]any, error) {
	raw := map[string]any{}
	if s.ServiceName != "" {
		raw["service_name"] = s.ServiceName
	}

	oauth := map[string]any{}
	putString(oauth, "provider_id", s.OAuth.ProviderID)
	putString(oauth, "client_id", s.OAuth.ClientID)
	putString(oauth, "client_secret", s.OAuth.ClientSecret)
	putString(oauth, "redirect_uri", s.OAuth.RedirectURI)
	putString(oauth, "auth_url", s.OAuth.AuthURL)
	putString(oauth, "token_url", s.OAuth.TokenURL)
	if len(s.OAuth.Scopes) > 0 {
		scopes := make([]any, 0, len(s.OAuth.Scopes))
		for _, scope := range s.OAuth.Scopes {
			if scope = strings.TrimSpace(scope); scope != "" {
				scopes = append(scopes, scope)
			}
		}
		oauth["scopes"] = scopes
	}
	if len(oauth) > 0 {
		raw["oauth"] = oauth
	}

	transient := map[string]any{}
	if s.Transient.StateTTL > 0 {
		transient["state_ttl_seconds"] = int(s.Transient.StateTTL / time.Second)
	}
	if s.Transient.CredentialsTTL > 0 {
		transient["credentials_ttl_seconds"] = int(s.Transient.CredentialsTTL / time.Second)
	}
	if len(transient) > 0 {
		raw["transient"] = transient
	}

	items := map[string]any{}
	putString(items, "api_base_url", s.Items.APIBaseURL)
	putString(items, "item_type", s.Items.ItemType)
	if s.Items.PageSize > 0 {
		items["page_size"] = s.Items.PageSize
	}
	if len(items) > 0 {
		raw["items"] = items
	}
	return raw, nil
}

func putString(target map[string]any, key string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		target[key] = value
	}
}
