package core

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

// StaticRawConfigLoader serves a fixed map, mostly for tests and embedding.
type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if l.Values == nil {
		return map[string]any{}, nil
	}
	return maps.Clone(l.Values), nil
}

// CfgxConfigProvider decodes a raw map into Config on top of the defaults.
type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	var loader RawConfigLoader = StaticRawConfigLoader{}
	if p.Loader != nil {
		loader = p.Loader
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	return buildConfig(raw, defaults)
}

func buildConfig(raw map[string]any, defaults Config) (Config, error) {
	return cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
}

// GoOptionsResolver merges defaults, loaded config and runtime overrides,
// in that order of precedence, with go-options.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(opts.NewScope("defaults", 0), defaults.layer(true), opts.WithSnapshotID[map[string]any]("defaults")),
		opts.NewLayer(opts.NewScope("config", 10), loaded.layer(false), opts.WithSnapshotID[map[string]any]("config")),
		opts.NewLayer(opts.NewScope("runtime", 20), runtime.layer(false), opts.WithSnapshotID[map[string]any]("runtime")),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	return buildConfig(merged.Value, defaults)
}

// layer flattens c into the nested map go-options merges. Unless full is
// set, empty values are left out so they do not shadow lower layers.
func (c Config) layer(full bool) map[string]any {
	keep := func(v any) bool {
		if full {
			return true
		}
		switch typed := v.(type) {
		case string:
			return strings.TrimSpace(typed) != ""
		case int:
			return typed != 0
		case []string:
			return len(typed) > 0
		}
		return v != nil
	}
	section := func(values map[string]any) map[string]any {
		out := map[string]any{}
		for key, value := range values {
			if keep(value) {
				out[key] = value
			}
		}
		return out
	}

	out := section(map[string]any{"service_name": c.ServiceName})
	groups := map[string]map[string]any{
		"oauth": section(map[string]any{
			"provider_id":   c.OAuth.ProviderID,
			"client_id":     c.OAuth.ClientID,
			"client_secret": c.OAuth.ClientSecret,
			"redirect_uri":  c.OAuth.RedirectURI,
			"auth_url":      c.OAuth.AuthURL,
			"token_url":     c.OAuth.TokenURL,
			"scopes":        append([]string(nil), c.OAuth.Scopes...),
		}),
		"transient": section(map[string]any{
			"state_ttl_seconds":       c.Transient.StateTTLSeconds,
			"credentials_ttl_seconds": c.Transient.CredentialsTTLSeconds,
		}),
		"items": section(map[string]any{
			"api_base_url": c.Items.APIBaseURL,
			"page_size":    c.Items.PageSize,
			"item_type":    c.Items.ItemType,
		}),
	}
	for name, values := range groups {
		if len(values) > 0 {
			out[name] = values
		}
	}
	return out
}
