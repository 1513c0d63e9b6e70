package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-crm-connect/core"
	"github.com/goliatone/go-crm-connect/transport"
)

const (
	defaultTokenRequestTimeout       = 30 * time.Second
	maxTokenResponseBodyBytes  int64 = 1 << 20
)

type OAuth2Config struct {
	ID                  string
	AuthURL             string
	TokenURL            string
	ClientID            string
	ClientSecret        string
	ClientSecretInBody  bool
	RedirectURI         string
	DefaultScopes       []string
	TokenRequestTimeout time.Duration
	HTTPClient          core.HTTPDoer
}

// OAuth2Provider covers the authorization-code half of a provider: building
// the consent URL and exchanging the returned code.
type OAuth2Provider struct {
	cfg    OAuth2Config
	client *transport.Client
}

// tokenError is the error shape returned by RFC 6749 token endpoints and by
// HubSpot's own API errors.
type tokenError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"message"`
}

func NewOAuth2Provider(cfg OAuth2Config) (*OAuth2Provider, error) {
	cfg.ID = strings.ToLower(strings.TrimSpace(cfg.ID))
	cfg.AuthURL = strings.TrimSpace(cfg.AuthURL)
	cfg.TokenURL = strings.TrimSpace(cfg.TokenURL)
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	cfg.RedirectURI = strings.TrimSpace(cfg.RedirectURI)

	required := []struct{ name, value string }{
		{"provider id", cfg.ID},
		{"auth url", cfg.AuthURL},
		{"token url", cfg.TokenURL},
		{"client id", cfg.ClientID},
		{"redirect uri", cfg.RedirectURI},
	}
	for _, field := range required {
		if field.value == "" {
			return nil, fmt.Errorf("providers: %s is required for provider %q", field.name, cfg.ID)
		}
	}

	cfg.DefaultScopes = normalizeScopes(cfg.DefaultScopes)
	if cfg.TokenRequestTimeout <= 0 {
		cfg.TokenRequestTimeout = defaultTokenRequestTimeout
	}
	doer := cfg.HTTPClient
	if doer == nil {
		doer = &http.Client{Timeout: cfg.TokenRequestTimeout}
	}

	return &OAuth2Provider{
		cfg:    cfg,
		client: transport.NewClient(doer, transport.WithBodyLimit(maxTokenResponseBodyBytes)),
	}, nil
}

func (p *OAuth2Provider) ID() string {
	if p == nil {
		return ""
	}
	return p.cfg.ID
}

// AuthorizationURL returns the consent URL with state echoed verbatim.
func (p *OAuth2Provider) AuthorizationURL(_ context.Context, state string) (string, error) {
	if p == nil {
		return "", fmt.Errorf("providers: oauth2 provider is nil")
	}
	if strings.TrimSpace(state) == "" {
		return "", fmt.Errorf("providers: oauth state is required")
	}

	values := url.Values{}
	values.Set("response_type", "code")
	values.Set("client_id", p.cfg.ClientID)
	values.Set("redirect_uri", p.cfg.RedirectURI)
	if len(p.cfg.DefaultScopes) > 0 {
		values.Set("scope", strings.Join(p.cfg.DefaultScopes, " "))
	}
	values.Set("state", state)

	separator := "?"
	if strings.Contains(p.cfg.AuthURL, "?") {
		separator = "&"
	}
	return p.cfg.AuthURL + separator + values.Encode(), nil
}

// ExchangeCode trades an authorization code for tokens. A JSON response is
// returned byte for byte; a form encoded one is converted to JSON.
func (p *OAuth2Provider) ExchangeCode(ctx context.Context, code string) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("providers: oauth2 provider is nil")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("providers: auth code is required")
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", p.cfg.RedirectURI)
	form.Set("client_id", p.cfg.ClientID)

	headers := map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
		"Accept":       "application/json",
	}
	if p.cfg.ClientSecret != "" {
		if p.cfg.ClientSecretInBody {
			form.Set("client_secret", p.cfg.ClientSecret)
		} else {
			headers["Authorization"] = "Basic " + base64.StdEncoding.EncodeToString(
				[]byte(p.cfg.ClientID+":"+p.cfg.ClientSecret),
			)
		}
	}

	res, err := p.client.Do(ctx, core.TransportRequest{
		Method:  http.MethodPost,
		URL:     p.cfg.TokenURL,
		Headers: headers,
		Body:    []byte(form.Encode()),
		Timeout: p.cfg.TokenRequestTimeout,
	})
	if err != nil {
		return nil, err
	}
	if err := transport.CheckStatus(res, describeTokenError); err != nil {
		return nil, err
	}

	body := res.Body
	if isFormEncoded(res.Headers["Content-Type"]) {
		if body, err = formToJSON(body); err != nil {
			return nil, core.ProviderError(http.StatusBadGateway, "decode token response: "+err.Error())
		}
	}
	if message := describeTokenError(body); message != "" {
		return nil, core.ProviderError(http.StatusBadRequest, "token endpoint error: "+message)
	}
	creds, err := core.ParseCredentials(body)
	if err != nil {
		return nil, core.ProviderError(http.StatusBadGateway, "decode token response: "+err.Error())
	}
	if strings.TrimSpace(creds.AccessToken) == "" {
		return nil, core.ProviderError(http.StatusBadGateway, "token endpoint response missing access token")
	}
	return body, nil
}

func describeTokenError(body []byte) string {
	var decoded tokenError
	if err := json.Unmarshal(body, &decoded); err != nil {
		return ""
	}
	for _, candidate := range []string{decoded.ErrorDescription, decoded.Message, decoded.Error} {
		if candidate = strings.TrimSpace(candidate); candidate != "" {
			return candidate
		}
	}
	return ""
}

func isFormEncoded(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/x-www-form-urlencoded" || mediaType == "text/plain"
}

func formToJSON(body []byte) ([]byte, error) {
	values, err := url.ParseQuery(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, err
	}
	payload := make(map[string]any, len(values))
	for key := range values {
		value := strings.TrimSpace(values.Get(key))
		if key == "expires_in" {
			if seconds, convErr := strconv.ParseInt(value, 10, 64); convErr == nil {
				payload[key] = seconds
				continue
			}
		}
		payload[key] = value
	}
	return json.Marshal(payload)
}

// normalizeScopes keeps provider scope casing, dropping blanks and
// duplicates.
func normalizeScopes(input []string) []string {
	values := make([]string, 0, len(input))
	seen := map[string]struct{}{}
	for _, value := range input {
		for _, part := range strings.Fields(strings.ReplaceAll(value, ",", " ")) {
			if _, ok := seen[part]; ok {
				continue
			}
			seen[part] = struct{}{}
			values = append(values, part)
		}
	}
	return values
}
