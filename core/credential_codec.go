package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Credentials is the token exchange response. Raw keeps the provider payload
// verbatim; the typed fields are read from it.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
	Scope        string
	Raw          json.RawMessage
}

func (c Credentials) MarshalJSON() ([]byte, error) {
	if len(bytes.TrimSpace(c.Raw)) > 0 {
		return append([]byte(nil), c.Raw...), nil
	}
	payload := map[string]any{"access_token": c.AccessToken}
	if c.RefreshToken != "" {
		payload["refresh_token"] = c.RefreshToken
	}
	if c.TokenType != "" {
		payload["token_type"] = c.TokenType
	}
	if c.ExpiresIn > 0 {
		payload["expires_in"] = c.ExpiresIn
	}
	if c.Scope != "" {
		payload["scope"] = c.Scope
	}
	return json.Marshal(payload)
}

func (c *Credentials) UnmarshalJSON(data []byte) error {
	parsed, err := ParseCredentials(data)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCredentials decodes a stored or client supplied credential blob.
func ParseCredentials(payload []byte) (Credentials, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return Credentials{}, CredentialsMissingError("credentials are required")
	}
	decoded := map[string]any{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return Credentials{}, fmt.Errorf("core: credential payload is malformed: %w", err)
	}
	creds := credentialsFromMap(decoded)
	creds.Raw = append(json.RawMessage(nil), payload...)
	return creds, nil
}

// DecodeCredentials accepts credentials as a serialized blob or in already
// structured form.
func DecodeCredentials(input any) (Credentials, error) {
	switch value := input.(type) {
	case nil:
		return Credentials{}, CredentialsMissingError("credentials are required")
	case Credentials:
		return value, nil
	case *Credentials:
		if value == nil {
			return Credentials{}, CredentialsMissingError("credentials are required")
		}
		return *value, nil
	case []byte:
		return ParseCredentials(value)
	case json.RawMessage:
		return ParseCredentials(value)
	case string:
		return ParseCredentials([]byte(value))
	case map[string]any:
		encoded, err := json.Marshal(value)
		if err != nil {
			return Credentials{}, fmt.Errorf("core: encode credential map: %w", err)
		}
		creds := credentialsFromMap(value)
		creds.Raw = encoded
		return creds, nil
	default:
		return Credentials{}, fmt.Errorf("core: unsupported credential payload type %T", input)
	}
}

func credentialsFromMap(values map[string]any) Credentials {
	return Credentials{
		AccessToken:  readString(values, "access_token"),
		RefreshToken: readString(values, "refresh_token"),
		TokenType:    readString(values, "token_type"),
		ExpiresIn:    readInt64(values, "expires_in"),
		Scope:        readString(values, "scope"),
	}
}

func readString(values map[string]any, key string) string {
	raw, ok := values[key]
	if !ok || raw == nil {
		return ""
	}
	switch typed := raw.(type) {
	case string:
		return strings.TrimSpace(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(typed))
	}
}

func readInt64(values map[string]any, key string) int64 {
	raw, ok := values[key]
	if !ok || raw == nil {
		return 0
	}
	switch typed := raw.(type) {
	case float64:
		return int64(typed)
	case int64:
		return typed
	case int:
		return int64(typed)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
