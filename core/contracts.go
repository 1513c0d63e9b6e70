package core

import (
	"context"
	"net/http"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// TransientStore is a key/value store with per-entry expiry. Get reports
// false for absent and expired keys alike.
type TransientStore interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
}

// TransientTaker is implemented by stores that can read and delete a key in
// one atomic step.
type TransientTaker interface {
	Take(ctx context.Context, key string) ([]byte, bool, error)
}

type TransientEntryReader interface {
	Lookup(ctx context.Context, key string) (TransientEntry, bool, error)
}

type TransientPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

type Provider interface {
	ID() string
	AuthorizationURL(ctx context.Context, state string) (string, error)
	ExchangeCode(ctx context.Context, code string) ([]byte, error)
	ListItems(ctx context.Context, credentials Credentials) (ItemPage, error)
}

type TransportRequest struct {
	Method   string
	URL      string
	Headers  map[string]string
	Query    map[string]string
	Body     []byte
	Metadata map[string]any
	Timeout  time.Duration
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type ConnectorService interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (AuthorizeResponse, error)
	HandleCallback(ctx context.Context, req CallbackRequest) (CallbackCompletion, error)
	GetCredentials(ctx context.Context, id IdentityRef) (Credentials, error)
	ListItems(ctx context.Context, credentials any) ([]IntegrationItem, error)
	Status(ctx context.Context, id IdentityRef) (AuthorizationStatus, error)
}
