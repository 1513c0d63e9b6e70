// Package httpapi exposes the connector over HTTP with the routes the
// integrations frontend calls.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/goliatone/go-crm-connect/core"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

const maxFormBytes = 1 << 20

// Connector is the service surface the handler drives.
type Connector interface {
	ProviderID() string
	Authorize(ctx context.Context, req core.AuthorizeRequest) (core.AuthorizeResponse, error)
	HandleCallback(ctx context.Context, req core.CallbackRequest) (core.CallbackCompletion, error)
	GetCredentials(ctx context.Context, id core.IdentityRef) (core.Credentials, error)
	ListItems(ctx context.Context, credentials any) ([]core.IntegrationItem, error)
	Status(ctx context.Context, id core.IdentityRef) (core.AuthorizationStatus, error)
}

type Handler struct {
	connector Connector
	logger    glog.Logger
	mux       *http.ServeMux
}

type Option func(*Handler)

func WithLogger(logger glog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func New(connector Connector, opts ...Option) *Handler {
	h := &Handler{connector: connector, logger: glog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.mux = http.NewServeMux()
	h.RegisterRoutes(h.mux)
	return h
}

// RegisterRoutes mounts the integration routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("POST /integrations/{provider}/authorize", h.handleAuthorize)
	mux.HandleFunc("GET /integrations/{provider}/oauth2callback", h.handleCallback)
	mux.HandleFunc("POST /integrations/{provider}/credentials", h.handleCredentials)
	mux.HandleFunc("POST /integrations/{provider}/load", h.handleLoad)
	mux.HandleFunc("GET /integrations/{provider}/status", h.handleStatus)
	mux.HandleFunc("GET /up", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	if !h.matchProvider(w, r) {
		return
	}
	if err := parseForm(w, r); err != nil {
		h.writeError(w, r, err)
		return
	}
	out, err := h.connector.Authorize(r.Context(), core.AuthorizeRequest{
		UserID: r.PostForm.Get("user_id"),
		OrgID:  r.PostForm.Get("org_id"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out.URL)
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	if !h.matchProvider(w, r) {
		return
	}
	query := r.URL.Query()
	out, err := h.connector.HandleCallback(r.Context(), core.CallbackRequest{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out.HTML))
}

func (h *Handler) handleCredentials(w http.ResponseWriter, r *http.Request) {
	if !h.matchProvider(w, r) {
		return
	}
	if err := parseForm(w, r); err != nil {
		h.writeError(w, r, err)
		return
	}
	creds, err := h.connector.GetCredentials(r.Context(), core.IdentityRef{
		UserID: r.PostForm.Get("user_id"),
		OrgID:  r.PostForm.Get("org_id"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, creds)
}

func (h *Handler) handleLoad(w http.ResponseWriter, r *http.Request) {
	if !h.matchProvider(w, r) {
		return
	}
	if err := parseForm(w, r); err != nil {
		h.writeError(w, r, err)
		return
	}
	var credentials any
	if raw := r.PostForm.Get("credentials"); strings.TrimSpace(raw) != "" {
		credentials = raw
	}
	items, err := h.connector.ListItems(r.Context(), credentials)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []core.IntegrationItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !h.matchProvider(w, r) {
		return
	}
	query := r.URL.Query()
	status, err := h.connector.Status(r.Context(), core.IdentityRef{
		UserID: query.Get("user_id"),
		OrgID:  query.Get("org_id"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) matchProvider(w http.ResponseWriter, r *http.Request) bool {
	if h == nil || h.connector == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{
			Detail:   "connector is not configured",
			TextCode: core.ServiceErrorInternal,
		})
		return false
	}
	requested := strings.ToLower(strings.TrimSpace(r.PathValue("provider")))
	if requested != strings.ToLower(h.connector.ProviderID()) {
		writeJSON(w, http.StatusNotFound, errorBody{
			Detail:   "unknown integration " + requested,
			TextCode: core.ServiceErrorNotFound,
		})
		return false
	}
	return true
}

func parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		return core.BadInputError("invalid form body: " + err.Error())
	}
	return nil
}

type errorBody struct {
	Detail   string `json:"detail"`
	TextCode string `json:"text_code,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	body := errorBody{Detail: err.Error(), TextCode: core.ServiceErrorInternal}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		if rich.Code > 0 {
			status = rich.Code
		}
		if rich.TextCode != "" {
			body.TextCode = rich.TextCode
		}
		if rich.Message != "" {
			body.Detail = rich.Message
		}
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err.Error())
	} else {
		h.logger.Warn("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "text_code", body.TextCode)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}
