// Package httptransport is the thin HTTP layer over the protocol engine. It
// parses and authenticates requests, delegates to the domain services, and
// serializes their results; no protocol decisions are made here.
package httptransport

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"assent/internal/audit"
	"assent/internal/authorize"
	"assent/internal/client"
	"assent/internal/deviceflow"
	"assent/internal/introspection"
	"assent/internal/platform/metrics"
	"assent/internal/revocation"
	"assent/internal/token"
	dErrors "assent/pkg/domain-errors"
)

// Handler holds the protocol services behind the public endpoints.
type Handler struct {
	clients      *client.Validator
	authorizer   *authorize.Validator
	interactions *authorize.InteractionGenerator
	authResponse *authorize.ResponseGenerator
	tokens       *token.Validator
	tokenGen     *token.ResponseGenerator
	devices      *deviceflow.ResponseGenerator
	introspector *introspection.Generator
	revoker      *revocation.Generator

	subjects SubjectResolver
	auditor  audit.Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type HandlerOption func(*Handler)

func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithSubjectResolver overrides how the authorize endpoint identifies the
// end user. The default resolves a bearer token; hosting applications with
// their own session mechanism plug in here.
func WithSubjectResolver(subjects SubjectResolver) HandlerOption {
	return func(h *Handler) {
		if subjects != nil {
			h.subjects = subjects
		}
	}
}

func WithAuditor(auditor audit.Publisher) HandlerOption {
	return func(h *Handler) {
		if auditor != nil {
			h.auditor = auditor
		}
	}
}

func WithMetrics(m *metrics.Metrics) HandlerOption {
	return func(h *Handler) {
		h.metrics = m
	}
}

// Deps bundles the protocol services a Handler requires.
type Deps struct {
	Clients            *client.Validator
	AuthorizeValidator *authorize.Validator
	Interactions       *authorize.InteractionGenerator
	AuthorizeResponses *authorize.ResponseGenerator
	TokenValidator     *token.Validator
	TokenResponses     *token.ResponseGenerator
	DeviceResponses    *deviceflow.ResponseGenerator
	Introspector       *introspection.Generator
	Revoker            *revocation.Generator
}

func NewHandler(deps Deps, opts ...HandlerOption) *Handler {
	h := &Handler{
		clients:      deps.Clients,
		authorizer:   deps.AuthorizeValidator,
		interactions: deps.Interactions,
		authResponse: deps.AuthorizeResponses,
		tokens:       deps.TokenValidator,
		tokenGen:     deps.TokenResponses,
		devices:      deps.DeviceResponses,
		introspector: deps.Introspector,
		revoker:      deps.Revoker,
		subjects:     anonymousSubjects{},
		auditor:      audit.NewMemory(),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) publishAudit(r *http.Request, event audit.Event) {
	if err := h.auditor.Publish(r.Context(), event); err != nil {
		h.logger.Error("audit publish failed", "action", event.Action, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeTokenStyleJSON adds the cache suppression headers RFC 6749 requires on
// token responses.
func writeTokenStyleJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, status, body)
}

// writeInfrastructureError maps a non-protocol failure to a JSON error body.
func (h *Handler) writeInfrastructureError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("request failed", "path", r.URL.Path, "error", err)

	status := http.StatusInternalServerError
	if dErrors.CodeOf(err) == dErrors.CodeUnavailable {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": "server_error"})
}
