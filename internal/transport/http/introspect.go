package httptransport

import (
	"net/http"

	"assent/internal/audit"
	"assent/internal/introspection"
)

// handleIntrospect answers RFC 7662 queries. The caller authenticates as a
// registered client whose id names the API scope it guards; tokens outside
// that scope introspect as inactive.
func (h *Handler) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeTokenStyleJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	validated, ok := h.authenticateClient(w, r)
	if !ok {
		return
	}

	tokenHandle := r.PostFormValue("token")
	if tokenHandle == "" {
		writeTokenStyleJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	resp, err := h.introspector.Process(r.Context(), tokenHandle, introspection.Caller{ScopeName: validated.Client.ClientID})
	if err != nil {
		h.writeInfrastructureError(w, r, err)
		return
	}

	if h.metrics != nil {
		result := "inactive"
		if active, ok := resp["active"].(bool); ok && active {
			result = "active"
		}
		h.metrics.Introspections.WithLabelValues(result).Inc()
	}
	writeTokenStyleJSON(w, http.StatusOK, resp)
}

// handleRevocation implements RFC 7009. Unknown tokens still produce 200 so
// the endpoint is not a validity oracle.
func (h *Handler) handleRevocation(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeTokenStyleJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	validated, ok := h.authenticateClient(w, r)
	if !ok {
		return
	}

	protoErr, err := h.revoker.Process(r.Context(), validated.Client, r.PostFormValue("token"), r.PostFormValue("token_type_hint"))
	if err != nil {
		h.writeInfrastructureError(w, r, err)
		return
	}
	if protoErr != nil {
		body := map[string]string{"error": protoErr.Code}
		if protoErr.Description != "" {
			body["error_description"] = protoErr.Description
		}
		writeTokenStyleJSON(w, http.StatusBadRequest, body)
		return
	}

	if h.metrics != nil {
		h.metrics.Revocations.Inc()
	}
	h.publishAudit(r, audit.NewEvent(audit.CategoryToken, "token.revoked", validated.Client.ClientID, "", "success"))
	w.WriteHeader(http.StatusOK)
}
