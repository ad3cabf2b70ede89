package httptransport

import (
	"net/http"
	"net/url"

	"assent/internal/audit"
	"assent/internal/authorize"
)

// handleAuthorize runs the full authorization request pipeline: validation,
// interaction decision, response generation. Login and consent interactions
// are surfaced as JSON states for the hosting application's UI to act on.
func (h *Handler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	params, ok := h.authorizeParams(w, r)
	if !ok {
		return
	}

	subject, sessionID := h.subjects.Resolve(r)
	req := authorize.Request{
		Parameters: params,
		Subject:    subject,
		SessionID:  sessionID,
	}

	validated, protoErr, err := h.authorizer.Validate(r.Context(), req)
	if err != nil {
		h.writeInfrastructureError(w, r, err)
		return
	}
	if protoErr != nil {
		h.countAuthorize("rejected")
		h.writeAuthorizeProtocolError(w, r, protoErr)
		return
	}

	interaction, err := h.interactions.ProcessInteraction(r.Context(), validated)
	if err != nil {
		h.writeInfrastructureError(w, r, err)
		return
	}
	switch {
	case interaction.IsError():
		h.countAuthorize("rejected")
		h.writeAuthorizeProtocolError(w, r, &authorize.Error{
			Code:         interaction.ErrorCode,
			Description:  interaction.ErrorDescription,
			CanRedirect:  true,
			RedirectURI:  validated.RedirectURI,
			ResponseMode: validated.ResponseMode,
			State:        validated.State,
		})
		return
	case interaction.IsLogin:
		h.countAuthorize("login_required")
		writeJSON(w, http.StatusForbidden, map[string]string{"status": "login_required"})
		return
	case interaction.IsConsent:
		h.countAuthorize("consent_required")
		writeJSON(w, http.StatusForbidden, map[string]string{"status": "consent_required"})
		return
	}

	resp, err := h.authResponse.CreateResponse(r.Context(), validated)
	if err != nil {
		h.writeInfrastructureError(w, r, err)
		return
	}

	h.countAuthorize("success")
	subjectID, _ := validated.Subject.SubjectID()
	h.publishAudit(r, audit.NewEvent(audit.CategoryGrant, "authorization.granted", validated.Client.ClientID, subjectID, "success"))

	if err := writeAuthorizeResponse(w, r, resp); err != nil {
		h.writeInfrastructureError(w, r, err)
	}
}

// authorizeParams accepts GET query parameters or a POST form body.
func (h *Handler) authorizeParams(w http.ResponseWriter, r *http.Request) (url.Values, bool) {
	if r.Method == http.MethodGet {
		return r.URL.Query(), true
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return nil, false
	}
	return r.PostForm, true
}

// writeAuthorizeProtocolError redirects when the error may travel to the
// client, and renders a JSON error page when it may not (unknown client or
// unvalidated redirect URI must never receive protocol data).
func (h *Handler) writeAuthorizeProtocolError(w http.ResponseWriter, r *http.Request, protoErr *authorize.Error) {
	if !protoErr.CanRedirect {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":             protoErr.Code,
			"error_description": protoErr.Description,
		})
		return
	}
	if err := writeAuthorizeError(w, r, protoErr); err != nil {
		h.writeInfrastructureError(w, r, err)
	}
}

func (h *Handler) countAuthorize(outcome string) {
	if h.metrics != nil {
		h.metrics.AuthorizeRequests.WithLabelValues(outcome).Inc()
	}
}
