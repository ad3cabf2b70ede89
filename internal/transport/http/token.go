package httptransport

import (
	"net/http"

	"assent/internal/audit"
	"assent/internal/oidc"
	"assent/internal/token"
)

// tokenSuccessBody is the RFC 6749 token response.
type tokenSuccessBody struct {
	AccessToken   string `json:"access_token"`
	TokenType     string `json:"token_type"`
	ExpiresIn     int64  `json:"expires_in"`
	RefreshToken  string `json:"refresh_token,omitempty"`
	IdentityToken string `json:"id_token,omitempty"`
	Scope         string `json:"scope,omitempty"`
}

func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeTokenStyleJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	validated, ok := h.authenticateClient(w, r)
	if !ok {
		return
	}
	grantType := r.PostFormValue("grant_type")

	req, protoErr, err := h.tokens.Validate(r.Context(), validated.Client, r.PostForm)
	if err != nil {
		h.writeInfrastructureError(w, r, err)
		return
	}
	if protoErr != nil {
		h.countToken(grantType, protoErr.Code)
		if protoErr.Code == oidc.ErrInvalidGrant {
			h.publishAudit(r, audit.NewEvent(audit.CategoryGrant, "grant.rejected", validated.Client.ClientID, "", "failure"))
		}
		h.writeTokenProtocolError(w, protoErr)
		return
	}

	result, err := h.tokenGen.Process(r.Context(), req)
	if err != nil {
		h.writeInfrastructureError(w, r, err)
		return
	}

	h.countToken(grantType, "success")
	subjectID, _ := req.Subject.SubjectID()
	h.publishAudit(r, audit.NewEvent(audit.CategoryToken, "token.issued", validated.Client.ClientID, subjectID, "success"))

	writeTokenStyleJSON(w, http.StatusOK, tokenSuccessBody{
		AccessToken:   result.AccessToken,
		TokenType:     result.TokenType,
		ExpiresIn:     result.ExpiresIn,
		RefreshToken:  result.RefreshToken,
		IdentityToken: result.IdentityToken,
		Scope:         result.Scope,
	})
}

func (h *Handler) writeTokenProtocolError(w http.ResponseWriter, protoErr *token.Error) {
	body := map[string]string{"error": protoErr.Code}
	if protoErr.Description != "" {
		body["error_description"] = protoErr.Description
	}
	writeTokenStyleJSON(w, http.StatusBadRequest, body)
}

func (h *Handler) countToken(grantType, outcome string) {
	if h.metrics != nil {
		h.metrics.TokenRequests.WithLabelValues(grantType, outcome).Inc()
	}
}

// handleDeviceAuthorization starts the device flow: the client posts its
// credentials and requested scope, receiving the code pair to display.
func (h *Handler) handleDeviceAuthorization(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeTokenStyleJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	validated, ok := h.authenticateClient(w, r)
	if !ok {
		return
	}

	resp, protoErr, err := h.devices.CreateResponse(r.Context(), validated.Client, r.PostFormValue("scope"), r.UserAgent())
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
		h.metrics.DeviceCodesIssued.Inc()
	}
	writeTokenStyleJSON(w, http.StatusOK, resp)
}
