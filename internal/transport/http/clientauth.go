package httptransport

import (
	"errors"
	"net/http"
	"net/url"

	"assent/internal/client"
)

// parseClientCredentials lifts the client identification out of the request.
// HTTP Basic takes precedence over form-body credentials; both use the
// shared-secret type. Per RFC 6749 §2.3.1 Basic components are form-encoded
// before being placed in the header, so they are decoded here.
func parseClientCredentials(r *http.Request) client.Credentials {
	if id, secret, ok := r.BasicAuth(); ok {
		if decodedID, err := url.QueryUnescape(id); err == nil {
			id = decodedID
		}
		if decodedSecret, err := url.QueryUnescape(secret); err == nil {
			secret = decodedSecret
		}
		return client.Credentials{
			ClientID: id,
			Secret:   client.ParsedSecret{Type: client.SecretSharedBcrypt, Credential: secret},
		}
	}

	return client.Credentials{
		ClientID: r.PostFormValue("client_id"),
		Secret: client.ParsedSecret{
			Type:       client.SecretSharedBcrypt,
			Credential: r.PostFormValue("client_secret"),
		},
	}
}

// authenticateClient validates the presented credentials. On failure it
// writes the invalid_client response and returns false.
func (h *Handler) authenticateClient(w http.ResponseWriter, r *http.Request) (client.ValidatedClient, bool) {
	validated, err := h.clients.Validate(r.Context(), parseClientCredentials(r))
	if err == nil {
		return validated, true
	}

	if errors.Is(err, client.ErrInvalidClient) {
		w.Header().Set("WWW-Authenticate", `Basic realm="assent"`)
		writeTokenStyleJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return client.ValidatedClient{}, false
	}

	h.writeInfrastructureError(w, r, err)
	return client.ValidatedClient{}, false
}
