package httptransport

import (
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"assent/internal/authorize"
	"assent/internal/oidc"
)

// formPostDocument is the auto-submitting page for response_mode=form_post.
// OIDC Form Post Response Mode requires the parameters to travel as a POST
// to the redirect URI rather than in the URL.
var formPostDocument = template.Must(template.New("form_post").Parse(`<!DOCTYPE html>
<html>
<head><title>Submit this form</title></head>
<body onload="document.forms[0].submit()">
<form method="post" action="{{.Action}}">
{{- range $name, $values := .Params}}{{range $values}}
<input type="hidden" name="{{$name}}" value="{{.}}"/>
{{- end}}{{end}}
<noscript><button type="submit">Continue</button></noscript>
</form>
</body>
</html>
`))

// writeAuthorizeResponse serializes a successful authorize response in the
// negotiated response mode.
func writeAuthorizeResponse(w http.ResponseWriter, r *http.Request, resp *authorize.Response) error {
	params := url.Values{}
	if resp.Code != "" {
		params.Set("code", resp.Code)
	}
	if resp.AccessToken != "" {
		params.Set("access_token", resp.AccessToken)
		params.Set("token_type", resp.TokenType)
		params.Set("expires_in", strconv.FormatInt(resp.ExpiresIn, 10))
	}
	if resp.IdentityToken != "" {
		params.Set("id_token", resp.IdentityToken)
	}
	if resp.SessionState != "" {
		params.Set("session_state", resp.SessionState)
	}
	if state := resp.State(); state != "" {
		params.Set("state", state)
	}
	if len(resp.Request.GrantedScopes) > 0 {
		params.Set("scope", strings.Join(resp.Request.GrantedScopes, " "))
	}

	return writeRedirect(w, r, resp.RedirectURI(), resp.Request.ResponseMode, params)
}

// writeAuthorizeError serializes a redirectable protocol error back to the
// client's redirect URI.
func writeAuthorizeError(w http.ResponseWriter, r *http.Request, protoErr *authorize.Error) error {
	params := url.Values{}
	params.Set("error", protoErr.Code)
	if protoErr.Description != "" {
		params.Set("error_description", protoErr.Description)
	}
	if protoErr.State != "" {
		params.Set("state", protoErr.State)
	}
	return writeRedirect(w, r, protoErr.RedirectURI, protoErr.ResponseMode, params)
}

func writeRedirect(w http.ResponseWriter, r *http.Request, redirectURI string, mode oidc.ResponseMode, params url.Values) error {
	switch mode {
	case oidc.ResponseModeQuery:
		target, err := appendQuery(redirectURI, params)
		if err != nil {
			return err
		}
		redirectNoCache(w, r, target)
	case oidc.ResponseModeFragment:
		redirectNoCache(w, r, redirectURI+"#"+params.Encode())
	case oidc.ResponseModeFormPost:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		return formPostDocument.Execute(w, struct {
			Action string
			Params url.Values
		}{Action: redirectURI, Params: params})
	default:
		return fmt.Errorf("unsupported response mode %q", mode)
	}
	return nil
}

// appendQuery merges the response parameters into the redirect URI's existing
// query string, as registered redirect URIs may already carry one.
func appendQuery(redirectURI string, params url.Values) (string, error) {
	target, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("parse redirect uri: %w", err)
	}
	query := target.Query()
	for name, values := range params {
		for _, value := range values {
			query.Add(name, value)
		}
	}
	target.RawQuery = query.Encode()
	return target.String(), nil
}

func redirectNoCache(w http.ResponseWriter, r *http.Request, target string) {
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, target, http.StatusFound)
}
