package httpserver

import (
	"net/http"
	"time"
)

// New builds the HTTP server hosting the protocol endpoints. Header and idle
// timeouts are short: clients of the token and authorize endpoints make quick
// form posts, not long-lived connections.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       time.Minute,
	}
}
