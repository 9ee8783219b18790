// Package httpserver constructs the API server. Per-request deadlines live
// in the router's timeout middleware; the limits here bound what a client
// can do before a request even reaches a handler.
package httpserver

import (
	"net/http"
	"time"
)

// New returns a server for addr. The header read timeout stops a stalled
// POS client from pinning a connection open mid-handshake; idle keep-alive
// connections are reclaimed after a minute.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       time.Minute,
	}
}
