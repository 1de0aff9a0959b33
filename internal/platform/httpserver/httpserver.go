package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with sane defaults for this project. Write
// timeout leaves room for a render that runs to its own timeout.
func New(addr string, handler http.Handler, renderTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      renderTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
