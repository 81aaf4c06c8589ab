// Package httpserver builds the process HTTP listener.
package httpserver

import (
	"net/http"
	"time"

	"treasury/internal/platform/config"
)

// writeSlack keeps the write deadline behind the request timeout so the
// timeout middleware can still answer.
const writeSlack = 5 * time.Second

// New builds a server for cfg.Addr whose deadlines follow cfg.RequestTimeout.
func New(cfg config.Server, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.RequestTimeout,
		WriteTimeout:      cfg.RequestTimeout + writeSlack,
		IdleTimeout:       60 * time.Second,
	}
}
