package httpserver

import (
	"net/http"
	"time"
)

// New builds the API server. Bulk payloads can be large and slow to stream,
// so body reads and writes get generous ceilings while the header read stays
// tight enough to shed idle connections.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
	}
}
