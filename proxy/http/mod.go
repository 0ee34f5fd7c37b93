// Package http implements the HTTP endpoint of a node.
//
// Every request is tagged with a request identifier, read from the
// X-Request-Id header or generated, that is returned in the response and
// written in the logs.
package http

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"go.dedis.ch/community"
	"golang.org/x/xerrors"
)

// HeaderRequestID is the header carrying the identifier of a request.
const HeaderRequestID = "X-Request-Id"

const shutdownTimeout = 10 * time.Second

type key int

const (
	requestIDKey key = 0
)

// HTTP is the HTTP server of a node.
//
// - implements proxy.Proxy
type HTTP struct {
	sync.Mutex

	mux        *http.ServeMux
	server     *http.Server
	logger     zerolog.Logger
	listenAddr string
	ln         net.Listener
	quit       chan struct{}
}

// NewHTTP creates a new server that will listen on the address. An empty
// address or a port zero selects a random port.
func NewHTTP(listenAddr string) *HTTP {
	logger := community.Logger.With().Str("role", "http proxy").Logger()

	mux := http.NewServeMux()

	return &HTTP{
		mux: mux,
		server: &http.Server{
			Handler:           tracing(nextRequestID)(logging(logger)(mux)),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger:     logger,
		listenAddr: listenAddr,
		quit:       make(chan struct{}, 1),
	}
}

// Listen implements proxy.Proxy. It panics if the address cannot be bound.
func (h *HTTP) Listen() {
	ln, err := net.Listen("tcp", h.listenAddr)
	if err != nil {
		h.logger.Error().Err(err).Msgf("failed to create conn '%s'", h.listenAddr)
		panic(xerrors.Errorf("failed to create conn '%s': %v", h.listenAddr, err))
	}

	h.Lock()
	h.ln = ln
	h.Unlock()

	done := make(chan struct{})

	go func() {
		defer close(done)

		<-h.quit

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		h.server.SetKeepAlivesEnabled(false)

		err := h.server.Shutdown(ctx)
		if err != nil {
			h.logger.Err(err).Msg("failed to shutdown the server gracefully")
		}
	}()

	h.logger.Info().Str("addr", ln.Addr().String()).Msg("server is ready to handle requests")

	err = h.server.Serve(ln)
	if err != nil && err != http.ErrServerClosed {
		h.logger.Err(err).Msg("server stopped unexpectedly")
	}

	<-done

	h.logger.Info().Msg("server stopped")
}

// Stop implements proxy.Proxy. It can be called multiple times.
func (h *HTTP) Stop() {
	select {
	case h.quit <- struct{}{}:
	default:
	}
}

// GetAddr implements proxy.Proxy.
func (h *HTTP) GetAddr() net.Addr {
	h.Lock()
	defer h.Unlock()

	if h.ln == nil {
		return nil
	}

	return h.ln.Addr()
}

// RegisterHandler implements proxy.Proxy.
func (h *HTTP) RegisterHandler(path string, handler func(http.ResponseWriter, *http.Request)) {
	h.mux.HandleFunc(path, handler)
}

// RequestID returns the identifier of the request.
func RequestID(r *http.Request) string {
	id, ok := r.Context().Value(requestIDKey).(string)
	if !ok {
		return ""
	}

	return id
}

func nextRequestID() string {
	return xid.New().String()
}

// logging logs every request once it has been served.
func logging(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			defer func() {
				requestID := RequestID(r)
				if requestID == "" {
					requestID = "unknown"
				}

				logger.Info().Str("requestID", requestID).
					Str("method", r.Method).
					Str("url", r.URL.Path).
					Str("remoteAddr", r.RemoteAddr).
					Str("agent", r.UserAgent()).
					Dur("elapsed", time.Since(start)).
					Msg("request served")
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// tracing attaches the request identifier to the context and the response.
func tracing(nextRequestID func() string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(HeaderRequestID)
			if requestID == "" {
				requestID = nextRequestID()
			}

			ctx := context.WithValue(r.Context(), requestIDKey, requestID)
			w.Header().Set(HeaderRequestID, requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
