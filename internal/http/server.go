package http

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"expenses/internal/log"
	"expenses/internal/middleware/ratelimit"
	"expenses/internal/middleware/security"
	"expenses/internal/middleware/trace"
	"expenses/internal/store"
)

type Server struct {
	http.Server
	store       *store.Store
	logger      *log.Logger
	events      *Broadcaster
	rateLimiter *ratelimit.Limiter
	unsubscribe func()

	shutdownOnce sync.Once
}

// Options tunes the server; zero values use defaults.
type Options struct {
	// RequestsPerMinute caps mutating requests per client.
	RequestsPerMinute int
}

// NewServer configures routes, returning a ready-to-run http.Server. The
// server subscribes to st for the event stream until Shutdown.
func NewServer(addr string, st *store.Store, logger *log.Logger, opts Options) *Server {
	mux := http.NewServeMux()
	logger = logger.WithComponent(log.ComponentHTTP)

	rlCfg := ratelimit.DefaultConfig()
	if opts.RequestsPerMinute > 0 {
		rlCfg.RequestsPerMinute = opts.RequestsPerMinute
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 16, // 64KB
		},
		store:       st,
		logger:      logger,
		events:      NewBroadcaster(logger),
		rateLimiter: ratelimit.NewLimiter(rlCfg),
	}
	s.unsubscribe = st.Subscribe(s.events)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /expenses", s.handleListExpenses)
	mux.HandleFunc("POST /expenses", s.handleCreateExpense)
	mux.HandleFunc("POST /expenses/delete", s.handleDeleteExpenses)
	mux.HandleFunc("DELETE /expenses", s.handleDeleteExpenses)
	mux.Handle("GET /expenses/events", s.events)

	clientIP := security.NewClientIP()
	tracer := trace.NewMiddleware(clientIP.Extract)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	var h http.Handler = mux
	h = s.recoverPanics(h)
	h = s.rateLimiter.Middleware(clientIP.Extract, http.MethodPost, http.MethodDelete)(h)
	h = log.RequestIDMiddleware(func(r *http.Request) string { return trace.GetRequestID(r.Context()) })(h)
	h = tracer.Middleware(h)
	h = headers.Middleware(h)
	h = log.Middleware(logger)(h)
	s.Handler = h

	return s
}

// Shutdown stops the event stream, the rate limiter and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.unsubscribe()
		s.events.Close()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Events exposes the stream broadcaster.
func (s *Server) Events() *Broadcaster {
	return s.events
}

func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				log.FromContext(r.Context()).ErrorContext(r.Context(), "Handler panic",
					log.FieldError, fmt.Sprint(v),
					"stack", string(debug.Stack()))
				InternalServerError("internal error").Write(w)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]any{
		"status":    "ready",
		"store_key": s.store.Key(),
		"count":     s.store.Len(),
		"streams":   s.events.Clients(),
	}).Write(w)
}
