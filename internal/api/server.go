package api

import (
	"errors"
	"net/http"

	"github.com/Mutsuki-Y/faq-llm-playground/internal/chat"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/etl"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/log"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/session"
)

// ServerConfig contains the dependencies of the API server.
type ServerConfig struct {
	Logger     log.Logger
	Chat       *chat.Service  // Required
	Sessions   session.Store  // Required
	Pipeline   *etl.Pipeline  // Optional: nil disables POST /api/ingest and /api/upload
	FAQDir     string         // Destination for uploaded workbooks
	ImageDir   string         // Destination for uploaded images
	RateRPS    float64        // Tokens per second per IP (0 = default 1)
	RateBurst  int            // Burst size per IP (0 = default 60)
	TrustProxy bool           // Trust X-Real-IP/X-Forwarded-For headers
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates the API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Chat == nil {
		return nil, errors.New("chat service is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	ch := &chatHandler{service: cfg.Chat, logger: logger}
	sh := &sessionHandler{store: cfg.Sessions, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", ch.ask)
	mux.HandleFunc("POST /api/session", sh.create)
	mux.HandleFunc("GET /api/sessions", sh.list)
	mux.HandleFunc("GET /api/sessions/{id}/history", sh.history)
	mux.HandleFunc("DELETE /api/sessions/{id}", sh.remove)

	if cfg.Pipeline != nil {
		ih := &ingestHandler{pipeline: cfg.Pipeline, logger: logger}
		mux.HandleFunc("POST /api/ingest", ih.run)

		uh := &uploadHandler{
			pipeline: cfg.Pipeline,
			faqDir:   cfg.FAQDir,
			imgDir:   cfg.ImageDir,
			logger:   logger,
		}
		mux.HandleFunc("POST /api/upload", uh.run)
	}

	rps := cfg.RateRPS
	if rps <= 0 {
		rps = 1.0
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(rps, burst)

	// Middleware stack, outermost first:
	//   Recovery → RequestID → Logging → RateLimit → Routes
	// RequestID sits before Logging so request_id is available in log
	// attributes.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack so monitoring never gets
	// rate limited.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
