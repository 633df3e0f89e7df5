package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/longregen/counsel/internal/adapters/http/handlers"
	"github.com/longregen/counsel/internal/adapters/http/middleware"
	"github.com/longregen/counsel/internal/config"
)

type Server struct {
	config        *config.Config
	router        *chi.Mux
	httpServer    *http.Server
	authenticator middleware.Authenticator
	health        *handlers.HealthHandler
	tokens        *handlers.TokenHandler
	gateway       *handlers.Gateway
	conversations *handlers.ConversationsHandler
	cases         *handlers.CasesHandler
}

func NewServer(
	cfg *config.Config,
	authenticator middleware.Authenticator,
	health *handlers.HealthHandler,
	tokens *handlers.TokenHandler,
	gateway *handlers.Gateway,
	conversations *handlers.ConversationsHandler,
	cases *handlers.CasesHandler,
) *Server {
	s := &Server{
		config:        cfg,
		authenticator: authenticator,
		health:        health,
		tokens:        tokens,
		gateway:       gateway,
		conversations: conversations,
		cases:         cases,
	}

	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recovery)
	r.Use(middleware.CORS(s.config.Server.CORSOrigins))
	r.Use(middleware.Metrics)

	r.Get("/health", s.health.Handle)
	r.Get("/health/ready", s.health.HandleDetailed)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/anonymous", s.tokens.Anonymous)

		// The gateway authenticates on its own so failures reach the client
		// as an error frame.
		r.Get("/ws", s.gateway.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(s.authenticator))

			r.Get("/conversations", s.conversations.List)
			r.Get("/conversations/{id}/messages", s.conversations.Messages)

			r.Get("/cases", s.cases.List)
			r.Post("/cases/{id}/claim", s.cases.Claim)
			r.Post("/cases/{id}/close", s.cases.Close)
			r.Post("/cases/{id}/reopen", s.cases.Reopen)
		})
	})

	s.router = r
}

func (s *Server) Start() error {
	addr := s.config.Addr()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0, // WebSocket sessions are long-lived
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("starting HTTP server")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	log.Info().Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Router() *chi.Mux {
	return s.router
}
