package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/teamverify-go/internal/components/api"
	"github.com/MahdiBaghbani/teamverify-go/internal/frameworks/service"
	"github.com/MahdiBaghbani/teamverify-go/internal/platform/http/auth"
	httpmw "github.com/MahdiBaghbani/teamverify-go/internal/platform/http/middleware"
)

// setupRoutes creates the chi router with every service mounted.
func (s *Server) setupRoutes(services []service.Service) chi.Router {
	r := chi.NewRouter()

	// Always-on transport middleware (order is invariant):
	// [RealIP] -> RequestID -> request-scoped logger -> access log -> recoverer -> auth gate
	if s.opts.TrustForwardedHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(chimw.RequestID)
	r.Use(httpmw.RequestLogger(s.logger))
	r.Use(httpmw.AccessLog(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(auth.NewGate(auth.GateConfig{
		Log:         s.logger,
		SessionRepo: s.opts.SessionRepo,
		PartyRepo:   s.opts.PartyRepo,
	}))

	r.Get("/healthz", api.HealthHandler(s.opts.Health))

	r.Route("/api", func(r chi.Router) {
		for _, svc := range services {
			s.mountService(r, svc)
		}
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			api.WriteNotFound(w, "no such endpoint")
		})
	})

	return r
}

// mountService mounts a service and tracks it for lifecycle management.
func (s *Server) mountService(r chi.Router, svc service.Service) {
	if svc == nil {
		return
	}
	r.Mount("/"+svc.Prefix(), svc.Handler())
	s.mountedServices = append(s.mountedServices, svc)
	s.logger.Debug("service mounted", "prefix", "/api/"+svc.Prefix())
}
