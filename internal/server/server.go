// Package server implements the gateway's HTTP server: route registration
// for health/docs/openapi/metrics plus the SigV4-authenticated S3 surface.
package server

import (
	"context"
	"net/http"

	"github.com/sourcegw/gateway/internal/config"
	"github.com/sourcegw/gateway/internal/controlplane"
	"github.com/sourcegw/gateway/internal/gateway"
	"github.com/sourcegw/gateway/internal/reqcontext"
	"github.com/sourcegw/gateway/internal/sigv4"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// region is the AWS region stored on the SigV4 verifier. Verify builds the
// credential scope from the region named in each request's Authorization
// header and does not compare it against this value.
const region = "us-east-1"

// Server is the gateway's HTTP server. Health/docs/openapi/metrics are
// served directly off the Chi router; every other path goes through
// reqcontext.Middleware into the S3-compatible gateway.Handler.
type Server struct {
	cfg        *config.Config
	router     chi.Router
	api        huma.API
	cp         *controlplane.Client
	verifier   *sigv4.Verifier
	handler    *gateway.Handler
	httpServer *http.Server
}

// HealthBody is the JSON body returned by the health check endpoint.
type HealthBody struct {
	Status string `json:"status" example:"ok" doc:"Health status"`
}

// HealthOutput is the Huma output struct for the health check endpoint.
type HealthOutput struct {
	Body HealthBody
}

// New creates a new Server wired against the given control-plane client.
func New(cfg *config.Config, cp *controlplane.Client) (*Server, error) {
	router := chi.NewMux()

	humaConfig := huma.DefaultConfig("source-gateway S3 API", "1.0.0")
	humaConfig.DocsPath = "/docs"
	humaConfig.OpenAPIPath = "/openapi"
	api := humachi.New(router, humaConfig)

	s := &Server{
		cfg:      cfg,
		router:   router,
		api:      api,
		cp:       cp,
		verifier: sigv4.NewVerifier(cp, region),
		handler:  gateway.New(cp, cfg.MaxRequestBytes),
	}

	s.registerRoutes()
	return s, nil
}

// ListenAndServe starts the HTTP server on the configured address. The
// returned http.Server is stored so it can be shut down gracefully.
// Middleware chain: metricsMiddleware -> commonHeaders -> transferEncodingCheck
// -> metadataHeaderMiddleware -> router. SigV4 verification and backend
// resolution (reqcontext.Middleware) are scoped to the S3 catch-all alone in
// registerRoutes, since /health, /metrics, and /docs need none of it.
func (s *Server) ListenAndServe() error {
	var handler http.Handler = s.router
	handler = metadataHeaderMiddleware(handler)
	handler = transferEncodingCheck(handler)
	handler = commonHeaders(handler)
	handler = metricsMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: handler,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server, waiting for in-flight
// requests to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// registerRoutes configures all routes on the Chi router. Huma routes
// (/health, /docs, /openapi) and /metrics are registered first; the
// SigV4-authenticated S3 catch-all /* is registered last, mirroring the
// teacher's registerRoutes.
func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the gateway.",
		Tags:        []string{"System"},
	}, func(ctx context.Context, input *struct{}) (*HealthOutput, error) {
		return &HealthOutput{Body: HealthBody{Status: "ok"}}, nil
	})

	s.router.Head("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
	})

	s.router.Handle("/metrics", promhttp.Handler())

	s3Handler := reqcontext.Middleware(s.cp, s.verifier)(s.handler)
	s.router.Handle("/*", s3Handler)
}
