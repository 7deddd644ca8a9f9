package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/temiloluwa-oss/arkiva/internal/api/handlers"
	appMiddleware "github.com/temiloluwa-oss/arkiva/internal/api/middlewares"
	"github.com/temiloluwa-oss/arkiva/internal/config"
	"github.com/temiloluwa-oss/arkiva/internal/core"
	"github.com/temiloluwa-oss/arkiva/internal/core/pipeline"
	"github.com/temiloluwa-oss/arkiva/internal/core/search"
	"github.com/temiloluwa-oss/arkiva/internal/logger"
	"github.com/temiloluwa-oss/arkiva/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        *zap.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, db core.DbClient, obj core.ObjectClient, orch *pipeline.Orchestrator, engine *search.Engine, provider core.EmbeddingProvider) *Server {
	userSvc := services.NewUserService(db)
	repoSvc := services.NewRepositoryService(db, provider.Model(), provider.Dimension())
	itemSvc := services.NewItemService(db, obj, orch)

	authHandler := handlers.NewAuthHandler(userSvc, cfg.JWTSecret)
	repoHandler := handlers.NewRepositoryHandler(repoSvc)
	itemHandler := handlers.NewItemHandler(repoSvc, itemSvc)
	searchHandler := handlers.NewSearchHandler(repoSvc, engine)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/signup", authHandler.Signup)
		api.Post("/login", authHandler.Login)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWT(cfg.JWTSecret))

			protected.Post("/repositories", repoHandler.Create)
			protected.Get("/repositories", repoHandler.List)
			protected.Get("/repositories/{repositoryID}", repoHandler.Get)

			protected.Post("/repositories/{repositoryID}/items", itemHandler.Create)
			protected.Get("/repositories/{repositoryID}/items", itemHandler.List)
			protected.Get("/repositories/{repositoryID}/items/{itemID}", itemHandler.Get)
			protected.Delete("/repositories/{repositoryID}/items/{itemID}", itemHandler.Delete)
			protected.Post("/repositories/{repositoryID}/items/{itemID}/reingest", itemHandler.Reingest)

			protected.Get("/repositories/{repositoryID}/search", searchHandler.Search)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv, log: logger.Named("http")}
}

// Start runs the HTTP server.
func (s *Server) Start() {
	s.log.Info("listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.log.Fatal("server error", zap.Error(err))
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down")
	return s.httpServer.Shutdown(ctx)
}
