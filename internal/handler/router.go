package handler

import (
	"net/http"

	"plumenote-server/internal/config"
	"plumenote-server/internal/middleware"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Snapshots *SnapshotHandler
	Versions  *VersionHandler
	Collab    *CollabHandler

	JWTSecret   string
	RateLimiter *middleware.RateLimiter
	CORS        config.CORSConfig
	Logger      *zap.Logger
}

func NewRouter(cfg RouterConfig) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware(cfg.Logger))
	r.Use(middleware.CORSMiddleware(cfg.CORS))

	api := r.PathPrefix("/api/v1").Subrouter()
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(cfg.JWTSecret))

	snapshots := protected.PathPrefix("/notes/{id}/snapshot").Subrouter()
	if cfg.RateLimiter != nil {
		snapshots.Use(cfg.RateLimiter.Middleware())
	}
	snapshots.HandleFunc("", cfg.Snapshots.Create).Methods("POST", "OPTIONS")
	snapshots.HandleFunc("/beacon", cfg.Snapshots.Beacon).Methods("POST", "OPTIONS")

	protected.HandleFunc("/notes/{id}/restore", cfg.Versions.Restore).Methods("POST", "OPTIONS")
	protected.HandleFunc("/notes/{id}/versions", cfg.Versions.List).Methods("GET", "OPTIONS")
	protected.HandleFunc("/notes/{id}/versions/{versionId}", cfg.Versions.Get).Methods("GET", "OPTIONS")

	if cfg.Collab != nil {
		r.HandleFunc("/ws/{session}", cfg.Collab.HandleConnection)
	}

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/health", healthHandler).Methods("GET")

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"plumenote-server"}`))
}
