package rest

import (
	"liveclass/internal/service"
	"liveclass/internal/transport/rest/handler"
	"liveclass/internal/transport/rest/middleware"
	"liveclass/internal/transport/ws"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Container holds all dependencies for the router
type Container struct {
	AuthService      *service.AuthService
	LifecycleService *service.LifecycleService
	AdmissionService *service.AdmissionService
	QueryService     *service.QueryService
	WSHub            *ws.Hub
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	// Initialize handlers
	sessionHandler := handler.NewSessionHandler(c.LifecycleService, c.AdmissionService, c.QueryService)

	// Initialize middleware
	authMW := middleware.NewAuthMiddleware(c.AuthService)

	// CORS middleware (apply first)
	r.Use(corsMiddleware)

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Prometheus exposition
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()

	// WebSocket event stream (token in query param)
	if c.WSHub != nil {
		wsHandler := ws.NewHandler(c.WSHub, c.AuthService, c.QueryService)
		v1.HandleFunc("/ws/sessions/{id}", wsHandler.SessionWS).Methods("GET")
	}

	// Session routes (all require an authenticated caller). Fixed paths
	// are registered before the {id} routes so mux matches them first.
	authed := v1.NewRoute().Subrouter()
	authed.Use(authMW.RequireUser)

	authed.HandleFunc("/sessions", sessionHandler.Create).Methods("POST", "OPTIONS")
	authed.HandleFunc("/sessions", sessionHandler.List).Methods("GET", "OPTIONS")
	authed.HandleFunc("/sessions/mine", sessionHandler.ListMine).Methods("GET", "OPTIONS")
	authed.HandleFunc("/sessions/code/{code}", sessionHandler.ResolveCode).Methods("GET", "OPTIONS")
	authed.HandleFunc("/sessions/{id}", sessionHandler.Get).Methods("GET", "OPTIONS")
	authed.HandleFunc("/sessions/{id}", sessionHandler.Update).Methods("PATCH", "OPTIONS")
	authed.HandleFunc("/sessions/{id}/join", sessionHandler.Join).Methods("POST", "OPTIONS")
	authed.HandleFunc("/sessions/{id}/start", sessionHandler.Start).Methods("POST", "OPTIONS")
	authed.HandleFunc("/sessions/{id}/end", sessionHandler.End).Methods("POST", "OPTIONS")
	authed.HandleFunc("/sessions/{id}/leave", sessionHandler.Leave).Methods("POST", "OPTIONS")

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
		if allowedOrigins == "" {
			allowedOrigins = "*"
		}

		allowedMethods := os.Getenv("CORS_ALLOWED_METHODS")
		if allowedMethods == "" {
			allowedMethods = "GET, POST, PATCH, DELETE, OPTIONS"
		}

		allowedHeaders := os.Getenv("CORS_ALLOWED_HEADERS")
		if allowedHeaders == "" {
			allowedHeaders = "Content-Type, Authorization"
		}

		w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
		w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
		w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
