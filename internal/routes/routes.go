package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/synthara/forge-api/internal/authz"
	"github.com/synthara/forge-api/internal/handlers"
)

// NewRouter sets up the API routes.
func NewRouter(
	auth *handlers.AuthHandler,
	generation *handlers.GenerationHandler,
	dataset *handlers.DatasetHandler,
	realtime *handlers.RealtimeHandler,
) *mux.Router {
	router := mux.NewRouter()

	// Health check route
	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)

	// Public auth endpoints
	router.HandleFunc("/api/signup", auth.SignUp).Methods(http.MethodPost)
	router.HandleFunc("/api/login", auth.Login).Methods(http.MethodPost)

	// Websocket endpoint authenticates inside the handler (query token).
	router.HandleFunc("/api/ws", realtime.Connect).Methods(http.MethodGet)

	// Authenticated API
	api := router.PathPrefix("/api").Subrouter()
	api.Use(auth.JWTMiddleware)

	api.HandleFunc("/generation/jobs", generation.CreateJob).Methods(http.MethodPost)
	api.HandleFunc("/generation/jobs", generation.ListJobs).Methods(http.MethodGet)
	api.HandleFunc("/generation/jobs/{id}", generation.GetJob).Methods(http.MethodGet)
	api.HandleFunc("/generation/jobs/{id}/cancel", generation.CancelJob).Methods(http.MethodPost)

	api.HandleFunc("/datasets/{id}", dataset.GetDataset).Methods(http.MethodGet)
	api.HandleFunc("/bonding/{contract}", dataset.GetBondingCurve).Methods(http.MethodGet)

	api.Handle("/admin/realtime/stats", authz.RequireAdmin(http.HandlerFunc(realtime.Stats))).Methods(http.MethodGet)

	return router
}
