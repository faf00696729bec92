// Package server wires HTTP handlers into a chi router for the presence
// service via routing helpers.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures and returns a router with all application routes:
// the user control interface, the WebSocket endpoint on "/" and "/ws",
// health, metrics, and the test page.
func SetupRoutes(h *Handler, cfg Config) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Origins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/", h.Root)
	r.Get("/ws", h.WebSocket)
	r.Get("/health", h.Health)
	r.Get("/test", h.TestPage)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/new-user", h.CreateUser)
	r.Get("/users", h.ListUsers)
	r.Get("/user/{id}", h.GetUser)
	r.Put("/user/{id}", h.UpdateUser)
	r.Delete("/user/{id}", h.DeleteUser)

	return r
}
