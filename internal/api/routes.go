// Package api assembles the HTTP surface: webhook, admin endpoints, summary
// pages, health and metrics.
package api

import (
	"net/http"

	"github.com/dvloznov/wa-finance/internal/api/handlers"
	"github.com/dvloznov/wa-finance/internal/api/middleware"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Deps are the handlers and settings the router is built from.
type Deps struct {
	Log        zerolog.Logger
	AdminToken string

	Webhook *handlers.WebhookHandler
	Send    *handlers.SendHandler
	Sheets  *handlers.SheetsHandler
	Summary *handlers.SummaryHandler
	Jobs    *handlers.JobsHandler
	DB      handlers.Pinger
}

// NewRouter registers every route. Admin routes require the bearer token.
func NewRouter(d Deps) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestID, middleware.Logger(d.Log), middleware.Recovery(d.Log), middleware.Metrics)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", handlers.Health(d.DB)).Methods(http.MethodGet)

	r.HandleFunc("/api/webhook", d.Webhook.Verify).Methods(http.MethodGet)
	r.HandleFunc("/api/webhook", d.Webhook.Receive).Methods(http.MethodPost)

	admin := r.NewRoute().Subrouter()
	admin.Use(middleware.Auth(d.AdminToken))
	admin.HandleFunc("/api/send", d.Send.Send).Methods(http.MethodPost)
	admin.HandleFunc("/api/sheets/check", d.Sheets.Check).Methods(http.MethodGet)
	admin.HandleFunc("/api/users/{waId}/summary", d.Summary.JSON).Methods(http.MethodGet)
	admin.HandleFunc("/usuarios/{waId}/resumo", d.Summary.Page).Methods(http.MethodGet)
	admin.HandleFunc("/api/jobs", d.Jobs.ListJobs).Methods(http.MethodGet)
	admin.HandleFunc("/api/jobs/{id}", d.Jobs.GetJob).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}
