package main

import (
	"log/slog"
	"net/http"

	"github.com/carebridge/backend/internal/auth"
	"github.com/carebridge/backend/internal/dashboard"
	"github.com/carebridge/backend/internal/handlers"
	"github.com/carebridge/backend/internal/middleware"
	"github.com/carebridge/backend/internal/models"
)

type routeDeps struct {
	authSvc     auth.Service
	authHandler *auth.Handler
	lifecycle   handlers.Lifecycle
	disputes    handlers.Disputes
	posts       handlers.PostReader
	events      handlers.EventReader
	wallets     handlers.WalletReader
	otp         handlers.OTPVerifier
	overview    *dashboard.Handler
	logger      *slog.Logger
}

// registerRoutes wires the /v1 API. Middleware chain: BearerAuth ->
// (RequireRole where an endpoint is role-bound) -> handler.
func registerRoutes(mux *http.ServeMux, deps routeDeps) {
	jh := &handlers.JobHandler{
		Lifecycle: deps.lifecycle,
		Posts:     deps.posts,
		Events:    deps.events,
		Logger:    deps.logger,
	}
	dh := &handlers.DisputeHandler{Disputes: deps.disputes, Logger: deps.logger}
	wh := &handlers.WalletHandler{Wallets: deps.wallets, Logger: deps.logger}
	vh := &handlers.VerificationHandler{OTP: deps.otp, Logger: deps.logger}

	bearer := middleware.BearerAuth(deps.authSvc)
	requesterOnly := middleware.RequireRole(models.RoleRequester)
	adminOnly := middleware.RequireRole(models.RoleAdmin)

	mux.HandleFunc("POST /v1/auth/register", deps.authHandler.Register)
	mux.HandleFunc("POST /v1/auth/login", deps.authHandler.Login)

	mux.Handle("POST /v1/jobs", bearer(requesterOnly(http.HandlerFunc(jh.CreateJob))))
	mux.Handle("GET /v1/jobs", bearer(http.HandlerFunc(jh.ListJobs)))
	mux.Handle("GET /v1/jobs/{id}", bearer(http.HandlerFunc(jh.GetJob)))
	mux.Handle("POST /v1/jobs/{id}/{action}", bearer(http.HandlerFunc(jh.JobAction)))

	mux.Handle("GET /v1/instances/{id}/events", bearer(http.HandlerFunc(jh.InstanceAction)))
	mux.Handle("POST /v1/instances/{id}/{action}", bearer(http.HandlerFunc(jh.InstanceAction)))

	mux.Handle("POST /v1/disputes", bearer(http.HandlerFunc(dh.OpenDispute)))
	mux.Handle("POST /v1/disputes/{id}/{action}", bearer(adminOnly(http.HandlerFunc(dh.DisputeAction))))

	mux.Handle("GET /v1/wallets/me", bearer(http.HandlerFunc(wh.MyWallets)))
	mux.Handle("GET /v1/ledger/{reference_type}/{reference_id}", bearer(adminOnly(http.HandlerFunc(wh.LedgerByReference))))

	mux.Handle("POST /v1/verification/otp", bearer(http.HandlerFunc(vh.IssueOTP)))
	mux.Handle("POST /v1/verification/otp/verify", bearer(http.HandlerFunc(vh.VerifyOTP)))

	mux.Handle("GET /v1/admin/overview", bearer(adminOnly(http.HandlerFunc(deps.overview.Overview))))
}
