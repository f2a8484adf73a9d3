// Package server assembles the HTTP server: route table, middleware
// chain and operational endpoints.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/CinitSwift/divide/docs"
	"github.com/CinitSwift/divide/internal/api"
	"github.com/CinitSwift/divide/internal/auth"
	"github.com/CinitSwift/divide/internal/config"
	"github.com/CinitSwift/divide/internal/middleware"
)

// apiRequestTimeout bounds every API handler. A deadline firing inside
// a repository call rolls the transaction back and no event is emitted.
const apiRequestTimeout = 10 * time.Second

// withDeadline derives a bounded context for the request. The websocket
// route is exempt; its connections outlive any sane deadline.
func withDeadline(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), apiRequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Pinger is the readiness probe dependency; the database satisfies it.
type Pinger interface {
	Health(ctx context.Context) error
}

// Dependencies holds everything the route table needs.
type Dependencies struct {
	DB          Pinger
	AuthService *auth.Service
	AuthHandler *api.AuthHandler
	RoomHandler *api.RoomHandler
	WSHandler   http.Handler // nil when the publisher has no local fan-out
	RateLimiter *middleware.RateLimiter
	Logger      *slog.Logger
}

// New builds the configured *http.Server. Start it with ListenAndServe.
func New(cfg *config.Config, deps *Dependencies) *http.Server {
	mux := http.NewServeMux()
	registerRoutes(mux, cfg, deps)

	handler := chainMiddleware(mux,
		requestIDMiddleware,
		corsMiddleware(cfg),
		loggingMiddleware(deps.Logger),
		recoverMiddleware(deps.Logger),
	)

	return &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func registerRoutes(mux *http.ServeMux, cfg *config.Config, deps *Dependencies) {
	// Liveness and readiness, for orchestrators and load balancers.
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if deps.DB != nil {
			if err := deps.DB.Health(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"not ready","error":"database unavailable"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	if cfg.IsDevelopment() {
		mux.Handle("GET /swagger/", httpSwagger.Handler(
			httpSwagger.URL("/swagger/doc.json"),
		))
	}

	// =========================================================================
	// Auth (public)
	// =========================================================================
	mux.HandleFunc("POST /api/auth/login", deps.AuthHandler.Login)

	// =========================================================================
	// Authenticated API. Rate limiting sits inside auth so the limiter
	// keys on a resolved user id.
	// =========================================================================
	authMW := auth.Middleware(deps.AuthService)
	protected := func(h http.HandlerFunc) http.Handler {
		inner := withDeadline(h)
		if deps.RateLimiter != nil {
			inner = deps.RateLimiter.Middleware(inner)
		}
		return authMW(inner)
	}

	mux.Handle("GET /api/user/me", protected(deps.AuthHandler.Me))
	mux.Handle("PUT /api/user/profile", protected(deps.AuthHandler.UpdateProfile))

	rooms := deps.RoomHandler
	mux.Handle("POST /api/room/create", protected(rooms.Create))
	mux.Handle("GET /api/room/my-room", protected(rooms.MyRoom))
	mux.Handle("GET /api/room/my-joined-room", protected(rooms.MyJoinedRoom))
	mux.Handle("GET /api/room/{code}", protected(rooms.Get))
	mux.Handle("POST /api/room/{code}/join", protected(rooms.Join))
	mux.Handle("POST /api/room/{code}/leave", protected(rooms.Leave))
	mux.Handle("POST /api/room/{code}/remove/{memberId}", protected(rooms.Remove))
	mux.Handle("DELETE /api/room/{code}", protected(rooms.Close))
	mux.Handle("POST /api/room/{code}/divide", protected(rooms.Divide))
	mux.Handle("POST /api/room/{code}/redivide", protected(rooms.Redivide))
	mux.Handle("GET /api/room/{code}/result", protected(rooms.Result))
	mux.Handle("POST /api/room/{code}/member/{memberId}/labels", protected(rooms.SetLabels))
	mux.Handle("POST /api/room/{code}/label-rules", protected(rooms.SetLabelRules))

	// =========================================================================
	// Realtime gateway. Only mounted when the configured publisher can
	// fan out in-process; external publishers serve clients directly.
	// =========================================================================
	if deps.WSHandler != nil {
		mux.Handle("GET /api/ws", authMW(deps.WSHandler))
	}
}
