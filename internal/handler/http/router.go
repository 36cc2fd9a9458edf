package http

import (
	"log/slog"
	"time"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/domain/user"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/handler/http/middleware"
	"github.com/cmlabs-hris/hris-leave-ledger/internal/pkg/jwt"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
	"github.com/go-chi/jwtauth/v5"
	"github.com/redis/go-redis/v9"
)

type RouterConfig struct {
	Logger         *slog.Logger
	AllowedOrigins []string
	// Redis backs Idempotency-Key handling. Nil disables it.
	Redis          redis.Cmdable
	IdempotencyTTL time.Duration
	// RateLimiter is applied per authenticated caller. Nil disables it.
	RateLimiter *middleware.RateLimiter
}

func NewRouter(cfg RouterConfig, JWTService jwt.Service, leaveHandler LeaveHandler) *chi.Mux {
	r := chi.NewRouter()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", middleware.IdempotencyHeader},
		ExposedHeaders:   []string{"Link"},
		MaxAge:           300,
	}))

	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:  slog.LevelDebug,
		Schema: httplog.SchemaECS,
	}))

	r.Use(chiMiddleware.AllowContentEncoding("application/json"))
	r.Use(chiMiddleware.CleanPath)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/"))

	r.Route("/api/v1/leave", func(r chi.Router) {
		// Requires authentication
		r.Use(jwtauth.Verifier(JWTService.JWTAuth()))
		r.Use(middleware.AuthRequired(JWTService))
		if cfg.RateLimiter != nil {
			r.Use(middleware.RateLimitByActor(cfg.RateLimiter))
		}
		if cfg.Redis != nil {
			r.Use(middleware.Idempotency(cfg.Redis, cfg.IdempotencyTTL))
		}

		r.Get("/types", leaveHandler.ListTypes)

		r.Route("/requests", func(r chi.Router) {
			r.With(middleware.RequirePermission(user.PermissionLeaveViewOwn)).Get("/", leaveHandler.ListRequests)
			r.With(middleware.RequirePermission(user.PermissionLeaveCreate)).Post("/", leaveHandler.CreateRequest)

			r.Route("/{id}", func(r chi.Router) {
				r.With(middleware.RequirePermission(user.PermissionLeaveViewOwn)).Get("/", leaveHandler.GetRequest)
				r.With(middleware.RequirePermission(user.PermissionLeaveCreate)).Post("/cancel", leaveHandler.CancelRequest)

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequirePermission(user.PermissionLeaveApprove))
					r.Post("/approve", leaveHandler.ApproveRequest)
					r.Post("/reject", leaveHandler.RejectRequest)
				})

				r.With(middleware.RequirePermission(user.PermissionLeaveManageBalances)).Post("/process", leaveHandler.ProcessRequest)
			})
		})

		r.Route("/balances/{employee_id}", func(r chi.Router) {
			r.With(middleware.RequirePermission(user.PermissionLeaveViewOwn)).Get("/", leaveHandler.ListBalances)
			r.With(middleware.RequirePermission(user.PermissionLeaveViewOwn)).Get("/{leave_type}", leaveHandler.GetBalance)
			r.With(middleware.RequirePermission(user.PermissionLeaveManageBalances)).Put("/{leave_type}", leaveHandler.AdjustBalance)
		})
	})

	return r
}
