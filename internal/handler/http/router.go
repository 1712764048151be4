package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/authcore/internal/service"
	"github.com/utafrali/authcore/pkg/health"
	"github.com/utafrali/authcore/pkg/middleware"
)

const serviceName = "authcore"

// RouterConfig holds the HTTP-layer settings NewRouter needs.
type RouterConfig struct {
	Cookies     CookieConfig
	CORS        middleware.CORSConfig
	TrustProxy  bool
	RBACEnabled bool
	// Google is nil when the Google provider is disabled.
	Google OAuthProvider
}

// NewRouter creates a chi router with all authcore routes registered.
func NewRouter(
	sessions *service.SessionService,
	identities *service.IdentityService,
	roles *service.RoleService,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.CORS(cfg.CORS))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	authenticate := middleware.Auth(CookieAccess, tokenValidator(sessions, logger))
	checkPermissions := CheckPermissions(sessions, logger)
	requireAdmin := RequireAdmin(cfg.RBACEnabled)

	authHandler := NewAuthHandler(sessions, cfg.Google, cfg.Cookies, cfg.TrustProxy, logger)
	r.Route("/api/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/login", authHandler.Login)
		r.Get("/logout", authHandler.Logout)
		r.Post("/logout", authHandler.Logout)
		r.Post("/refresh-token", authHandler.Refresh)
		r.Get("/me", authHandler.Me)

		if cfg.Google != nil {
			r.Get("/google", authHandler.GoogleRedirect)
			r.Get("/google/callback", authHandler.GoogleCallback)
		}
	})

	identityHandler := NewIdentityHandler(identities, sessions, logger)
	r.Route("/api/user", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/signup", identityHandler.Signup)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Put("/me/password", identityHandler.ChangePassword)
			r.With(requireAdmin).Post("/{id}/sessions/revoke", identityHandler.RevokeSessions)

			r.Group(func(r chi.Router) {
				r.Use(checkPermissions)

				r.Get("/", identityHandler.List)
				r.Get("/{id}", identityHandler.Get)
				r.Put("/{id}", identityHandler.Update)
				r.Delete("/{id}", identityHandler.Delete)
			})
		})
	})

	// Role and grant management only exists while RBAC is on.
	if cfg.RBACEnabled {
		roleHandler := NewRoleHandler(roles, logger)

		r.Route("/api/roles", func(r chi.Router) {
			r.Use(ContentTypeJSON)
			r.Use(authenticate)
			r.Use(requireAdmin)

			r.Get("/", roleHandler.ListRoles)
			r.Post("/", roleHandler.CreateRole)
			r.Get("/{id}", roleHandler.GetRole)
			r.Put("/{id}", roleHandler.UpdateRole)
			r.Delete("/{id}", roleHandler.DeleteRole)
			r.Post("/{id}/default", roleHandler.SetDefaultRole)
		})

		r.Route("/api/permissions", func(r chi.Router) {
			r.Use(ContentTypeJSON)
			r.Use(authenticate)
			r.Use(requireAdmin)

			r.Get("/", roleHandler.ListPermissions)
			r.Post("/", roleHandler.CreatePermission)
			r.Get("/{id}", roleHandler.GetPermission)
			r.Put("/{id}", roleHandler.UpdatePermission)
			r.Delete("/{id}", roleHandler.DeletePermission)
		})
	}

	return r
}
