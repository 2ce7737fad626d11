package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/csis-platform/iam/internal/iam/obs"
	"github.com/csis-platform/iam/internal/iam/service"
	"github.com/csis-platform/iam/internal/iam/store"
	"github.com/csis-platform/iam/pkg/httpx"
	"github.com/csis-platform/iam/pkg/jwtx"
	"github.com/csis-platform/iam/pkg/slogx"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AdminRole is the role claim that unlocks the user and role administration
// endpoints. It is an ordinary role row; seed it via migration or the CLI.
const AdminRole = "iam_admin"

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeySet
	verifier     jwtx.Verifier
	issuer       string
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	metrics      *obs.Metrics
	registry     *prometheus.Registry

	store        store.Store
	AuthService  *service.AuthService
	TokenService *service.TokenService
	RBACService  *service.RBACService
	UserService  *service.UserService
	AuditService *service.AuditService
}

func NewRouter(
	keys *jwtx.KeySet,
	verifier jwtx.Verifier,
	issuer, buildVersion string,
	st store.Store,
	logger *slog.Logger,
	metrics *obs.Metrics,
	registry *prometheus.Registry,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		verifier:     verifier,
		issuer:       issuer,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
		metrics:      metrics,
		registry:     registry,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		r.metrics.HTTPMiddleware,
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerOAuth2()
	r.registerAuth()
	r.registerUserInfo()
	r.registerUserAdmin()
	r.registerRoles()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerOAuth2() {
	// POST /token - strict limit keyed on IP plus the submitted username, so
	// distributed guessing against one account is throttled as hard as one
	// address spraying many.
	tokenHandler := &TokenHandler{AuthService: r.AuthService}
	r.Mux.Handle("POST /v1/oauth2/token",
		httpx.Chain(tokenHandler,
			httpx.RateLimitByIPAndFormField(httpx.StrictLimit, "username"),
		),
	)

	// Introspection endpoint (RFC 7662). No caller authentication beyond the
	// rate limit: the response never distinguishes failure modes, so there is
	// nothing to probe.
	introspectHandler := &IntrospectHandler{TokenService: r.TokenService}
	r.Mux.Handle("POST /v1/oauth2/introspect",
		httpx.Chain(introspectHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// Public key discovery - high limits, responses are cacheable
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keys),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
	r.Mux.Handle("GET /.well-known/openid-configuration",
		httpx.Chain(DiscoveryHandler(r.issuer),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{AuthService: r.AuthService}

	// Public account endpoints - strict rate limit by IP (abuse surface)
	r.Mux.Handle("POST /v1/auth/register",
		httpx.Chain(http.HandlerFunc(h.HandleRegister),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// Email verification
	r.Mux.Handle("POST /v1/auth/verify-email/{token}",
		httpx.Chain(http.HandlerFunc(h.HandleVerifyEmail),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/resend-verification",
		httpx.Chain(http.HandlerFunc(h.HandleResendVerification),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// Password reset
	r.Mux.Handle("POST /v1/auth/password-reset",
		httpx.Chain(http.HandlerFunc(h.HandlePasswordResetRequest),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/password-reset/confirm",
		httpx.Chain(http.HandlerFunc(h.HandlePasswordResetConfirm),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerUserInfo() {
	h := &UserInfoHandler{
		UserService: r.UserService,
		RBACService: r.RBACService,
	}

	// Authenticated endpoint - lenient rate limit by user
	secured := httpx.Chain(h,
		httpx.AuthnMiddleware(r.verifier, r.TokenService),
		httpx.RateLimitByUser(httpx.LenientLimit),
	)

	r.Mux.Handle("GET /v1/userinfo", secured)
}

func (r *Router) registerUserAdmin() {
	h := &UsersHandler{UserService: r.UserService}

	admin := func(next http.Handler) http.Handler {
		return httpx.Chain(next,
			httpx.AuthnMiddleware(r.verifier, r.TokenService),
			httpx.RequireAnyRole(AdminRole),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		)
	}

	r.Mux.Handle("GET /v1/users", admin(http.HandlerFunc(h.HandleList)))
	r.Mux.Handle("GET /v1/users/{id}", admin(http.HandlerFunc(h.HandleGet)))
	r.Mux.Handle("PATCH /v1/users/{id}", admin(http.HandlerFunc(h.HandleUpdate)))
	r.Mux.Handle("PUT /v1/users/{id}/status", admin(http.HandlerFunc(h.HandleSetStatus)))
	r.Mux.Handle("DELETE /v1/users/{id}", admin(http.HandlerFunc(h.HandleDelete)))
}

func (r *Router) registerRoles() {
	h := &RolesHandler{RBACService: r.RBACService}

	admin := func(next http.Handler) http.Handler {
		return httpx.Chain(next,
			httpx.AuthnMiddleware(r.verifier, r.TokenService),
			httpx.RequireAnyRole(AdminRole),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		)
	}

	r.Mux.Handle("GET /v1/roles", admin(http.HandlerFunc(h.HandleList)))
	r.Mux.Handle("POST /v1/roles", admin(http.HandlerFunc(h.HandleCreate)))
	r.Mux.Handle("GET /v1/roles/{id}", admin(http.HandlerFunc(h.HandleGet)))
	r.Mux.Handle("PATCH /v1/roles/{id}", admin(http.HandlerFunc(h.HandleUpdate)))
	r.Mux.Handle("DELETE /v1/roles/{id}", admin(http.HandlerFunc(h.HandleDelete)))

	r.Mux.Handle("GET /v1/users/{id}/roles", admin(http.HandlerFunc(h.HandleListForUser)))
	r.Mux.Handle("POST /v1/users/{id}/roles", admin(http.HandlerFunc(h.HandleAssign)))
	r.Mux.Handle("DELETE /v1/users/{id}/roles/{roleID}", admin(http.HandlerFunc(h.HandleRevoke)))
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may
	// poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	if r.registry != nil {
		r.Mux.Handle("GET /metrics",
			promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}),
		)
	}
}
