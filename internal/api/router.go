package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/waldorf/school-records/docs"
	"github.com/waldorf/school-records/internal/api/handler"
	"github.com/waldorf/school-records/internal/api/middleware"
	"github.com/waldorf/school-records/internal/core/domain"
	"github.com/waldorf/school-records/internal/core/ports"
)

// Dependencies is everything the HTTP layer needs from the composition root.
type Dependencies struct {
	Log     zerolog.Logger
	Auth    ports.AuthService
	Persons ports.PersonService
	Tokens  ports.TokenIssuer
	Checks  map[string]handler.DependencyCheck
	// Registerer receives the HTTP metrics; nil means the default registry.
	Registerer prometheus.Registerer
}

var (
	admin     = domain.RoleAdmin.Authority()
	secretary = domain.RoleSecretary.Authority()
	director  = domain.RoleDirector.Authority()
	teacher   = domain.RoleTeacher.Authority()

	personRead   = domain.PermissionAuthority(domain.ResourcePerson, domain.ActionRead, domain.ScopeGlobal)
	personCreate = domain.PermissionAuthority(domain.ResourcePerson, domain.ActionCreate, domain.ScopeGlobal)
	personUpdate = domain.PermissionAuthority(domain.ResourcePerson, domain.ActionUpdate, domain.ScopeGlobal)
	personPurge  = domain.PermissionAuthority(domain.ResourcePerson, domain.ActionPurge, domain.ScopeGlobal)

	personDeactivate = domain.PermissionAuthority(domain.ResourcePerson, domain.ActionDeactivate, domain.ScopeGlobal)
	addressCreate    = domain.PermissionAuthority(domain.ResourceAddress, domain.ActionCreate, domain.ScopeGlobal)
	addressDelete    = domain.PermissionAuthority(domain.ResourceAddress, domain.ActionDelete, domain.ScopeGlobal)
	consentUpdate    = domain.PermissionAuthority(domain.ResourceConsent, domain.ActionUpdate, domain.ScopeGlobal)
	credentialCreate = domain.PermissionAuthority(domain.ResourceCredential, domain.ActionCreate, domain.ScopeGlobal)
)

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	registerer := deps.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(deps.Log))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "http",
		Registerer: registerer,
		Skipper: func(c echo.Context) bool {
			p := c.Path()
			return p == "/metrics" || strings.HasPrefix(p, "/health") || strings.HasPrefix(p, "/swagger")
		},
	}))

	// --- Operational endpoints (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	readinessHandler := handler.NewReadinessHandler(deps.Checks)
	e.GET("/health", healthHandler.Liveness)
	e.GET("/health/ready", readinessHandler.Readiness)
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	authHandler := handler.NewAuthHandler(deps.Auth)
	personHandler := handler.NewPersonHandler(deps.Persons)
	authenticated := middleware.Auth(deps.Tokens)

	readers := middleware.RequireAny(admin, secretary, director, teacher, personRead)
	creators := middleware.RequireAny(admin, secretary, personCreate)
	writers := middleware.RequireAny(admin, secretary, personUpdate)
	purgers := middleware.RequireAny(admin, personPurge)
	deactivators := middleware.RequireAny(admin, secretary, personUpdate, personDeactivate)
	consentWriters := middleware.RequireAny(admin, secretary, personUpdate, consentUpdate)
	addressCreators := middleware.RequireAny(admin, secretary, personUpdate, addressCreate)
	addressRemovers := middleware.RequireAny(admin, secretary, personUpdate, addressDelete)
	provisioners := middleware.RequireAny(admin, credentialCreate)
	admins := middleware.RequireAny(admin)

	v1 := e.Group("/v1")

	// --- Auth routes ---
	v1.POST("/auth/login", authHandler.Login)
	v1.POST("/auth/refresh", authHandler.Refresh)
	v1.POST("/auth/logout", authHandler.Logout)
	v1.GET("/auth/me", authHandler.Me, authenticated)

	v1.POST("/credentials", authHandler.ProvisionCredential, authenticated, provisioners)

	// --- Person aggregate ---
	persons := v1.Group("/persons", authenticated)
	persons.POST("", personHandler.Create, creators)
	persons.GET("", personHandler.List, readers)
	persons.GET("/by-national-id/:nationalID", personHandler.GetByNationalID, readers)
	persons.GET("/by-email/:email", personHandler.GetByEmail, readers)
	persons.GET("/stats/types/:type", personHandler.CountByType, readers)
	persons.GET("/deletions/pending", personHandler.PendingDeletions, admins)
	persons.GET("/:id", personHandler.Get, readers)
	persons.PUT("/:id", personHandler.Update, writers)
	persons.PATCH("/:id/deactivate", personHandler.Deactivate, deactivators)
	persons.PATCH("/:id/reactivate", personHandler.Reactivate, deactivators)
	persons.DELETE("/:id", personHandler.Purge, purgers)
	persons.POST("/:id/consent", personHandler.GrantConsent, consentWriters)
	persons.DELETE("/:id/consent", personHandler.RevokeConsent, consentWriters)
	persons.POST("/:id/addresses", personHandler.AddAddress, addressCreators)
	persons.GET("/:id/addresses", personHandler.ListAddresses, readers)
	persons.DELETE("/:id/addresses/:addressID", personHandler.RemoveAddress, addressRemovers)

	return e
}

// requestLogger emits one zerolog line per request. Bodies and the
// Authorization header are never logged.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Status >= http.StatusInternalServerError {
				ev = log.Error().Err(v.Error)
			}
			ev.Str("request_id", v.RequestID).
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	})
}
