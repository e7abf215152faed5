package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fleetgrid-io/fleetgrid-ce/internal/auth"
	"github.com/fleetgrid-io/fleetgrid-ce/internal/guard"
	"github.com/fleetgrid-io/fleetgrid-ce/internal/middleware"
)

// RouterDeps carries everything the route table needs.
type RouterDeps struct {
	Gate       *guard.Gate
	JWT        *auth.JWTManager
	CookieName string

	Auth       *AuthHandler
	AdminGuard *AdminGuardHandler
	Devices    *DeviceHandler
	Locations  *LocationHandler
	Users      *UserHandler
	AlertRules *AlertRuleHandler
}

// NewRouter builds the full route table. Every sensitive route passes the
// admission gate; the login endpoint additionally runs the full login check
// inside its handler.
func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")

	// The login route carries its own endpoint quota on top of the
	// account-level checks the handler performs.
	v1.POST("/auth/login", middleware.RateLimit(deps.Gate, "login"), deps.Auth.Login)

	// Device heartbeats come from firmware, not dashboard sessions.
	v1.POST("/devices/:id/heartbeat",
		middleware.RateLimit(deps.Gate, "device-command"), deps.Devices.Heartbeat)

	authed := v1.Group("")
	authed.Use(middleware.Auth(deps.JWT, deps.CookieName))
	authed.Use(middleware.RateLimit(deps.Gate, ""))
	{
		authed.POST("/auth/logout", deps.Auth.Logout)

		authed.GET("/devices", deps.Devices.List)
		authed.GET("/devices/:id", deps.Devices.Get)
		authed.POST("/devices", deps.Devices.Create)
		authed.PUT("/devices/:id", deps.Devices.Update)
		authed.DELETE("/devices/:id", deps.Devices.Delete)

		authed.GET("/locations", deps.Locations.List)
		authed.GET("/locations/:id", deps.Locations.Get)
		authed.POST("/locations", deps.Locations.Create)
		authed.PUT("/locations/:id", deps.Locations.Update)
		authed.DELETE("/locations/:id", deps.Locations.Delete)

		authed.GET("/alert-rules", deps.AlertRules.List)
		authed.GET("/alert-rules/:id", deps.AlertRules.Get)
		authed.POST("/alert-rules", deps.AlertRules.Create)
		authed.PUT("/alert-rules/:id", deps.AlertRules.Update)
		authed.DELETE("/alert-rules/:id", deps.AlertRules.Delete)
	}

	admin := authed.Group("/admin")
	admin.Use(middleware.RequireRole("Admin"))
	{
		admin.GET("/users", deps.Users.List)
		admin.GET("/users/:id", deps.Users.Get)
		admin.POST("/users", deps.Users.Create)
		admin.PUT("/users/:id", deps.Users.Update)

		admin.POST("/guard/unlock/:email", deps.AdminGuard.UnlockAccount)
		admin.GET("/guard/lockout/:email", deps.AdminGuard.LockoutStatus)
		admin.POST("/guard/reset-limits", deps.AdminGuard.ResetLimits)
		admin.POST("/guard/lift-ban/:ip", deps.AdminGuard.LiftBan)
		admin.GET("/guard/config", deps.AdminGuard.GetConfig)
		admin.PUT("/guard/config", deps.AdminGuard.UpdateConfig)
	}

	return r
}
