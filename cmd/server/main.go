package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/fleetgrid-io/fleetgrid-ce/internal/api"
	"github.com/fleetgrid-io/fleetgrid-ce/internal/auth"
	"github.com/fleetgrid-io/fleetgrid-ce/internal/cache"
	"github.com/fleetgrid-io/fleetgrid-ce/internal/config"
	"github.com/fleetgrid-io/fleetgrid-ce/internal/database"
	"github.com/fleetgrid-io/fleetgrid-ce/internal/guard"
	"github.com/fleetgrid-io/fleetgrid-ce/internal/repository"
	"github.com/fleetgrid-io/fleetgrid-ce/internal/service"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	if err := config.Load(*configPath); err != nil {
		log.Printf("config file not loaded (%v), using defaults and environment", err)
	}
	cfg := config.Get()

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	store, err := cache.NewRedisStore(cache.Config{
		Addr:         fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		KeyPrefix:    cfg.Redis.KeyPrefix,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		OpTimeout:    cfg.Redis.OpTimeout,
	})
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer store.Close()

	attempts := repository.NewAttemptRepository(db)
	users := repository.NewUserRepository(db)
	devices := repository.NewDeviceRepository(db)
	locations := repository.NewLocationRepository(db)
	alertRules := repository.NewAlertRuleRepository(db)

	gate := guard.New(store, attempts, guard.NewConfig(cfg.Guard))

	// File-watch reloads must reach the gate's own settings copy.
	config.OnReload(func(c *config.Config) {
		gate.Config().Update(c.Guard)
		log.Println("[CONFIG] guard settings applied to live gate")
	})

	if cfg.Auth.JWTSecret == "" {
		log.Fatal("auth.jwt_secret must be set (FLEETGRID_AUTH_JWT_SECRET)")
	}
	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.TokenTTL)
	authService := auth.NewAuthService(users, gate, jwtManager)

	retention := service.NewRetentionJob(attempts, cfg.Retention.AttemptMaxAge, cfg.Retention.Schedule)
	if err := retention.Start(); err != nil {
		log.Fatalf("retention job failed to start: %v", err)
	}
	defer retention.Stop()

	router := api.NewRouter(api.RouterDeps{
		Gate:       gate,
		JWT:        jwtManager,
		CookieName: cfg.Auth.CookieName,
		Auth:       api.NewAuthHandler(authService, cfg.Auth.CookieName, cfg.Auth.SecureCooky),
		AdminGuard: api.NewAdminGuardHandler(gate, attempts),
		Devices:    api.NewDeviceHandler(devices),
		Locations:  api.NewLocationHandler(locations),
		Users:      api.NewUserHandler(users, cfg.Auth.BcryptCost),
		AlertRules: api.NewAlertRuleHandler(alertRules),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("%s listening on %s", cfg.App.Name, srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("server stopped")
}
