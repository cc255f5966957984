// Command dispatchd runs the last-mile dispatch service: route
// optimization, live order/route lifecycle management, adaptive
// re-optimization, the condition simulator, and the push channels that
// keep dispatcher dashboards current.
//
// Configuration is loaded with the same priority every other service in
// this codebase uses (env > config file > defaults), DISPATCH_ prefixed.
// See pkg/config/loader.go for the full schema.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"dispatch/internal/adaptive"
	"dispatch/internal/eta"
	"dispatch/internal/eventbus"
	"dispatch/internal/geo"
	"dispatch/internal/httpapi"
	"dispatch/internal/httpapi/ws"
	"dispatch/internal/matrixcache"
	"dispatch/internal/simulator"
	"dispatch/internal/solver"
	"dispatch/internal/store"
	"dispatch/pkg/cache"
	"dispatch/pkg/config"
	"dispatch/pkg/database"
	"dispatch/pkg/logger"
	"dispatch/pkg/metrics"
	"dispatch/pkg/passhash"
	"dispatch/pkg/ratelimit"
	"dispatch/pkg/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.InitWithConfig(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})

	ctx := context.Background()
	metrics.InitMetrics(cfg.Metrics.Namespace, cfg.App.Name)

	// No depot field exists in the configuration schema; the simulator's
	// default geographic center doubles as the default depot location for
	// local development and demos.
	depot := simulator.DefaultParams().GeoCenter

	// =====================================================================
	// Store
	// =====================================================================
	//
	// Postgres-backed when the configured database is reachable, otherwise
	// the in-memory store — useful for local development and the
	// simulator demo path without standing up a database.
	var st store.Store
	if cfg.Database.Driver == "postgres" {
		db, err := database.NewPostgresDB(ctx, &cfg.Database)
		if err != nil {
			logger.Log.Warn("failed to connect to database, falling back to in-memory store", "error", err)
			st = store.NewMemStore()
		} else {
			defer db.Close()
			st = store.NewPostgresStore(db)
			logger.Info("using postgres store", "host", cfg.Database.Host, "database", cfg.Database.Database)
		}
	} else {
		st = store.NewMemStore()
		logger.Info("using in-memory store")
	}

	// =====================================================================
	// Geo provider chain (C1)
	// =====================================================================
	//
	// The HTTP provider talks to the configured mapping service; Haversine
	// is the always-available fallback wrapped around it. With no API key
	// configured, Haversine alone serves every request.
	var provider geo.Provider = geo.NewHaversineProvider()
	if cfg.Geo.MapAPIKey != "" && cfg.Geo.MapBaseURL != "" {
		geoLimiter, err := ratelimit.New(&ratelimit.Config{
			Requests: int(cfg.Geo.RequestsPerSec),
			Window:   time.Second,
			Strategy: "token_bucket",
			Backend:  "memory",
		})
		if err != nil {
			logger.Log.Warn("failed to build geo rate limiter, running unlimited", "error", err)
			geoLimiter = nil
		}
		httpProvider := geo.NewHTTPProvider(cfg.Geo.MapBaseURL, cfg.Geo.MapAPIKey, geoLimiter, 10*time.Second)
		provider = geo.NewFallbackProvider(httpProvider)
		logger.Info("geo provider configured", "base_url", cfg.Geo.MapBaseURL)
	} else {
		logger.Info("no mapping provider configured, using haversine estimates only")
	}

	// =====================================================================
	// Distance-matrix cache (C2) and ETA predictor (C3)
	// =====================================================================
	cacheOpts := cache.FromConfig(&cfg.Cache)
	baseCache, err := cache.New(cacheOpts)
	if err != nil {
		logger.Fatal("failed to build cache backend", "error", err)
	}
	matrixTTL := time.Duration(cfg.Geo.MatrixCacheTTLS) * time.Second
	matrixCache := matrixcache.New(baseCache, matrixTTL)

	var predictor eta.Predictor = eta.NewHeuristicPredictor()

	// =====================================================================
	// Solver (C4) and event bus (C5)
	// =====================================================================
	slv := solver.New(provider, matrixCache)
	bus := eventbus.New(256)

	// =====================================================================
	// Condition simulator (C6)
	// =====================================================================
	sim := simulator.New(bus, time.Now().UnixNano())

	// =====================================================================
	// Adaptive optimizer (C7)
	// =====================================================================
	adaptiveParams := adaptive.Params{
		MonitorInterval:  time.Duration(cfg.Adaptive.MonitorIntervalS) * time.Second,
		DelayThreshold:   time.Duration(cfg.Adaptive.DelayThresholdMin) * time.Minute,
		TrafficThreshold: cfg.Adaptive.TrafficThreshold,
		Cooldown:         time.Duration(cfg.Adaptive.ReoptimizationCooldownM) * time.Minute,
	}
	optimizer := adaptive.New(st, slv, bus, depot, adaptiveParams)
	optimizer.SetConditionsSnapshotFunc(sim.GetConditions)
	optimizer.StartMonitoring(ctx)
	defer optimizer.StopMonitoring()

	// =====================================================================
	// HTTP API and WebSocket channels
	// =====================================================================
	api := httpapi.New(st, slv, optimizer, predictor, sim, bus, provider, depot)
	wsManager := ws.NewManager()
	wsManager.Run(ctx)
	wsManager.SubscribeBus(bus)
	wsManager.RunMonitoringTicker(ctx, time.Duration(cfg.WS.HeartbeatS)*time.Second, sim.GetConditions)

	// JWT secret comes from the environment directly rather than the koanf
	// schema, since it is a credential and not an operational setting; every
	// other service in this codebase keeps secrets out of config files too.
	jwtConfig := passhash.DefaultJWTConfig()
	if secret := os.Getenv("DISPATCH_JWT_SECRET"); secret != "" {
		jwtConfig.SecretKey = secret
	} else {
		logger.Log.Warn("DISPATCH_JWT_SECRET not set, using default development signing key")
	}
	jwtManager := passhash.NewJWTManager(jwtConfig)

	srv := server.NewWithOptions(cfg, &server.ServerOptions{JWTManager: jwtManager})
	api.RegisterRoutes(srv.Mux())
	wsManager.RegisterRoutes(srv.Mux())

	logger.Info("starting dispatch service",
		"port", cfg.HTTP.Port,
		"environment", cfg.App.Environment,
		"version", cfg.App.Version,
	)

	if err := srv.Run(); err != nil {
		logger.Fatal("server failed", "error", err)
	}
}
