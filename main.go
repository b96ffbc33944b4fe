package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"

	"github.com/techdengue/analytics/internal/admin"
	"github.com/techdengue/analytics/internal/audit"
	"github.com/techdengue/analytics/internal/auth"
	"github.com/techdengue/analytics/internal/cache"
	"github.com/techdengue/analytics/internal/config"
	"github.com/techdengue/analytics/internal/datasets"
	"github.com/techdengue/analytics/internal/db"
	"github.com/techdengue/analytics/internal/gis"
	"github.com/techdengue/analytics/internal/health"
	"github.com/techdengue/analytics/internal/middleware"
	"github.com/techdengue/analytics/internal/provider"
	"github.com/techdengue/analytics/internal/ratelimit"
	"github.com/techdengue/analytics/internal/risk"
	"github.com/techdengue/analytics/internal/sources"
	"github.com/techdengue/analytics/internal/store"
	"github.com/techdengue/analytics/internal/weather"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN, Environment: cfg.SentryEnvironment, Release: health.Version}); err != nil {
			log.Printf("[sentry] init failed: %v", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// GIS database: optional unless GIS_OPTIONAL=false.
	var gdb *gorm.DB
	var adapter *sources.GISAdapter
	if cfg.GIS.DB.Configured() {
		gdb, err = db.Connect(ctx, cfg.GIS.DB, db.DefaultOptions())
		switch {
		case err == nil:
			adapter = &sources.GISAdapter{
				DB:         gdb,
				Retry:      db.Retrier{Attempts: 3, Delay: 2 * time.Second},
				BancoTable: cfg.GIS.BancoTable,
				POIsTable:  cfg.GIS.POIsTable,
			}
			defer db.Close(gdb)
		case cfg.GIS.Optional:
			log.Printf("[db] GIS database unavailable, serving snapshots: %v", err)
		default:
			log.Fatalf("GIS database: %v", err)
		}
	}

	remote, err := store.RemoteFromConfig(cfg.Store.RemoteURL, cfg.Store.S3URI)
	if err != nil {
		log.Fatalf("datasets remote: %v", err)
	}
	st := store.New(store.Options{
		Dir:           cfg.Store.Dir,
		SchemaVersion: cfg.Pipeline.SchemaVersion,
		FreshTTL:      cfg.Store.FreshTTL,
		CacheTTL:      cfg.Store.CacheTTL,
		Remote:        remote,
	})

	responses := cache.Open(ctx, cfg.Cache.RedisURL, cfg.Cache.ResponseTTL)

	var rateStore ratelimit.Store = ratelimit.NewMemoryStore(nil)
	if cfg.Cache.RedisURL != "" {
		if client, err := cache.OpenRedis(ctx, cfg.Cache.RedisURL); err == nil {
			rateStore = ratelimit.NewRedisStore(client)
		} else {
			log.Printf("[ratelimit] redis unavailable, counting in memory: %v", err)
		}
	}
	limiter := ratelimit.New(rateStore, ratelimit.DefaultPolicies)

	keys := auth.Init(cfg.AdminAPIKey)
	auditLog := audit.NewLog(audit.DefaultCapacity)

	pcfg := provider.Config{OpenWeatherKey: cfg.OpenWeatherKey, GroqKey: cfg.GroqKey, GroqModel: cfg.GroqModel}
	ws := weather.Init(pcfg, responses)
	rs := risk.Init(pcfg, st, ws, responses)
	ds := datasets.Init(st, responses)
	gs := gis.Init(adapter, st, !cfg.GIS.Optional)
	as := admin.Init(responses, st.Cache(), auditLog, keys, limiter)

	hs := &health.Service{
		Store:     st,
		Cache:     responses,
		Audit:     auditLog,
		RateStore: limiter.Backend(),
		StartedAt: time.Now(),
		Features: health.Features{
			RealWeather:    ws.Live(),
			LLMRisk:        cfg.GroqKey != "",
			GISDatabase:    gdb != nil,
			GISOptional:    cfg.GIS.Optional,
			RemoteDatasets: st.Remote() != "",
			ErrorReporting: cfg.SentryDSN != "",
		},
	}
	if gdb != nil {
		hs.PingGIS = func(ctx context.Context) error {
			sqlDB, err := gdb.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	log.Println("Health module initialized")

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(auditLog.Middleware)
	r.Use(middleware.ReportServerErrors)
	r.Use(middleware.Recoverer)
	r.Use(middleware.CORSMiddleware(cfg.Server.CORSOrigins))
	r.Use(middleware.APIKeyMiddleware(keys))
	r.Use(audit.Track)
	r.Use(limiter.Middleware)

	api := chi.NewRouter()
	api.Mount("/weather", weather.SetupRoutes(ws))
	api.Mount("/risk", risk.SetupRoutes(rs))
	api.Mount("/", admin.SetupRoutes(as))

	r.Mount("/api/v1", api)
	r.Mount("/gis", gis.SetupRoutes(gs))
	r.Mount("/", datasets.SetupRoutes(ds))
	hh := health.SetupRoutes(hs)
	for _, p := range health.Paths {
		r.Handle(p, hh)
	}

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("Server listening on port :%s...", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
