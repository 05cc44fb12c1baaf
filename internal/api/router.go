package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/curio/internal/api/handlers"
	mw "github.com/Harshitk-cp/curio/internal/api/middleware"
	"github.com/Harshitk-cp/curio/internal/buildconfig"
	"github.com/Harshitk-cp/curio/internal/domain"
	"github.com/Harshitk-cp/curio/internal/service"
	"github.com/Harshitk-cp/curio/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger reports backing store health. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	APIKey         string
	RateLimitRPS   float64
	RateLimitBurst int
	DecayInterval  time.Duration
	DecayWorkers   int
	Options        service.Options
}

// App holds the router and background services for lifecycle management.
type App struct {
	Router       *chi.Mux
	Engine       *service.Engine
	Decay        *service.DecayService
	Hub          *service.Hub
	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

func NewApp(stores service.Stores, db Pinger, cfg Config, logger *zap.Logger) *App {
	// Notifications go to the log and to in-process subscribers.
	hub := service.NewHub(256, logger)
	notifier := service.MultiNotifier{service.NewLogNotifier(logger), hub}

	// Services
	engine := service.NewEngine(stores, cfg.Options, notifier, logger)
	decaySvc := service.NewDecayService(stores.Subjects, engine.Repository(), engine.Turns(), cfg.Options.DecayRate, logger)
	decaySvc.SetInterval(cfg.DecayInterval)
	decaySvc.SetWorkers(cfg.DecayWorkers)

	// Handlers
	subjectHandler := handlers.NewSubjectHandler(engine)
	turnHandler := handlers.NewTurnHandler(engine)
	curiosityHandler := handlers.NewCuriosityHandler(engine, cfg.Options.Thresholds)
	crystalHandler := handlers.NewCrystalHandler(engine)
	cognitiveHandler := handlers.NewCognitiveHandler(decaySvc)
	notificationHandler := handlers.NewNotificationHandler(engine, hub)

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Engine:    engine,
		Decay:     decaySvc,
		Hub:       hub,
		startTime: time.Now(),
	}

	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))

	// Unauthenticated
	r.Get("/health", healthHandler(db))
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/debug/stats", app.statsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(cfg.APIKey))

		r.Route("/subjects", func(r chi.Router) {
			r.Post("/", subjectHandler.Ensure)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", subjectHandler.GetByID)
				r.Post("/archive", subjectHandler.Archive)
				r.Post("/rebuild", subjectHandler.Rebuild)
				r.Post("/turns", turnHandler.Submit)
				r.Get("/curiosities", curiosityHandler.List)
				r.Get("/curiosities/{cid}", curiosityHandler.GetByID)
				r.Get("/events", curiosityHandler.Events)
				r.Post("/crystals", crystalHandler.Create)
				r.Get("/crystals/latest", crystalHandler.Latest)
				r.Get("/notifications", notificationHandler.Stream)
			})
		})

		r.Route("/cognitive", func(r chi.Router) {
			r.Post("/decay", cognitiveHandler.TriggerDecay)
		})
	})

	return app
}

func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "build": buildconfig.Get()})
	}
}

func (app *App) statsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores satisfy interfaces at compile time.
var (
	_ domain.EventStore    = (*store.EventStore)(nil)
	_ domain.EventStore    = (*store.MemoryEventStore)(nil)
	_ domain.SnapshotStore = (*store.SnapshotStore)(nil)
	_ domain.SnapshotStore = (*store.MemorySnapshotStore)(nil)
	_ domain.CrystalStore  = (*store.CrystalStore)(nil)
	_ domain.CrystalStore  = (*store.MemoryCrystalStore)(nil)
	_ domain.SubjectStore  = (*store.SubjectStore)(nil)
	_ domain.SubjectStore  = (*store.MemorySubjectStore)(nil)
	_ domain.Notifier      = (*service.LogNotifier)(nil)
	_ domain.Notifier      = (*service.Hub)(nil)
	_ domain.Notifier      = service.MultiNotifier(nil)
)
