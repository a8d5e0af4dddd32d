package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"pulsewatch/alert"
	"pulsewatch/bus"
	"pulsewatch/config"
	"pulsewatch/handler"
	"pulsewatch/hub"
	"pulsewatch/logstore"
	"pulsewatch/probe"
	"pulsewatch/scheduler"
	"pulsewatch/state"
	"pulsewatch/store"
)

func main() {
	cfg := config.Load()
	if err := cfg.LoadSystemConfig(); err != nil {
		log.Fatalf("config: %v", err)
	}

	thresholds, err := cfg.LoadThresholds()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	thresholdsStore := config.NewThresholdsStore(thresholds)

	services, err := cfg.LoadServices()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	b := bus.New()
	registry := probe.NewRegistry()

	stateManager := state.NewManager(b, thresholdsStore.Fn())
	for _, svc := range services {
		stateManager.Register(svc)
	}

	var archiver logstore.Archiver
	if cfg.ArchiveBucket != "" && cfg.ArchiveEndpoint != "" {
		minioArchiver, err := logstore.NewMinioArchiver(cfg.ArchiveEndpoint, cfg.ArchiveAccessKey, cfg.ArchiveSecretKey, cfg.ArchiveBucket)
		if err != nil {
			log.Printf("WARNING: log archival unavailable (%v)", err)
		} else {
			archiver = minioArchiver
			log.Println("log archival connected at " + cfg.ArchiveEndpoint)
		}
	}
	logs := logstore.New(cfg.LogPath, archiver)
	logs.Wire(b)

	rotationStop := make(chan struct{})
	go logs.RunRotationSchedule(cfg.HistoryRetention, rotationStop)

	pruneStop := make(chan struct{})

	allowedOrigins := append([]string{"http://localhost:5173", "http://localhost:3000"}, cfg.AllowedOrigins...)
	ws := hub.New(allowedOrigins)
	ws.Wire(b)
	go ws.Run()

	alertManager := alert.NewManager(b)

	var db *store.DB
	if cfg.DatabaseURL != "" {
		db, err = store.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Printf("WARNING: alert audit store unavailable (%v)", err)
			db = nil
		} else {
			if err := store.Migrate(db); err != nil {
				log.Printf("WARNING: alert audit store migration failed (%v)", err)
				db.Close()
				db = nil
			} else {
				alertManager.SetAuditSink(db)
				log.Println("alert audit store connected")
				go db.RunPruneSchedule(cfg.HistoryRetention, pruneStop)
			}
		}
	}
	if db != nil {
		defer db.Close()
	}

	sched := scheduler.New(b, registry, thresholdsStore.Fn())
	schedCtx, schedCancel := context.WithCancel(context.Background())
	defer schedCancel()
	sched.Start(schedCtx, services)

	h := handler.New(stateManager, sched, logs, alertManager, cfg, thresholdsStore, db)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/services", h.ListServices)
		r.Get("/history/{name}", h.History)
		r.Get("/config", h.GetConfig)
		r.Get("/config/services", h.GetConfigServices)
		r.Get("/config/thresholds", h.GetConfigThresholds)
		r.Get("/config/audio", h.GetConfigAudio)
		r.Post("/config/services", h.UpdateConfigServices)
		r.Post("/config/thresholds", h.UpdateConfigThresholds)
		r.Get("/alerts", h.ListAlerts)
		r.Get("/scheduler", h.SchedulerStatus)
		r.Group(func(r chi.Router) {
			r.Use(handler.ValidateServiceName)
			r.Get("/services/{name}", h.GetService)
			r.Post("/services/{name}/check", h.TriggerCheck)
			r.Post("/alerts/mute/{name}", h.MuteAlerts)
			r.Post("/alerts/unmute/{name}", h.UnmuteAlerts)
		})
	})

	r.Get("/ws", ws.HandleConnect)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Printf("pulsewatch listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	close(rotationStop)
	close(pruneStop)
	sched.Stop()
	stateManager.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}
