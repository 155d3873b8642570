package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tvvoo-addon/work/catalog"
	"tvvoo-addon/work/client"
	"tvvoo-addon/work/config"
	"tvvoo-addon/work/handlers"
	"tvvoo-addon/work/logger"
	"tvvoo-addon/work/logos"
	"tvvoo-addon/work/memo"
	"tvvoo-addon/work/middleware"
	"tvvoo-addon/work/signature"
)

var (
	Version = "v1.1.23" // default version
)

// our main app worker
func main() {

	// load our config
	cfg := config.LoadConfig()

	// set up leveled logging
	lvl := cfg.LogLevel
	if cfg.Debug {
		lvl = "DEBUG"
	}
	appLogger := logger.New(lvl)

	// initialize the outbound HTTP client
	backendClient := client.New(cfg)

	// initialize the worker pool for logo enrichment
	workerPool, err := ants.NewPool(cfg.WorkerThreads, ants.WithPreAlloc(true))
	if err != nil {
		log.Fatalf("Failed to create worker pool: %v", err)
	}
	defer workerPool.Release()

	// logo table, loaded from disk
	logoStore := logos.NewStore(cfg, backendClient, workerPool, appLogger)
	logoStore.Load()

	// signature service
	signatures := signature.New(cfg, backendClient, appLogger)

	// catalog manager, loaded from disk
	catalogManager := catalog.New(cfg, backendClient, signatures, logoStore, appLogger)
	catalogManager.Load()

	// per-stream client IP memo
	ipMemo := memo.New()

	app := &handlers.App{
		Config:     cfg,
		Logger:     appLogger,
		Client:     backendClient,
		Signatures: signatures,
		Catalog:    catalogManager,
		Logos:      logoStore,
		Memo:       ipMemo,
	}

	// setup HTTP routes
	router := mux.NewRouter()
	router.Use(middleware.CORS)
	router.Use(app.CaptureClientIP)

	// addon surface, uncacheable and gzip-compressed
	addon := router.NewRoute().Subrouter()
	addon.Use(middleware.NoStore)
	addon.Use(middleware.Gzip)

	addon.HandleFunc("/manifest.json", app.HandleManifest()).Methods("GET", "OPTIONS")
	addon.HandleFunc("/cfg-{cfg}/manifest.json", app.HandleConfiguredManifest()).Methods("GET", "OPTIONS")
	for _, prefix := range []string{"", "/cfg-{cfg}"} {
		addon.HandleFunc(prefix+"/catalog/tv/{id}.json", app.HandleCatalog()).Methods("GET", "OPTIONS")
		addon.HandleFunc(prefix+"/meta/tv/{id}.json", app.HandleMeta()).Methods("GET", "OPTIONS")
		addon.HandleFunc(prefix+"/stream/tv/{id}.json", app.HandleStream()).Methods("GET", "OPTIONS")
	}

	// operational surface
	router.HandleFunc("/health", app.HandleHealth()).Methods("GET")
	router.HandleFunc("/cache/status", app.HandleCacheStatus()).Methods("GET")
	router.HandleFunc("/cache/refresh", app.HandleRefresh()).Methods("POST", "GET")
	router.HandleFunc("/debug/ip", app.HandleDebugIP()).Methods("GET")
	router.HandleFunc("/debug/resolve", app.HandleDebugResolve()).Methods("GET")

	// metrics handler
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	addr := fmt.Sprintf(":%d", cfg.ListenPort)

	// show info
	appLogger.Info("{main} starting TvVoo addon %s", Version)
	appLogger.Info("{main} server configuration:")
	appLogger.Info("{main}   - Base URL: %s", cfg.BaseURL)
	appLogger.Info("{main}   - Data Dir: %s", cfg.DataDir)
	appLogger.Info("{main}   - Countries: %d", len(config.Countries()))
	appLogger.Info("{main}   - Worker Threads: %d", cfg.WorkerThreads)
	appLogger.Info("{main}   - Refresh At: %s %s", cfg.RefreshAt, cfg.RefreshTimezone)
	appLogger.Info("{main}   - Boot Refresh: %v", cfg.BootRefresh)
	appLogger.Info("{main}   - Debug Enabled: %v", cfg.Debug)
	appLogger.Info("{main}   - URL Obfuscation: %v", cfg.ObfuscateUrls)

	// refresh at boot when asked to, or when nothing usable came off disk
	if cfg.BootRefresh || catalogManager.Snapshot().UpdatedAt == 0 {
		go catalogManager.Refresh(context.Background())
	}

	// daily refresh schedule
	catalogManager.StartScheduler()
	defer catalogManager.StopScheduler()

	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// shut down cleanly on SIGINT/SIGTERM
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		appLogger.Info("{main} shutdown requested")
		catalogManager.StopScheduler()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			appLogger.Error("{main} shutdown error: %v", err)
		}
	}()

	appLogger.Info("{main} listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed: %v", err)
	}
}
