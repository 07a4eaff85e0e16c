package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/swanhtet/medbridge/internal/config"
	"github.com/swanhtet/medbridge/internal/logging"
	"github.com/swanhtet/medbridge/internal/storage"
	syncpkg "github.com/swanhtet/medbridge/internal/sync"
	"github.com/swanhtet/medbridge/internal/sync/queue"
	"github.com/swanhtet/medbridge/internal/sync/scheduler"
)

func main() {
	configPath := flag.String("config", "medbridge.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Init(os.Stderr, "info")
		logging.Error("Failed to load configuration", err,
			map[string]interface{}{"path": *configPath})
		os.Exit(1)
	}

	logging.Init(os.Stdout, cfg.Server.LogLevel)
	logging.Info("MedBridge sync daemon starting", map[string]interface{}{
		"listen_addr": cfg.Server.ListenAddr,
		"data_dir":    cfg.Server.DataDir,
		"remote":      cfg.Remote.BaseURL,
	})

	store, err := storage.Open(cfg.Server.DataDir)
	if err != nil {
		logging.Error("Failed to open local storage", err,
			map[string]interface{}{"data_dir": cfg.Server.DataDir})
		os.Exit(1)
	}
	defer store.Close()

	q := queue.New(store, queue.Config{
		MaxRetries: cfg.Queue.MaxRetries,
		MaxSize:    cfg.Queue.MaxSize,
	})
	q.Load()

	remote := syncpkg.NewHTTPRemote(syncpkg.HTTPRemoteConfig{
		BaseURL:       cfg.Remote.BaseURL,
		SubmitPath:    cfg.Remote.SubmitPath,
		HealthPath:    cfg.Remote.HealthPath,
		AuthToken:     cfg.Remote.AuthToken,
		SubmitTimeout: cfg.SubmitTimeout(),
		ProbeTimeout:  cfg.ProbeTimeout(),
	})

	monitor := syncpkg.NewMonitor(remote)
	hub := NewWSHub()

	service := syncpkg.NewService(q, remote, monitor, store, syncpkg.ServiceConfig{
		Events:          hub,
		ConflictHistory: cfg.Queue.ConflictHistory,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(service, monitor, scheduler.Config{
		DrainInterval: cfg.DrainInterval(),
		ProbeInterval: cfg.ProbeInterval(),
	})
	sched.Start(ctx)

	mux := http.NewServeMux()
	NewSyncHandler(service).Routes(mux, hub)

	server := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	logging.Info("API listening", map[string]interface{}{"addr": cfg.Server.ListenAddr})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info("Shutting down", map[string]interface{}{"signal": sig.String()})
	case err := <-errCh:
		logging.Error("API server stopped unexpectedly", err, nil)
	}

	// Stop the background loops before the API so no drain pass starts
	// mid-shutdown, then let in-flight requests finish.
	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Warn("API shutdown timed out",
			map[string]interface{}{"error": err.Error()})
	}

	logging.Info("MedBridge sync daemon stopped", nil)
}
