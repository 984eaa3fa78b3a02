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

	"github.com/mferraz/profai/internal/api"
	"github.com/mferraz/profai/internal/capture"
	"github.com/mferraz/profai/internal/chat"
	"github.com/mferraz/profai/internal/config"
	"github.com/mferraz/profai/internal/httpapi"
	"github.com/mferraz/profai/internal/ingest"
	"github.com/mferraz/profai/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	client := api.NewClient(cfg.BackendURL, cfg.BackendToken, cfg.RequestTimeout, cfg.UploadTimeout)

	subjects := api.DefaultSubjects
	catalogCtx, catalogCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if fetched, err := client.Subjects(catalogCtx); err == nil && len(fetched) > 0 {
		subjects = fetched
	} else if err != nil {
		log.Printf("subject catalog fetch failed, using built-in list: %v", err)
	}
	catalogCancel()

	controller := chat.NewController(client, subjects, metrics)

	loadCtx, loadCancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	if err := controller.LoadConversations(loadCtx); err != nil {
		// The UI can retry via the conversations endpoint; starting without
		// a loaded list is fine.
		log.Printf("initial conversation load failed: %v", err)
	}
	loadCancel()

	hub := httpapi.NewHub(metrics)
	recorder := capture.NewRecorder(client, controller, metrics, cfg.RecordingSampleRate, cfg.MaxRecordingBytes)
	player := capture.NewPlayer(client, hub, metrics)
	pipeline := ingest.NewPipeline(client, controller, metrics, cfg.MaxUploadBytes)

	srv := httpapi.New(cfg, controller, recorder, player, pipeline, client, hub, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: srv.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
