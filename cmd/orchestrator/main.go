package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"acadgen/internal/config"
	"acadgen/internal/httpapi"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Create router with all dependencies
	mux, deps, err := httpapi.NewRouter(cfg)
	if err != nil {
		log.Fatalf("Failed to build router: %v", err)
	}

	// Create HTTP server
	addr := ":" + cfg.HTTPPort
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Generation orchestrator listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Let in-flight generation jobs finish before tearing down downstreams
	if deps.Orchestrator != nil {
		if err := deps.Orchestrator.Shutdown(ctx); err != nil {
			log.Printf("Failed to shutdown orchestrator: %v", err)
		}
	}

	// Stop the recorder, draining queued usage and audit records
	if deps.Recorder != nil {
		if err := deps.Recorder.Stop(); err != nil {
			log.Printf("Failed to stop recorder: %v", err)
		}
	}

	// Flush remaining generation logs to the ops sink
	if sink, ok := deps.Sink.(interface{ Shutdown(context.Context) error }); ok {
		if err := sink.Shutdown(ctx); err != nil {
			log.Printf("Failed to shutdown logging sink: %v", err)
		}
	}

	if deps.DB != nil {
		_ = deps.DB.Close()
	}
	if deps.Redis != nil {
		_ = deps.Redis.Close()
	}

	log.Println("Server exited")
}
