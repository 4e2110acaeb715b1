package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/subh7987/hyper-link-remover/internal/db"
	"github.com/subh7987/hyper-link-remover/internal/handlers"
	"github.com/subh7987/hyper-link-remover/web"
)

func cmdServe(args []string) error {
	flags := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := flags.String("config", "", "YAML config file")
	port := flags.String("port", "", "listen port (overrides config)")
	openBrowserFlag := flags.Bool("open", false, "open the browser once the server is up")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, log, err := setup(*configPath)
	if err != nil {
		return err
	}
	defer log.Sync()

	if *port != "" {
		cfg.Port = *port
	}

	// Open database
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	log.Info("Database opened", zap.String("path", cfg.DBPath))
	log.Info("Folders configured",
		zap.String("input", cfg.InputPath),
		zap.String("output", cfg.OutputPath),
		zap.String("mode", string(cfg.CleanMode())))

	// Initialize handlers with embedded templates
	h := handlers.New(database, cfg, log)
	if err := h.LoadTemplates(web.Assets); err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	// Static files from embedded assets
	staticFS, err := fs.Sub(web.Assets, "static")
	if err != nil {
		return fmt.Errorf("failed to get static files: %w", err)
	}

	srv := &http.Server{
		Addr:         cfg.Address(),
		Handler:      h.Routes(staticFS),
		ReadTimeout:  5 * time.Minute, // Large uploads
		WriteTimeout: 5 * time.Minute, // Increased for SSE connections
		IdleTimeout:  60 * time.Second,
	}

	// Create shutdown signal channel
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Info("Starting server", zap.String("url", cfg.URL()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if *openBrowserFlag {
		time.Sleep(500 * time.Millisecond) // Give server time to start
		if err := openBrowser(cfg.URL()); err != nil {
			log.Warn("Failed to open browser", zap.String("url", cfg.URL()), zap.Error(err))
		}
	}

	// Wait for interrupt signal or a failed listener
	select {
	case <-sigChan:
		log.Info("Shutting down gracefully")
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}

	log.Info("Server stopped")
	return nil
}

// openBrowser opens the default browser to the specified URL
func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	return cmd.Start()
}
