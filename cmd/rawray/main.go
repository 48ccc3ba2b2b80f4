package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	rawray "github.com/gwlsn/rawray"
	"github.com/gwlsn/rawray/internal/api"
	"github.com/gwlsn/rawray/internal/batch"
	"github.com/gwlsn/rawray/internal/config"
	"github.com/gwlsn/rawray/internal/encode"
	"github.com/gwlsn/rawray/internal/logger"
	"github.com/gwlsn/rawray/internal/raw"
	"github.com/gwlsn/rawray/internal/scan"
	"github.com/gwlsn/rawray/internal/store"
	"github.com/gwlsn/rawray/internal/watch"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file (default: ./config/rawray.yaml)")
	port := flag.Int("port", 8080, "Port to listen on")
	sourcePath := flag.String("source", "", "Override source path from config")
	flag.Parse()

	// Determine config path
	cfgPath := *configPath
	if cfgPath == "" {
		if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
			cfgPath = envPath
		} else {
			cfgPath = "config/rawray.yaml"
		}
	}

	// Load config
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Init("info")
		logger.Warn("Could not load config", "path", cfgPath, "error", err)
		cfg = config.DefaultConfig()
	}

	// Initialize logger with configured level
	logger.Init(cfg.LogLevel)

	// Override with environment variables and flags
	if envSource := os.Getenv("SOURCE_PATH"); envSource != "" {
		cfg.SourcePath = envSource
	}
	if *sourcePath != "" {
		cfg.SourcePath = *sourcePath
	}

	// Validate source path exists
	if _, err := os.Stat(cfg.SourcePath); os.IsNotExist(err) {
		logger.Error("Source path does not exist", "path", cfg.SourcePath)
		os.Exit(1)
	}

	// Determine config directory for data storage
	configDir := filepath.Dir(cfgPath)
	if configDir == "." {
		configDir = "config"
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		logger.Warn("Could not create config directory", "error", err)
	}

	// Initialize the run history store (marks interrupted runs failed)
	runStore, err := store.InitStore(configDir)
	if err != nil {
		logger.Error("Failed to initialize run store", "error", err)
		os.Exit(1)
	}
	defer runStore.Close()

	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║                          RAWRAY                           ║")
	fmt.Println("║            Batch RAW photo conversion service             ║")
	versionLine := fmt.Sprintf("v%s", rawray.Version)
	padding := 59 - len(versionLine)
	fmt.Printf("║%*s%s%*s║\n", padding/2, "", versionLine, (padding+1)/2, "")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Source path:  %s\n", cfg.SourcePath)
	fmt.Printf("  Config:       %s\n", cfgPath)
	fmt.Printf("  Database:     %s\n", runStore.Path())
	if cfg.OutputPath != "" {
		fmt.Printf("  Output path:  %s\n", cfg.OutputPath)
	} else {
		fmt.Printf("  Output path:  (beside each source file)\n")
	}
	fmt.Printf("  Format:       %s (quality %d)\n", cfg.Format, cfg.Quality)
	fmt.Printf("  Dcraw:        %s\n", cfg.DcrawPath)
	if cfg.WatchPath != "" {
		fmt.Printf("  Watch inbox:  %s\n", cfg.WatchPath)
	}
	fmt.Println()

	// Initialize components
	scanner := scan.NewScanner(cfg.SourcePath)
	decoder := raw.NewDecoder(cfg.DcrawPath)

	queue, err := batch.NewQueueWithStore(runStore)
	if err != nil {
		logger.Error("Failed to initialize run queue", "error", err)
		runStore.Close()
		os.Exit(1)
	}

	runner := batch.NewRunner(queue, decoder, func(format string) (batch.Encoder, error) {
		return encode.ForFormat(format)
	})

	// Create API handler
	handler := api.NewHandler(scanner, queue, cfg, cfgPath)
	handler.SetStore(runStore)
	router := api.NewRouter(handler)

	// Start the conversion worker
	runner.Start()

	// Optional inbox watcher: new RAW files become single-item runs with
	// the configured defaults.
	var watcher *watch.Watcher
	if cfg.WatchPath != "" {
		watcher = watch.New(cfg.WatchPath, watch.DefaultSettle, func(path string) {
			dest := batch.SourceRelative()
			if cfg.OutputPath != "" {
				dest = batch.FixedDirectory(cfg.OutputPath)
			}
			run, err := batch.NewRun([]string{path}, dest, cfg.Format, cfg.Quality, cfg.DeleteOriginals)
			if err != nil {
				logger.Warn("Could not build run for inbox file", "file", path, "error", err)
				return
			}
			if err := queue.Add(run); err != nil {
				logger.Warn("Could not enqueue inbox file", "file", path, "error", err)
			}
		})
		if err := watcher.Start(); err != nil {
			logger.Error("Failed to watch inbox", "dir", cfg.WatchPath, "error", err)
			os.Exit(1)
		}
	}

	fmt.Printf("  Starting server on port %d\n", *port)
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	logger.Info("Rawray started", "version", rawray.Version, "format", cfg.Format, "port", *port)

	// Set up graceful shutdown
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\n  Shutting down...")
		logger.Info("Shutdown signal received")
		if watcher != nil {
			watcher.Stop()
		}
		runner.Stop()
		server.Close()
	}()

	// Start server
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Error("Server error", "error", err)
		runner.Stop()
		os.Exit(1)
	}

	logger.Info("Server stopped")
	fmt.Println("  Goodbye!")
}
