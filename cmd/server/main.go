// Tetris Versus Server - Main Entry Point
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tetris-versus/internal/config"
	"tetris-versus/internal/game"
	"tetris-versus/internal/server"
	"tetris-versus/internal/storage"
	"tetris-versus/pkg/logger"
)

var (
	version    = "1.0.0"
	buildTime  = "dev"
	configFile = flag.String("config", "", "JSON configuration file (optional)")
	port       = flag.Int("port", 8080, "Server port")
	host       = flag.String("host", "0.0.0.0", "Server host")
	dataDir    = flag.String("data-dir", "data", "Data directory path")
	statusAddr = flag.String("status-addr", ":8081", "HTTP status and spectator address, empty to disable")
	logLevel   = flag.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	logFile    = flag.String("log-file", "", "Log file path (optional)")
	help       = flag.Bool("help", false, "Show help information")
	ver        = flag.Bool("version", false, "Show version information")
)

const shutdownTimeout = 5 * time.Second

func main() {
	flag.Parse()

	if *help {
		showHelp()
		return
	}
	if *ver {
		showVersion()
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if err := initLogging(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	logger.Server.Info("Starting Tetris Versus Server v%s", version)

	store := storage.NewFileStore(cfg.DataDir)
	if err := store.Initialize(); err != nil {
		logger.Server.Fatal("Failed to initialize score store: %v", err)
	}
	logger.Server.Info("Score store initialized in %s", cfg.DataDir)

	opts := game.DefaultOptions()
	opts.Level = cfg.Game.Level
	opts.LockDelay = cfg.LockDelay()
	mm := server.NewMatchmaker(store, server.MatchConfig{
		Engine:      opts,
		RefillBelow: cfg.Game.RefillBags * game.BagSize,
	})

	listener := server.NewListener(cfg.Address(), cfg.AcceptTimeout(), mm)
	if err := listener.Listen(); err != nil {
		logger.Server.Fatal("Server failed to start: %v", err)
	}

	var gateway *server.Gateway
	if cfg.StatusAddr != "" {
		gateway = server.NewGateway(cfg.StatusAddr, mm, store)
		go func() {
			if err := gateway.ListenAndServe(); err != nil {
				logger.Server.Error("Spectator gateway stopped: %v", err)
			}
		}()
	}

	waitForShutdown()

	logger.Server.Info("Received shutdown signal, stopping server...")
	if err := listener.Close(); err != nil {
		logger.Server.Warn("Listener close: %v", err)
	}
	if gateway != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := gateway.Shutdown(ctx); err != nil {
			logger.Server.Warn("Gateway shutdown: %v", err)
		}
		cancel()
	}
	mm.Stop()
	logger.Server.Info("Server stopped")
}

// loadConfig reads the optional config file, then applies explicitly set flags
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "host":
			cfg.Host = *host
		case "data-dir":
			cfg.DataDir = *dataDir
		case "status-addr":
			cfg.StatusAddr = *statusAddr
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-file":
			cfg.LogFile = *logFile
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// initLogging sets up the logging system
func initLogging(cfg *config.Config) error {
	logger.SetGlobalLogLevel(logger.ParseLevel(cfg.LogLevel))

	if cfg.LogFile != "" {
		if err := logger.Server.SetFile(cfg.LogFile); err != nil {
			return fmt.Errorf("failed to set log file: %w", err)
		}
		logger.Server.Info("Logging to file: %s", cfg.LogFile)
	} else if err := logger.InitializeFileLogging("./logs"); err != nil {
		logger.Server.Warn("Could not initialize file logging: %v", err)
	}
	return nil
}

func waitForShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	signal.Stop(c)
}

// showHelp displays help information
func showHelp() {
	fmt.Printf(`Tetris Versus Server v%s

USAGE:
    %s [OPTIONS]

OPTIONS:
    -config string       JSON configuration file (optional)
    -port int            Server port (default 8080)
    -host string         Server host (default "0.0.0.0")
    -data-dir string     Data directory path (default "data")
    -status-addr string  HTTP status and spectator address (default ":8081")
    -log-level string    Set log level (DEBUG, INFO, WARN, ERROR) (default "INFO")
    -log-file string     Set log file path (optional)
    -help                Show this help message
    -version             Show version information

Flags given on the command line override values from -config.

EXAMPLES:
    # Start server with default settings
    %s

    # Start on a specific port with debug logging
    %s -port 9000 -log-level DEBUG

    # Use a config file and disable the HTTP gateway
    %s -config server.json -status-addr ""

HTTP GATEWAY:
    GET /matches             Active matches with scores and spectator counts
    GET /scores              Best stored high scores
    GET /ws/matches/{id}     WebSocket spectator stream of board snapshots
`, version, os.Args[0], os.Args[0], os.Args[0], os.Args[0])
}

// showVersion displays version information
func showVersion() {
	fmt.Printf(`Tetris Versus Server
Version: %s
Build Time: %s
`, version, buildTime)
}
