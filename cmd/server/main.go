package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/clipfetch/api"
	"github.com/yourusername/clipfetch/api/handlers"
	"github.com/yourusername/clipfetch/internal/app"
	"github.com/yourusername/clipfetch/internal/daemon"
	"github.com/yourusername/clipfetch/internal/domain"
	"github.com/yourusername/clipfetch/internal/infrastructure"
	"github.com/yourusername/clipfetch/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

var (
	serverMode = flag.Bool("server-mode", false, "Internal flag: run in server mode (called by daemon)")
	foreground = flag.Bool("foreground", false, "Run in the foreground instead of detaching")
	configPath = flag.String("config", "", "Path to config file")
)

func main() {
	flag.Parse()

	if !*serverMode && !*foreground {
		if err := detach(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to start daemon: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "clipfetch-server: %v\n", err)
		os.Exit(1)
	}
}

// detach re-executes this binary in server mode and returns immediately
func detach() error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	args := []string{"-server-mode"}
	if *configPath != "" {
		args = append(args, "-config", *configPath)
	}

	pid, err := daemon.Spawn(self, args...)
	if err != nil {
		return err
	}
	fmt.Printf("Server started as daemon (PID: %d)\n", pid)
	return nil
}

// run serves until a signal arrives or the queue auto-exits
func run(configPath string) error {
	config, err := app.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := createDirectories(config); err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// queue-*.log and error-*.log; the resolver appends process output to fetch-*.log
	multiLog, err := logger.NewMultiLogger(logger.MultiLoggerConfig{
		Level:   config.Logging.Level,
		LogsDir: config.Fetch.LogsDir(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize event logs: %w", err)
	}
	defer multiLog.Close()

	logAdapter := logger.NewLoggerAdapter(log, multiLog)
	defer func() { _ = logAdapter.Sync() }()

	log.Info("Starting clipfetch server",
		zap.String("version", handlers.Version),
		zap.String("resolver", config.Resolver.Binary),
		zap.Int("concurrent_limit", config.Fetch.ConcurrentLimit),
		zap.String("scratch_dir", config.Fetch.ScratchRoot()))

	repo, err := infrastructure.NewSQLiteFetchRepository(config.Queue.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()

	notifier := infrastructure.NewNotificationService(&config.Notification, log)
	resolver := infrastructure.NewYTDLPResolver(&config.Resolver, config.Fetch.LogsDir(), multiLog)
	fetchMgr := app.NewFetchManager(repo, resolver, app.NewProgressHub(0), notifier, &config.Fetch, log)
	queueMgr := app.NewQueueManager(repo, fetchMgr, &config.Queue, &config.Fetch, notifier, multiLog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if config.Fetch.AutoStartWorkers {
		if err := queueMgr.Start(ctx); err != nil {
			return fmt.Errorf("failed to start queue manager: %w", err)
		}
	}

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port),
		Handler:           api.SetupRouter(queueMgr, fetchMgr, logAdapter, config.Fetch.LogsDir()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		log.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case <-queueMgr.WaitForExit():
		log.Info("Queue manager triggered auto-exit (queue drained)")
	case runErr = <-serveErr:
		logAdapter.LogError("HTTP server failed", zap.Error(runErr))
	}

	log.Info("Shutting down server...")

	// Running fetches go back to the queue and resume on the next start
	if queueMgr.IsRunning() {
		if err := queueMgr.Stop(); err != nil {
			log.Error("Error stopping queue manager", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
	return runErr
}

func createDirectories(config *domain.Config) error {
	for _, dir := range []string{config.Fetch.BaseDir, config.Fetch.ScratchRoot(), config.Fetch.LogsDir()} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
