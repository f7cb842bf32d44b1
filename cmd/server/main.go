package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/kiwix-monitor-go/api"
	"github.com/yourusername/kiwix-monitor-go/internal/app"
	"github.com/yourusername/kiwix-monitor-go/internal/domain"
	"github.com/yourusername/kiwix-monitor-go/internal/infrastructure"
	"github.com/yourusername/kiwix-monitor-go/pkg/logger"
)

var (
	serverMode = flag.Bool("server-mode", false, "Internal flag: run in server mode (called by daemon)")
	foreground = flag.Bool("foreground", false, "Run in the current process instead of forking a daemon")
	configPath = flag.String("config", "", "Path to config file")
)

func main() {
	flag.Parse()

	if !*serverMode && !*foreground {
		startAsDaemon()
		return
	}

	if err := runServer(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// startAsDaemon forks the current process and runs the server in background
func startAsDaemon() {
	execPath, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get executable path: %v\n", err)
		os.Exit(1)
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "/"
	}

	args := []string{"-server-mode"}
	if *configPath != "" {
		args = append(args, "-config", *configPath)
	}
	cmd := exec.Command(execPath, args...)
	cmd.Dir = cwd
	cmd.Env = os.Environ()
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open /dev/null: %v\n", err)
		os.Exit(1)
	}
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start daemon: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Server started as daemon (PID: %d)\n", cmd.Process.Pid)
	os.Exit(0)
}

func runServer() error {
	bootLog := logger.NewDefault()

	var (
		mu          sync.Mutex
		center      *infrastructure.NotificationCenter
		host        *infrastructure.ProcessHost
		coordinator *app.SessionCoordinator
	)
	config, err := app.WatchConfig(*configPath, bootLog, func(updated *domain.Config) {
		mu.Lock()
		defer mu.Unlock()
		if center != nil {
			center.SetConfig(updated.Notification)
		}
		if coordinator != nil {
			coordinator.Notifier().SetConfig(updated.Notification)
		}
		if host != nil {
			host.SetExitWhenIdle(updated.Session.ExitWhenIdle)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	multiLog, err := logger.NewMultiLogger(logger.MultiLoggerConfig{
		Level:   config.Logging.Level,
		LogsDir: config.Logging.LogsDir,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize category logs: %w", err)
	}
	defer multiLog.Close()

	log.Info("Starting Kiwix monitor",
		zap.String("version", api.Version),
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.String("store", config.Store.Driver),
		zap.String("foreground_source", config.Session.ForegroundSource))

	repo, err := infrastructure.NewOperationRepository(config.Store)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()

	validator, err := infrastructure.NewEventValidator()
	if err != nil {
		return err
	}
	bridge := infrastructure.NewEngineBridge(validator, log)

	mu.Lock()
	center = infrastructure.NewNotificationCenter(config.Notification, log)
	host = infrastructure.NewProcessHost(center, config.Session.ExitWhenIdle, log)
	coordinator = app.NewSessionCoordinator(repo, bridge, center, host, config, log, multiLog)
	mu.Unlock()
	defer center.Close()

	router, stream := api.SetupRouter(api.Dependencies{
		Coordinator: coordinator,
		Bridge:      bridge,
		Center:      center,
		Logger:      log,
		MultiLogger: multiLog,
		LogsDir:     config.Logging.LogsDir,
		AuthSecret:  config.Server.AuthSecret,
	})
	defer stream.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := coordinator.Start(ctx, config.Session.DisplayName); err != nil {
		return fmt.Errorf("failed to start session coordinator: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("Received shutdown signal")
	case <-host.Done():
		log.Info("Host idle, exiting")
	case <-coordinator.Done():
		log.Info("Stop command received")
	case err := <-serveErr:
		log.Error("HTTP server failed", zap.Error(err))
	}

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := coordinator.Stop(); err != nil && err != domain.ErrCoordinatorStopped {
		log.Error("Error stopping session coordinator", zap.Error(err))
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
	return nil
}
