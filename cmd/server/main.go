package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/hertz/pkg/app/server"

	"watchparty/internal/config"
	"watchparty/internal/hertzapi"
	"watchparty/internal/httpapi"
	"watchparty/internal/logger"
	"watchparty/internal/metrics"
	"watchparty/internal/session"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err := run(cfg, *configPath, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, configPath string, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 创建会话协调器
	m := metrics.New()
	coordinator := session.New(session.Options{
		SyncThreshold: cfg.Coordinator.SyncThreshold,
		ChatHistory:   cfg.Coordinator.ChatHistory,
		SendQueue:     cfg.Coordinator.SendQueue,
		WriteTimeout:  cfg.Coordinator.WriteTimeout,
		MaxFrameBytes: cfg.Coordinator.MaxFrameBytes,
		Logger:        log,
		Metrics:       m,
	})
	log.Info("session created", "session", coordinator.ID(), "threshold", cfg.Coordinator.SyncThreshold)

	ln, err := net.Listen("tcp", cfg.Coordinator.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Coordinator.Listen, err)
	}
	log.Info("coordinator listening", "address", ln.Addr().String())

	errCh := make(chan error, 2)
	go func() {
		errCh <- coordinator.ServeListener(ctx, ln)
	}()

	if configPath != "" {
		go func() {
			// 配置文件变更时更新同步阈值
			err := config.Watch(ctx, configPath, log, func(next *config.Config) {
				if err := coordinator.SetSyncThreshold(ctx, next.Coordinator.SyncThreshold); err != nil {
					log.Warn("threshold not applied", "error", err)
				}
			})
			if err != nil {
				log.Warn("config watch stopped", "error", err)
			}
		}()
	}

	var shutdownHTTP func(context.Context) error
	if cfg.HTTP.Enabled {
		shutdownHTTP = startHTTP(cfg.HTTP, coordinator, m, log, errCh)
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			stop()
			return err
		}
	}
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if shutdownHTTP != nil {
		if err := shutdownHTTP(shutdownCtx); err != nil {
			log.Warn("graceful shutdown failed", "error", err)
		}
	}
	ln.Close()
	coordinator.Close(shutdownCtx)

	log.Info("server stopped")
	return nil
}

// startHTTP 启动管理接口，引擎由配置选择
func startHTTP(cfg config.HTTPConfig, coordinator *session.Coordinator, m *metrics.Metrics, log *slog.Logger, errCh chan<- error) func(context.Context) error {
	if cfg.Engine == "hertz" {
		h := server.Default(server.WithHostPorts(cfg.Address))
		router := hertzapi.NewRouter(h, coordinator, m, log)
		go func() {
			log.Info("starting hertz server", "address", cfg.Address)
			if err := router.Run(); err != nil {
				errCh <- fmt.Errorf("hertz: %w", err)
			}
		}()
		return router.Shutdown
	}

	srv := &http.Server{
		Addr:    cfg.Address,
		Handler: httpapi.NewServer(coordinator, m, log).Router(),
	}
	go func() {
		log.Info("starting echo server", "address", cfg.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()
	return srv.Shutdown
}
