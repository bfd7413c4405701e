package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Renarion/hackathon-indrive-25/common/logger"
	"github.com/Renarion/hackathon-indrive-25/incident-collector/internal/config"
	"github.com/Renarion/hackathon-indrive-25/incident-collector/internal/service"

	"go.uber.org/zap"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	zl, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "incident-collector")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	zl.Info("Starting incident-collector service",
		zap.String("http_addr", cfg.HTTP.Addr),
		zap.String("db_host", cfg.Database.Host),
		zap.String("event_sink", cfg.Events.Sink),
		zap.Bool("notify_enabled", cfg.Notify.BotToken != ""),
	)

	// 创建服务
	collector, err := service.NewCollectorService(cfg, zl)
	if err != nil {
		zl.Fatal("Failed to create collector service", zap.Error(err))
	}

	// 启动服务
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := collector.Start(ctx); err != nil {
		zl.Fatal("Failed to start collector service", zap.Error(err))
	}

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	zl.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := collector.Stop(shutdownCtx); err != nil {
		zl.Error("Error during shutdown", zap.Error(err))
	}
	cancel()

	zl.Info("Service stopped")
}
