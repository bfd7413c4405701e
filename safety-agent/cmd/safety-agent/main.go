package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Renarion/hackathon-indrive-25/common/logger"
	"github.com/Renarion/hackathon-indrive-25/safety-agent/internal/config"
	"github.com/Renarion/hackathon-indrive-25/safety-agent/internal/service"

	"go.uber.org/zap"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	zl, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "safety-agent")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	zl.Info("Starting safety-agent service",
		zap.String("device_id", cfg.Agent.DeviceID),
		zap.String("mqtt_broker", cfg.MQTT.Broker),
		zap.String("sensor_topic", cfg.Topics.Sensor),
		zap.String("upload_host", cfg.Agent.EndpointHost),
	)

	// 创建服务
	agent, err := service.NewAgentService(cfg, zl)
	if err != nil {
		zl.Fatal("Failed to create agent service", zap.Error(err))
	}

	// 启动服务
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := agent.Start(ctx); err != nil {
		zl.Fatal("Failed to start agent service", zap.Error(err))
	}

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	zl.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	// 进行中的采集与上传最多等待 RecordDuration + UploadTimeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Evidence.RecordDuration+cfg.Upload.Timeout+5*time.Second)
	defer shutdownCancel()
	if err := agent.Stop(shutdownCtx); err != nil {
		zl.Error("Error during shutdown", zap.Error(err))
	}
	cancel()

	zl.Info("Service stopped")
}
