package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/Renarion/hackathon-indrive-25/common/database"
	"github.com/Renarion/hackathon-indrive-25/common/redis"
	"github.com/Renarion/hackathon-indrive-25/incident-collector/internal/config"
	"github.com/Renarion/hackathon-indrive-25/incident-collector/internal/httpapi"
	"github.com/Renarion/hackathon-indrive-25/incident-collector/internal/metrics"
	"github.com/Renarion/hackathon-indrive-25/incident-collector/internal/notifier"
	"github.com/Renarion/hackathon-indrive-25/incident-collector/internal/publisher"
	"github.com/Renarion/hackathon-indrive-25/incident-collector/internal/repository"
	"github.com/Renarion/hackathon-indrive-25/incident-collector/internal/storage"

	"go.uber.org/zap"
)

// CollectorService 事故采集服务
type CollectorService struct {
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	redisClient *redis.Client
	publisher   publisher.EventPublisher
	repo        *repository.IncidentRepository
	incidents   *IncidentService
	server      *Server
	serveErr    chan error
}

// NewCollectorService 连接数据库与事件通道并组装服务
func NewCollectorService(cfg *config.Config, logger *zap.Logger) (*CollectorService, error) {
	db, err := database.Connect(context.Background(), &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s, err := newCollectorService(cfg, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func newCollectorService(cfg *config.Config, db *sql.DB, logger *zap.Logger) (*CollectorService, error) {
	s := &CollectorService{
		config: cfg,
		logger: logger,
		db:     db,
		repo:   repository.NewIncidentRepository(db, logger.Named("repository")),
	}

	switch cfg.Events.Sink {
	case config.SinkRedis:
		ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		client, err := redis.Connect(ctx, &cfg.Redis)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		s.redisClient = client
		s.publisher = publisher.NewRedisStreamPublisher(s.redisClient, cfg.Events.Stream, cfg.Events.MaxLen, logger.Named("publisher"))
	case config.SinkKafka:
		writer := publisher.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		s.publisher = publisher.NewKafkaPublisher(writer, logger.Named("publisher"))
	default:
		s.publisher = publisher.NopPublisher{}
	}

	n := notifier.New(notifier.Config{
		BaseURL:  cfg.Notify.BaseURL,
		BotToken: cfg.Notify.BotToken,
		ChatID:   cfg.Notify.ChatID,
		Timeout:  cfg.Notify.Timeout,
	}, logger.Named("notifier"))

	m := metrics.New()
	s.incidents = NewIncidentService(s.repo, storage.NewFileStore(cfg.Storage.Dir), s.publisher, n, m, logger.Named("incidents"))

	handler := httpapi.NewIncidentHandler(s.incidents, cfg.HTTP.MaxUploadBytes, logger.Named("http"))
	s.server = NewServer(cfg.HTTP.Addr, httpapi.NewRouter(handler, m, logger), logger)
	return s, nil
}

// Incidents 事故服务
func (s *CollectorService) Incidents() *IncidentService {
	return s.incidents
}

// Start 建表并启动 HTTP 服务器
func (s *CollectorService) Start(ctx context.Context) error {
	s.logger.Info("Starting incident collector",
		zap.String("addr", s.config.HTTP.Addr),
		zap.String("event_sink", s.config.Events.Sink),
		zap.String("storage_dir", s.config.Storage.Dir),
	)

	if err := s.repo.EnsureSchema(ctx); err != nil {
		return err
	}

	s.serveErr = make(chan error, 1)
	go func() {
		err := s.server.Start()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
		s.serveErr <- err
	}()

	s.logger.Info("Incident collector started successfully")
	return nil
}

// Stop 关闭 HTTP 服务器并释放连接
func (s *CollectorService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping incident collector")

	var errs []error
	if s.serveErr != nil {
		if err := s.server.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop HTTP server: %w", err))
		}
		<-s.serveErr
	}

	if err := s.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close publisher: %w", err))
	}
	if err := redis.Close(s.redisClient); err != nil {
		errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
	}
	if err := database.Close(s.db); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database: %w", err))
	}

	s.logger.Info("Incident collector stopped")
	return errors.Join(errs...)
}
