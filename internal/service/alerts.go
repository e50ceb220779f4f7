package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"critical-alerts/common/database"
	"critical-alerts/common/logger"
	mqttcommon "critical-alerts/common/mqtt"
	rediscommon "critical-alerts/common/redis"
	"critical-alerts/internal/broadcast"
	"critical-alerts/internal/client"
	"critical-alerts/internal/config"
	"critical-alerts/internal/evaluator"
	"critical-alerts/internal/httpapi"
	"critical-alerts/internal/models"
	"critical-alerts/internal/poller"
	"critical-alerts/internal/repository"
	"critical-alerts/internal/scanner"
	"critical-alerts/internal/store"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Dependencies 服务依赖（生产环境由 NewCriticalAlertService 创建，测试可直接注入）
type Dependencies struct {
	API   client.API
	KV    store.KV
	Redis *redis.Client              // 可选：变更写入 Redis Stream
	MQTT  broadcast.MessagePublisher // 可选：向排队显示屏推送快照
}

// CriticalAlertService 危急值通知服务
type CriticalAlertService struct {
	config *config.Config
	logger *zap.Logger

	db         *sql.DB
	redis      *redis.Client
	mqttClient *mqttcommon.Client

	api     client.API
	store   *store.Store
	poller  *poller.QueueStatusPoller
	scanner *scanner.InitialScanner
	stream  *broadcast.StreamPublisher
	display *broadcast.MQTTPublisher

	httpServer  *http.Server
	httpAddr    string
	unsubscribe []func()
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewCriticalAlertService 按配置建立外部连接并创建服务
func NewCriticalAlertService(cfg *config.Config, log *zap.Logger) (*CriticalAlertService, error) {
	ctx := context.Background()
	deps := Dependencies{}

	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	redisErr := rediscommon.Ping(ctx, redisClient)

	var db *sql.DB
	switch cfg.Alerts.Storage.Backend {
	case config.StoragePostgres:
		var err error
		db, err = database.NewPostgresDB(ctx, &cfg.Database)
		if err != nil {
			rediscommon.Close(redisClient)
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		repo := repository.NewSlotRepository(db, logger.Component(log, "slot_repository"))
		if err := repo.EnsureSchema(ctx); err != nil {
			database.Close(db)
			rediscommon.Close(redisClient)
			return nil, err
		}
		deps.KV = repo
	case config.StorageRedis:
		if redisErr != nil {
			rediscommon.Close(redisClient)
			return nil, fmt.Errorf("failed to connect to redis: %w", redisErr)
		}
		deps.KV = store.NewRedisKV(redisClient)
	default:
		rediscommon.Close(redisClient)
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Alerts.Storage.Backend)
	}

	if redisErr == nil {
		deps.Redis = redisClient
	} else {
		log.Warn("Redis unavailable, change stream disabled", zap.Error(redisErr))
		rediscommon.Close(redisClient)
		redisClient = nil
	}

	var mqttClient *mqttcommon.Client
	if cfg.Alerts.Broadcast.MQTTTopic != "" {
		c, err := mqttcommon.NewClient(&cfg.MQTT, logger.Component(log, "mqtt"))
		if err != nil {
			log.Warn("MQTT unavailable, queue display push disabled", zap.Error(err))
		} else {
			mqttClient = c
			deps.MQTT = c
		}
	}

	deps.API = client.NewHospitalAPI(client.Options{
		BaseURL:    cfg.API.BaseURL,
		Token:      cfg.API.Token,
		Timeout:    cfg.API.Timeout,
		RetryCount: cfg.API.RetryCount,
	}, logger.Component(log, "hospital_api"))

	s := New(cfg, log, deps)
	s.db = db
	s.redis = redisClient
	s.mqttClient = mqttClient
	return s, nil
}

// New 用已建立的依赖组装服务
func New(cfg *config.Config, log *zap.Logger, deps Dependencies) *CriticalAlertService {
	// 就诊观测记录需覆盖启动扫描的取数窗口，之后按轮询节奏回收
	ttl := cfg.Alerts.ScanDelay + cfg.API.Timeout + 3*cfg.Alerts.PollInterval
	st := store.NewStore(deps.KV, cfg.Alerts.Storage.Key, logger.Component(log, "store"),
		store.WithTombstoneTTL(ttl))

	s := &CriticalAlertService{
		config: cfg,
		logger: log,
		api:    deps.API,
		store:  st,
		poller: poller.NewQueueStatusPoller(deps.API, st, poller.Options{
			Interval:    cfg.Alerts.PollInterval,
			Concurrency: cfg.Alerts.CheckConcurrency,
			PageSize:    cfg.API.PageSize,
		}, logger.Component(log, "poller")),
		scanner: scanner.NewInitialScanner(deps.API, st, scanner.Options{
			Delay:    cfg.Alerts.ScanDelay,
			PageSize: cfg.API.PageSize,
		}, logger.Component(log, "scanner")),
	}

	if deps.Redis != nil && cfg.Alerts.Broadcast.Stream != "" {
		s.stream = broadcast.NewStreamPublisher(deps.Redis, cfg.Alerts.Broadcast.Stream,
			cfg.Alerts.Broadcast.StreamMaxLen, logger.Component(log, "stream"))
	}
	if deps.MQTT != nil && cfg.Alerts.Broadcast.MQTTTopic != "" {
		s.display = broadcast.NewMQTTPublisher(deps.MQTT, cfg.Alerts.Broadcast.MQTTTopic,
			st.List, logger.Component(log, "display"))
	}
	return s
}

// Start 恢复持久化通知并启动轮询、启动扫描和 HTTP 服务（非阻塞）
func (s *CriticalAlertService) Start(ctx context.Context) error {
	s.logger.Info("Starting critical alert service components")

	if err := s.store.Init(ctx); err != nil {
		// 槽位读取失败：以空存储继续运行
		s.logger.Warn("Starting with empty notification store", zap.Error(err))
	}

	if s.stream != nil {
		s.unsubscribe = append(s.unsubscribe, s.store.Subscribe(s.stream.Handle))
	}
	if s.display != nil {
		s.unsubscribe = append(s.unsubscribe, s.store.Subscribe(s.display.Handle))
		if err := s.display.Publish(); err != nil {
			s.logger.Warn("Failed to publish initial notification snapshot", zap.Error(err))
		}
	}

	if s.config.HTTP.Addr != "" {
		if err := s.startHTTP(); err != nil {
			return err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.poller.Run(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.scanner.Run(runCtx)
	}()

	s.logger.Info("Critical alert service started successfully",
		zap.String("storage_backend", s.config.Alerts.Storage.Backend),
		zap.Int("notification_count", s.store.Len()),
	)
	return nil
}

func (s *CriticalAlertService) startHTTP() error {
	router := httpapi.NewRouter(logger.Component(s.logger, "http"))
	router.RegisterNotificationRoutes(httpapi.NewNotificationHandler(s, logger.Component(s.logger, "http")))
	router.RegisterOpsRoutes()

	ln, err := net.Listen("tcp", s.config.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.HTTP.Addr, err)
	}
	s.httpAddr = ln.Addr().String()
	s.httpServer = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server stopped unexpectedly", zap.Error(err))
		}
	}()

	s.logger.Info("HTTP server listening", zap.String("addr", s.httpAddr))
	return nil
}

// HTTPAddr HTTP 实际监听地址（未启动时为空）
func (s *CriticalAlertService) HTTPAddr() string {
	return s.httpAddr
}

// Stop 停止后台任务并释放连接
func (s *CriticalAlertService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping critical alert service")

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("Error shutting down HTTP server", zap.Error(err))
		}
	}

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	for _, unsubscribe := range s.unsubscribe {
		unsubscribe()
	}
	s.unsubscribe = nil
	s.store.Dispose()

	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
	if s.redis != nil {
		rediscommon.Close(s.redis)
	}
	if s.db != nil {
		database.Close(s.db)
	}

	s.logger.Info("Critical alert service stopped")
	return nil
}

// Store 通知存储
func (s *CriticalAlertService) Store() *store.Store {
	return s.store
}

// List 当前通知
func (s *CriticalAlertService) List() []models.CriticalNotification {
	return s.store.List()
}

// Get 按患者查询通知
func (s *CriticalAlertService) Get(patientID string) (models.CriticalNotification, bool) {
	return s.store.Get(patientID)
}

// AddNotification 新增或更新通知
func (s *CriticalAlertService) AddNotification(ctx context.Context, input models.NotificationInput) (models.CriticalNotification, bool) {
	return s.store.Add(ctx, input)
}

// RemoveNotification 手动解除通知
func (s *CriticalAlertService) RemoveNotification(ctx context.Context, patientID string) bool {
	return s.store.Remove(ctx, patientID)
}

// ClearAll 清空所有通知
func (s *CriticalAlertService) ClearAll(ctx context.Context) {
	s.store.ClearAll(ctx)
}

// RecordVitals 生命体征保存后评估：有超限项则新增/更新通知，无超限项不改动已有通知
func (s *CriticalAlertService) RecordVitals(ctx context.Context, reading models.VitalsReading) ([]models.Alert, error) {
	ranges, err := s.api.GetCriticalVitalRanges(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get critical vital ranges: %w", err)
	}

	alerts := evaluator.Evaluate(reading, ranges)
	if len(alerts) == 0 {
		s.logger.Debug("Vitals within critical ranges",
			zap.String("patient_id", reading.PatientID),
		)
		return nil, nil
	}

	s.store.Add(ctx, models.NotificationInput{
		PatientID:   reading.PatientID,
		PatientName: reading.PatientName,
		Type:        models.NotificationVital,
		Alerts:      alerts,
	})
	return alerts, nil
}
