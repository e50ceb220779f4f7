package scanner

import (
	"context"
	"sync"
	"time"

	"critical-alerts/internal/client"
	"critical-alerts/internal/evaluator"
	"critical-alerts/internal/metrics"
	"critical-alerts/internal/models"

	"go.uber.org/zap"
)

// NotificationStore 扫描器依赖的存储能力
type NotificationStore interface {
	AddObserved(ctx context.Context, input models.NotificationInput, observedAt time.Time) (models.CriticalNotification, bool)
}

// Options 扫描配置
type Options struct {
	Delay    time.Duration
	PageSize int
}

// InitialScanner 启动扫描：用今天的生命体征为尚未就诊的危急患者生成通知
type InitialScanner struct {
	api    client.API
	store  NotificationStore
	opts   Options
	logger *zap.Logger
	now    func() time.Time
	once   sync.Once
}

// NewInitialScanner 创建启动扫描器
func NewInitialScanner(api client.API, store NotificationStore, opts Options, logger *zap.Logger) *InitialScanner {
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	return &InitialScanner{
		api:    api,
		store:  store,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// Run 等待 Delay 后执行一次扫描；每个进程只执行一次，ctx 取消则放弃
func (s *InitialScanner) Run(ctx context.Context) {
	s.once.Do(func() {
		if s.opts.Delay > 0 {
			timer := time.NewTimer(s.opts.Delay)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				s.logger.Info("Initial scan cancelled before start")
				return
			case <-timer.C:
			}
		}
		s.Scan(ctx)
	})
}

// Scan 执行扫描，返回新建或更新的通知数；任何错误只记录日志
func (s *InitialScanner) Scan(ctx context.Context) (count int) {
	defer func() {
		if r := recover(); r != nil {
			metrics.PanicsRecovered.WithLabelValues("scanner").Inc()
			s.logger.Error("Initial scan panic recovered", zap.Any("panic", r))
		}
	}()

	vitals, err := s.api.GetTodayVitals(ctx)
	if err != nil {
		s.logger.Error("Initial scan failed to fetch vitals", zap.Error(err))
		return 0
	}
	if len(vitals) == 0 {
		s.logger.Info("Initial scan found no vitals for today")
		return 0
	}

	ranges, err := s.api.GetCriticalVitalRanges(ctx)
	if err != nil {
		s.logger.Error("Initial scan failed to fetch critical ranges", zap.Error(err))
		return 0
	}
	if len(ranges) == 0 {
		s.logger.Info("Initial scan found no active critical ranges")
		return 0
	}

	observedAt := s.now()
	queues := s.fetchQueues(ctx)

	for _, reading := range LatestPerPatient(vitals) {
		if servingIn(queues, reading.PatientID) {
			s.logger.Debug("Skipping patient already being served",
				zap.String("patient_id", reading.PatientID),
			)
			continue
		}

		alerts := evaluator.Evaluate(reading, ranges)
		if len(alerts) == 0 {
			continue
		}

		if _, ok := s.store.AddObserved(ctx, models.NotificationInput{
			PatientID:   reading.PatientID,
			PatientName: reading.PatientName,
			Type:        models.NotificationVital,
			Alerts:      alerts,
		}, observedAt); ok {
			count++
		}
	}

	metrics.ScanNotifications.Add(float64(count))
	s.logger.Info("Initial critical-patient scan completed",
		zap.Int("vitals_count", len(vitals)),
		zap.Int("range_count", len(ranges)),
		zap.Int("notification_count", count),
	)
	return count
}

// fetchQueues 并发获取各环节队列，单个失败按空队列处理
func (s *InitialScanner) fetchQueues(ctx context.Context) [][]models.QueueEntry {
	queues := make([][]models.QueueEntry, len(models.ServedServicePoints))
	var wg sync.WaitGroup
	for i, sp := range models.ServedServicePoints {
		wg.Add(1)
		go func(i int, sp models.ServicePoint) {
			defer wg.Done()
			entries, err := client.FetchActiveQueue(ctx, s.api, sp, s.opts.PageSize)
			if err != nil {
				s.logger.Warn("Initial scan failed to fetch queue",
					zap.String("service_point", string(sp)),
					zap.Error(err),
				)
				return
			}
			queues[i] = entries
		}(i, sp)
	}
	wg.Wait()
	return queues
}

func servingIn(queues [][]models.QueueEntry, patientID string) bool {
	for _, q := range queues {
		if models.IsServing(q, patientID) {
			return true
		}
	}
	return false
}

// LatestPerPatient 每个患者只保留记录时间最新的一条（时间相同保留先出现的），按首次出现顺序返回
func LatestPerPatient(readings []models.VitalsReading) []models.VitalsReading {
	index := make(map[string]int, len(readings))
	out := make([]models.VitalsReading, 0, len(readings))
	for _, r := range readings {
		if r.PatientID == "" {
			continue
		}
		i, ok := index[r.PatientID]
		if !ok {
			index[r.PatientID] = len(out)
			out = append(out, r)
			continue
		}
		if r.RecordedAt.After(out[i].RecordedAt) {
			out[i] = r
		}
	}
	return out
}
