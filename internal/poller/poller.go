package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"critical-alerts/internal/client"
	"critical-alerts/internal/metrics"
	"critical-alerts/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// NotificationStore 轮询器依赖的存储能力
type NotificationStore interface {
	PatientIDs() []string
	ResolveServed(ctx context.Context, patientID string, observedAt time.Time) bool
}

// Options 轮询配置
type Options struct {
	Interval    time.Duration
	Concurrency int
	PageSize    int
}

// QueueStatusPoller 队列状态轮询器：患者进入 serving 后删除其危急通知
type QueueStatusPoller struct {
	api    client.API
	store  NotificationStore
	opts   Options
	logger *zap.Logger
	now    func() time.Time

	sem      chan struct{}
	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

// NewQueueStatusPoller 创建轮询器
func NewQueueStatusPoller(api client.API, store NotificationStore, opts Options, logger *zap.Logger) *QueueStatusPoller {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	return &QueueStatusPoller{
		api:      api,
		store:    store,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		sem:      make(chan struct{}, opts.Concurrency),
		inflight: make(map[string]struct{}),
	}
}

// Run 启动轮询（阻塞直到 ctx 取消，返回前等待未完成的检查）
func (p *QueueStatusPoller) Run(ctx context.Context) {
	p.logger.Info("Queue status poller started",
		zap.Duration("poll_interval", p.opts.Interval),
		zap.Int("concurrency", p.opts.Concurrency),
	)

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	// 立即执行一次，校正从持久化恢复的通知
	p.dispatch(ctx)

	for {
		select {
		case <-ctx.Done():
			p.wg.Wait()
			p.logger.Info("Queue status poller stopped")
			return
		case <-ticker.C:
			p.dispatch(ctx)
		}
	}
}

// Reconcile 对当前所有通知执行一次检查并等待本轮结束
func (p *QueueStatusPoller) Reconcile(ctx context.Context) {
	p.dispatch(ctx).Wait()
}

// dispatch 为每个患者启动独立检查；上一次检查仍未返回的患者本轮跳过
func (p *QueueStatusPoller) dispatch(ctx context.Context) *sync.WaitGroup {
	metrics.PollTicks.Inc()

	var tick sync.WaitGroup
	ids := p.store.PatientIDs()
	if len(ids) == 0 {
		return &tick
	}

	p.logger.Debug("Checking queue status",
		zap.Int("patient_count", len(ids)),
	)

	for _, id := range ids {
		if !p.acquire(id) {
			metrics.PatientChecks.WithLabelValues("skipped").Inc()
			p.logger.Debug("Previous check still running, skipping",
				zap.String("patient_id", id),
			)
			continue
		}

		tick.Add(1)
		p.wg.Add(1)
		go func(patientID string) {
			defer p.wg.Done()
			defer tick.Done()
			defer p.release(patientID)
			defer func() {
				if r := recover(); r != nil {
					metrics.PanicsRecovered.WithLabelValues("poller").Inc()
					p.logger.Error("Queue status check panic recovered",
						zap.String("patient_id", patientID),
						zap.Any("panic", r),
					)
				}
			}()

			select {
			case p.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-p.sem }()

			p.checkPatient(ctx, patientID)
		}(id)
	}
	return &tick
}

func (p *QueueStatusPoller) acquire(patientID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inflight[patientID]; busy {
		return false
	}
	p.inflight[patientID] = struct{}{}
	return true
}

func (p *QueueStatusPoller) release(patientID string) {
	p.mu.Lock()
	delete(p.inflight, patientID)
	p.mu.Unlock()
}

func (p *QueueStatusPoller) checkPatient(ctx context.Context, patientID string) {
	start := time.Now()
	defer func() {
		metrics.PatientCheckDuration.Observe(time.Since(start).Seconds())
	}()

	served := p.IsServed(ctx, patientID)
	if !served {
		metrics.PatientChecks.WithLabelValues("not_served").Inc()
		return
	}

	metrics.PatientChecks.WithLabelValues("served").Inc()
	if p.store.ResolveServed(ctx, patientID, p.now()) {
		p.logger.Info("Patient is being served, notification cleared",
			zap.String("patient_id", patientID),
		)
	}
}

// IsServed 患者是否正在就诊：先查诊室队列，未找到时并发查询检验与影像队列
// 任一接口出错按"未就诊"处理，不删除通知
func (p *QueueStatusPoller) IsServed(ctx context.Context, patientID string) bool {
	entries, err := client.FetchActiveQueue(ctx, p.api, models.ServicePointConsultation, p.opts.PageSize)
	if err != nil {
		p.logger.Warn("Failed to query queue",
			zap.String("patient_id", patientID),
			zap.String("service_point", string(models.ServicePointConsultation)),
			zap.Error(err),
		)
	} else if models.HasPatient(entries, patientID) {
		return models.IsServing(entries, patientID)
	}

	var served atomic.Bool
	var g errgroup.Group
	for _, sp := range models.ServedServicePoints[1:] {
		sp := sp
		g.Go(func() error {
			entries, err := client.FetchActiveQueue(ctx, p.api, sp, p.opts.PageSize)
			if err != nil {
				p.logger.Warn("Failed to query queue",
					zap.String("patient_id", patientID),
					zap.String("service_point", string(sp)),
					zap.Error(err),
				)
				return nil
			}
			if models.IsServing(entries, patientID) {
				served.Store(true)
			}
			return nil
		})
	}
	_ = g.Wait()
	return served.Load()
}
