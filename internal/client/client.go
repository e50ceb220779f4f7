package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"critical-alerts/internal/metrics"
	"critical-alerts/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrUnexpectedStatus 后端返回非 2xx
var ErrUnexpectedStatus = errors.New("unexpected status from hospital api")

// API 医院后端接口（生命体征、分诊危急值范围、排队）
type API interface {
	GetTodayVitals(ctx context.Context) ([]models.VitalsReading, error)
	GetCriticalVitalRanges(ctx context.Context) ([]models.CriticalVitalRange, error)
	GetQueue(ctx context.Context, servicePoint models.ServicePoint, activeOnly bool, page, pageSize int) ([]models.QueueEntry, error)
}

// Options HospitalAPI 配置
type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	RetryCount int
}

// HospitalAPI 基于 resty 的 REST 客户端
type HospitalAPI struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewHospitalAPI 创建后端客户端
func NewHospitalAPI(opts Options, logger *zap.Logger) *HospitalAPI {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}

	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(3*time.Second).
		SetHeader("Accept", "application/json")

	if opts.Token != "" {
		client.SetAuthToken(opts.Token)
	}

	return &HospitalAPI{
		httpClient: client,
		logger:     logger,
	}
}

// GetTodayVitals 获取今天记录的所有生命体征
func (c *HospitalAPI) GetTodayVitals(ctx context.Context) ([]models.VitalsReading, error) {
	records, err := c.getList(ctx, "get_today_vitals", "/vitals/today", nil)
	if err != nil {
		return nil, err
	}

	readings := make([]models.VitalsReading, 0, len(records))
	for _, rec := range records {
		if r, ok := NormalizeVitals(rec); ok {
			readings = append(readings, r)
		}
	}
	return readings, nil
}

// GetCriticalVitalRanges 获取危急值范围配置（仅启用项）
func (c *HospitalAPI) GetCriticalVitalRanges(ctx context.Context) ([]models.CriticalVitalRange, error) {
	records, err := c.getList(ctx, "get_critical_ranges", "/triage/critical-vital-ranges", map[string]string{
		"is_active": "true",
	})
	if err != nil {
		return nil, err
	}

	ranges := make([]models.CriticalVitalRange, 0, len(records))
	for _, rec := range records {
		if r, ok := NormalizeRange(rec); ok && r.Active {
			ranges = append(ranges, r)
		}
	}
	return ranges, nil
}

// GetQueue 获取某个就诊环节的队列
func (c *HospitalAPI) GetQueue(ctx context.Context, servicePoint models.ServicePoint, activeOnly bool, page, pageSize int) ([]models.QueueEntry, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 100
	}

	records, err := c.getList(ctx, "get_queue", "/queue", map[string]string{
		"service_point": string(servicePoint),
		"active_only":   strconv.FormatBool(activeOnly),
		"page":          strconv.Itoa(page),
		"page_size":     strconv.Itoa(pageSize),
	})
	if err != nil {
		return nil, err
	}

	entries := make([]models.QueueEntry, 0, len(records))
	for _, rec := range records {
		if e, ok := NormalizeQueueEntry(rec, servicePoint); ok {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (c *HospitalAPI) getList(ctx context.Context, operation, path string, query map[string]string) ([]map[string]any, error) {
	req := c.httpClient.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}

	resp, err := req.Get(path)
	if err != nil {
		metrics.CollaboratorErrors.WithLabelValues(operation).Inc()
		c.logger.Warn("Hospital API call failed",
			zap.String("operation", operation),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to call %s: %w", path, err)
	}

	if resp.IsError() {
		metrics.CollaboratorErrors.WithLabelValues(operation).Inc()
		c.logger.Warn("Hospital API returned error",
			zap.String("operation", operation),
			zap.Int("status_code", resp.StatusCode()),
		)
		return nil, fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, path, resp.StatusCode())
	}

	records, err := ExtractList(resp.Body())
	if err != nil {
		metrics.CollaboratorErrors.WithLabelValues(operation).Inc()
		return nil, fmt.Errorf("failed to decode %s response: %w", path, err)
	}

	c.logger.Debug("Hospital API call succeeded",
		zap.String("operation", operation),
		zap.Int("record_count", len(records)),
	)
	return records, nil
}
