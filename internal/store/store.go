package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"critical-alerts/internal/metrics"
	"critical-alerts/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChangeKind 通知变更类型
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeUpdated ChangeKind = "updated"
	ChangeRemoved ChangeKind = "removed"
	ChangeCleared ChangeKind = "cleared"
)

// Change 一次通知变更（Cleared 时 PatientID 为空）
type Change struct {
	Kind         ChangeKind                   `json:"kind"`
	PatientID    string                       `json:"patientId,omitempty"`
	Notification *models.CriticalNotification `json:"notification,omitempty"`
	At           time.Time                    `json:"at"`
}

// Listener 变更监听器，在锁外同步调用
type Listener func(Change)

// Option Store 可选项
type Option func(*Store)

// WithClock 替换时间源（测试用）
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithTombstoneTTL 就诊观测记录的保留时间，超过后不再拦截过期结果
func WithTombstoneTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.tombstoneTTL = ttl
		}
	}
}

// WithIDGenerator 替换 ID 生成器（测试用）
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// DefaultTombstoneTTL 就诊观测记录默认保留时间
const DefaultTombstoneTTL = 5 * time.Minute

// Store 危急通知存储：按患者ID索引，每次变更同步写入持久化槽位
type Store struct {
	kv     KV
	key    string
	logger *zap.Logger
	now    func() time.Time
	newID  func() string

	tombstoneTTL time.Duration

	mu        sync.Mutex
	items     map[string]*models.CriticalNotification
	served    map[string]time.Time // 患者被判定为就诊中的观测时间（防止过期结果复活通知）
	listeners map[int]Listener
	nextLID   int
	disposed  bool
}

// NewStore 创建通知存储，调用 Init 之前为空
func NewStore(kv KV, key string, logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		kv:        kv,
		key:       key,
		logger:    logger,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
		items:     make(map[string]*models.CriticalNotification),
		served:    make(map[string]time.Time),
		listeners: make(map[int]Listener),

		tombstoneTTL: DefaultTombstoneTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init 从持久化槽位恢复通知
// 槽位不存在或数据损坏时以空存储启动；仅在读取槽位本身失败时返回错误（存储仍可用）
func (s *Store) Init(ctx context.Context) error {
	raw, err := s.kv.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, ErrSlotMiss) {
			s.logger.Debug("No persisted notifications", zap.String("key", s.key))
			return nil
		}
		metrics.PersistFailures.WithLabelValues("load").Inc()
		s.logger.Error("Failed to load persisted notifications",
			zap.String("key", s.key),
			zap.Error(err),
		)
		return err
	}

	loaded := Decode(raw)
	if loaded == nil {
		s.logger.Warn("Persisted notifications are malformed, starting empty",
			zap.String("key", s.key),
		)
	}

	s.mu.Lock()
	s.items = make(map[string]*models.CriticalNotification, len(loaded))
	for i := range loaded {
		n := loaded[i]
		if _, dup := s.items[n.PatientID]; dup {
			continue
		}
		s.items[n.PatientID] = &n
	}
	count := len(s.items)
	s.mu.Unlock()

	metrics.NotificationsActive.Set(float64(count))
	s.logger.Info("Notification store initialized",
		zap.String("key", s.key),
		zap.Int("notification_count", count),
	)
	return nil
}

// Dispose 解除所有监听器；之后的变更仍然生效并持久化，但不再通知
func (s *Store) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
	s.listeners = make(map[int]Listener)
}

// Subscribe 注册变更监听器，返回取消函数
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return func() {}
	}
	id := s.nextLID
	s.nextLID++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Add 新增或更新患者通知
// alerts 为空时不做任何修改；已有通知时替换 alerts/type/patientName，保留 id 与 timestamp
func (s *Store) Add(ctx context.Context, input models.NotificationInput) (models.CriticalNotification, bool) {
	return s.add(ctx, input, time.Time{})
}

// AddObserved 与 Add 相同，但如果患者在 observedAt 之后已被判定为就诊中，则丢弃本次结果
func (s *Store) AddObserved(ctx context.Context, input models.NotificationInput, observedAt time.Time) (models.CriticalNotification, bool) {
	return s.add(ctx, input, observedAt)
}

func (s *Store) add(ctx context.Context, input models.NotificationInput, observedAt time.Time) (models.CriticalNotification, bool) {
	if len(input.Alerts) == 0 {
		metrics.NotificationMutations.WithLabelValues("rejected").Inc()
		s.logger.Debug("Ignoring notification without alerts",
			zap.String("patient_id", input.PatientID),
		)
		return models.CriticalNotification{}, false
	}
	if input.PatientID == "" {
		metrics.NotificationMutations.WithLabelValues("rejected").Inc()
		s.logger.Debug("Ignoring notification without patient id")
		return models.CriticalNotification{}, false
	}
	if input.Type == "" {
		input.Type = models.NotificationVital
	}
	if !input.Type.IsValid() {
		metrics.NotificationMutations.WithLabelValues("rejected").Inc()
		s.logger.Debug("Ignoring notification with unknown type",
			zap.String("patient_id", input.PatientID),
			zap.String("type", string(input.Type)),
		)
		return models.CriticalNotification{}, false
	}

	s.mu.Lock()
	s.pruneServedLocked()

	if !observedAt.IsZero() {
		if servedAt, ok := s.served[input.PatientID]; ok && servedAt.After(observedAt) {
			s.mu.Unlock()
			metrics.NotificationMutations.WithLabelValues("rejected").Inc()
			s.logger.Debug("Dropping stale notification for served patient",
				zap.String("patient_id", input.PatientID),
				zap.Time("observed_at", observedAt),
				zap.Time("served_at", servedAt),
			)
			return models.CriticalNotification{}, false
		}
	}
	delete(s.served, input.PatientID)

	alerts := models.CriticalNotification{Alerts: input.Alerts}.Clone().Alerts

	kind := ChangeUpdated
	existing, ok := s.items[input.PatientID]
	if ok {
		existing.Alerts = alerts
		existing.Type = input.Type
		existing.PatientName = input.PatientName
	} else {
		kind = ChangeAdded
		existing = &models.CriticalNotification{
			ID:          s.newID(),
			PatientID:   input.PatientID,
			PatientName: input.PatientName,
			Type:        input.Type,
			Alerts:      alerts,
			Timestamp:   s.now(),
		}
		s.items[input.PatientID] = existing
	}
	s.persistLocked(ctx)
	snapshot := existing.Clone()
	listeners := s.listenersLocked()
	count := len(s.items)
	s.mu.Unlock()

	metrics.NotificationsActive.Set(float64(count))
	metrics.NotificationMutations.WithLabelValues(string(kind)).Inc()
	s.logger.Info("Critical notification stored",
		zap.String("patient_id", snapshot.PatientID),
		zap.String("notification_id", snapshot.ID),
		zap.String("change", string(kind)),
		zap.Int("alert_count", len(snapshot.Alerts)),
	)

	notified := snapshot.Clone()
	s.emit(listeners, Change{Kind: kind, PatientID: snapshot.PatientID, Notification: &notified, At: s.now()})
	return snapshot, true
}

// Remove 删除患者通知，不存在时为 no-op
func (s *Store) Remove(ctx context.Context, patientID string) bool {
	return s.remove(ctx, patientID, time.Time{})
}

// ResolveServed 患者已在就诊中：删除通知并记录观测时间
func (s *Store) ResolveServed(ctx context.Context, patientID string, observedAt time.Time) bool {
	return s.remove(ctx, patientID, observedAt)
}

func (s *Store) remove(ctx context.Context, patientID string, servedAt time.Time) bool {
	s.mu.Lock()
	s.pruneServedLocked()
	if !servedAt.IsZero() {
		if prev, ok := s.served[patientID]; !ok || servedAt.After(prev) {
			s.served[patientID] = servedAt
		}
	}
	if _, ok := s.items[patientID]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.items, patientID)
	s.persistLocked(ctx)
	listeners := s.listenersLocked()
	count := len(s.items)
	s.mu.Unlock()

	metrics.NotificationsActive.Set(float64(count))
	metrics.NotificationMutations.WithLabelValues(string(ChangeRemoved)).Inc()
	s.logger.Info("Critical notification removed",
		zap.String("patient_id", patientID),
		zap.Bool("served", !servedAt.IsZero()),
	)

	s.emit(listeners, Change{Kind: ChangeRemoved, PatientID: patientID, At: s.now()})
	return true
}

// ClearAll 清空所有通知并删除持久化槽位
func (s *Store) ClearAll(ctx context.Context) {
	s.mu.Lock()
	s.items = make(map[string]*models.CriticalNotification)
	s.served = make(map[string]time.Time)
	if err := s.kv.Del(ctx, s.key); err != nil {
		metrics.PersistFailures.WithLabelValues("erase").Inc()
		s.logger.Error("Failed to erase persisted notifications",
			zap.String("key", s.key),
			zap.Error(err),
		)
	}
	listeners := s.listenersLocked()
	s.mu.Unlock()

	metrics.NotificationsActive.Set(0)
	metrics.NotificationMutations.WithLabelValues(string(ChangeCleared)).Inc()
	s.logger.Info("All critical notifications cleared")

	s.emit(listeners, Change{Kind: ChangeCleared, At: s.now()})
}

// List 当前通知快照（按时间倒序）
func (s *Store) List() []models.CriticalNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Get 按患者ID查询
func (s *Store) Get(patientID string) (models.CriticalNotification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.items[patientID]
	if !ok {
		return models.CriticalNotification{}, false
	}
	return n.Clone(), true
}

// PatientIDs 当前有通知的患者ID
func (s *Store) PatientIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len 通知数量
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// persistLocked 写穿：序列化完整列表写入槽位，失败只记录日志（内存状态为准）
func (s *Store) persistLocked(ctx context.Context) {
	data, err := Encode(s.snapshotLocked())
	if err != nil {
		metrics.PersistFailures.WithLabelValues("save").Inc()
		s.logger.Error("Failed to encode notifications", zap.Error(err))
		return
	}
	if err := s.kv.Set(ctx, s.key, data); err != nil {
		metrics.PersistFailures.WithLabelValues("save").Inc()
		s.logger.Error("Failed to persist notifications",
			zap.String("key", s.key),
			zap.Error(err),
		)
	}
}

// pruneServedLocked 丢弃超过保留时间的就诊观测记录
func (s *Store) pruneServedLocked() {
	if len(s.served) == 0 {
		return
	}
	cutoff := s.now().Add(-s.tombstoneTTL)
	for id, servedAt := range s.served {
		if servedAt.Before(cutoff) {
			delete(s.served, id)
		}
	}
}

func (s *Store) snapshotLocked() []models.CriticalNotification {
	out := make([]models.CriticalNotification, 0, len(s.items))
	for _, n := range s.items {
		out = append(out, n.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].PatientID < out[j].PatientID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

func (s *Store) listenersLocked() []Listener {
	if len(s.listeners) == 0 {
		return nil
	}
	out := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		out = append(out, l)
	}
	return out
}

func (s *Store) emit(listeners []Listener, change Change) {
	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					metrics.PanicsRecovered.WithLabelValues("store_listener").Inc()
					s.logger.Error("Notification listener panic recovered",
						zap.Any("panic", r),
						zap.String("change", string(change.Kind)),
					)
				}
			}()
			l(change)
		}()
	}
}

// Encode 序列化为槽位格式：CriticalNotification 的 JSON 数组，timestamp 为 ISO-8601 字符串
func Encode(list []models.CriticalNotification) (string, error) {
	if list == nil {
		list = []models.CriticalNotification{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Decode 解析槽位数据；格式错误返回 nil，并丢弃缺少患者ID或告警的条目
func Decode(raw string) []models.CriticalNotification {
	var list []models.CriticalNotification
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil
	}
	out := make([]models.CriticalNotification, 0, len(list))
	for _, n := range list {
		if n.PatientID == "" || len(n.Alerts) == 0 {
			continue
		}
		out = append(out, n)
	}
	return out
}
