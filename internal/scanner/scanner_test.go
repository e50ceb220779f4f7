package scanner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"critical-alerts/internal/models"
	"critical-alerts/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAPI struct {
	mu         sync.Mutex
	vitals     []models.VitalsReading
	ranges     []models.CriticalVitalRange
	queues     map[models.ServicePoint][]models.QueueEntry
	vitalsErr  error
	rangesErr  error
	queueErrs  map[models.ServicePoint]error
	vitalCalls int
	rangeCalls int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		queues:    make(map[models.ServicePoint][]models.QueueEntry),
		queueErrs: make(map[models.ServicePoint]error),
	}
}

func (f *fakeAPI) GetTodayVitals(ctx context.Context) ([]models.VitalsReading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vitalCalls++
	return f.vitals, f.vitalsErr
}

func (f *fakeAPI) GetCriticalVitalRanges(ctx context.Context) ([]models.CriticalVitalRange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rangeCalls++
	return f.ranges, f.rangesErr
}

func (f *fakeAPI) GetQueue(ctx context.Context, sp models.ServicePoint, activeOnly bool, page, pageSize int) ([]models.QueueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queues[sp], f.queueErrs[sp]
}

func (f *fakeAPI) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.vitalCalls, f.rangeCalls
}

func ptr(v float64) *float64 { return &v }

func heartRateRange() models.CriticalVitalRange {
	return models.CriticalVitalRange{
		Parameter: models.ParamHeartRate,
		Min:       ptr(40),
		Max:       ptr(180),
		Unit:      "bpm",
		Severity:  models.SeverityCritical,
		Active:    true,
	}
}

func reading(patientID, name string, at time.Time, heartRate float64) models.VitalsReading {
	return models.VitalsReading{
		PatientID:   patientID,
		PatientName: name,
		RecordedAt:  at,
		HeartRate:   ptr(heartRate),
	}
}

func setupStore(t *testing.T) (*store.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	s := store.NewStore(store.NewRedisKV(rdb), "critical-notifications", zap.NewNop())
	require.NoError(t, s.Init(context.Background()))
	return s, mr
}

func TestScan_CreatesNotificationForBreach(t *testing.T) {
	s, mr := setupStore(t)
	api := newFakeAPI()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	api.vitals = []models.VitalsReading{
		reading("P1", "Jane Doe", base, 250),
		reading("P2", "", base, 80),
	}
	api.ranges = []models.CriticalVitalRange{heartRateRange()}

	count := NewInitialScanner(api, s, Options{}, zap.NewNop()).Scan(context.Background())

	assert.Equal(t, 1, count)
	n, ok := s.Get("P1")
	require.True(t, ok)
	assert.Equal(t, "Jane Doe", n.PatientName)
	assert.Equal(t, models.NotificationVital, n.Type)
	require.Len(t, n.Alerts, 1)
	assert.Equal(t, models.NumberValue(250), n.Alerts[0].Value)
	assert.Equal(t, "40-180 bpm", n.Alerts[0].Range)

	_, ok = s.Get("P2")
	assert.False(t, ok)

	raw, err := mr.Get("critical-notifications")
	require.NoError(t, err)
	assert.Contains(t, raw, `"patientId":"P1"`)
}

func TestScan_OnlyLatestReadingEvaluated(t *testing.T) {
	s, _ := setupStore(t)
	api := newFakeAPI()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	api.vitals = []models.VitalsReading{
		reading("P1", "", base, 250),
		reading("P1", "", base.Add(time.Hour), 90),
	}
	api.ranges = []models.CriticalVitalRange{heartRateRange()}

	count := NewInitialScanner(api, s, Options{}, zap.NewNop()).Scan(context.Background())

	assert.Equal(t, 0, count)
	assert.Equal(t, 0, s.Len())
}

func TestScan_SkipsServingPatients(t *testing.T) {
	s, _ := setupStore(t)
	api := newFakeAPI()
	now := time.Now()
	api.vitals = []models.VitalsReading{
		reading("P1", "", now, 250),
		reading("P2", "", now, 250),
		reading("P3", "", now, 250),
	}
	api.ranges = []models.CriticalVitalRange{heartRateRange()}
	api.queues[models.ServicePointRadiology] = []models.QueueEntry{
		{PatientID: "P1", Status: models.QueueServing, ServicePoint: models.ServicePointRadiology},
	}
	api.queues[models.ServicePointConsultation] = []models.QueueEntry{
		{PatientID: "P2", Status: models.QueueCompleted, ServicePoint: models.ServicePointConsultation},
	}
	api.queueErrs[models.ServicePointLaboratory] = errors.New("lab queue down")

	count := NewInitialScanner(api, s, Options{}, zap.NewNop()).Scan(context.Background())

	assert.Equal(t, 2, count)
	assert.ElementsMatch(t, []string{"P2", "P3"}, s.PatientIDs())
}

func TestScan_AbortsWithoutVitalsOrRanges(t *testing.T) {
	s, _ := setupStore(t)

	api := newFakeAPI()
	api.ranges = []models.CriticalVitalRange{heartRateRange()}
	assert.Equal(t, 0, NewInitialScanner(api, s, Options{}, zap.NewNop()).Scan(context.Background()))
	_, rangeCalls := api.calls()
	assert.Equal(t, 0, rangeCalls, "ranges are not fetched when there are no vitals")

	api = newFakeAPI()
	api.vitals = []models.VitalsReading{reading("P1", "", time.Now(), 250)}
	assert.Equal(t, 0, NewInitialScanner(api, s, Options{}, zap.NewNop()).Scan(context.Background()))

	api.rangesErr = errors.New("triage down")
	api.ranges = []models.CriticalVitalRange{heartRateRange()}
	assert.Equal(t, 0, NewInitialScanner(api, s, Options{}, zap.NewNop()).Scan(context.Background()))

	api = newFakeAPI()
	api.vitalsErr = errors.New("vitals down")
	assert.Equal(t, 0, NewInitialScanner(api, s, Options{}, zap.NewNop()).Scan(context.Background()))

	assert.Equal(t, 0, s.Len())
}

func TestScan_StaleResultDoesNotResurrectServedPatient(t *testing.T) {
	s, _ := setupStore(t)
	api := newFakeAPI()
	api.vitals = []models.VitalsReading{reading("P1", "", time.Now(), 250)}
	api.ranges = []models.CriticalVitalRange{heartRateRange()}

	sc := NewInitialScanner(api, s, Options{}, zap.NewNop())
	fetchedAt := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	sc.now = func() time.Time { return fetchedAt }

	// 轮询器在扫描取数之后判定患者已就诊
	s.ResolveServed(context.Background(), "P1", fetchedAt.Add(time.Second))

	assert.Equal(t, 0, sc.Scan(context.Background()))
	assert.Equal(t, 0, s.Len())
}

func TestRun_OnlyOnce(t *testing.T) {
	s, _ := setupStore(t)
	api := newFakeAPI()
	api.vitals = []models.VitalsReading{reading("P1", "", time.Now(), 250)}
	api.ranges = []models.CriticalVitalRange{heartRateRange()}

	sc := NewInitialScanner(api, s, Options{Delay: 10 * time.Millisecond}, zap.NewNop())
	sc.Run(context.Background())
	sc.Run(context.Background())

	vitalCalls, _ := api.calls()
	assert.Equal(t, 1, vitalCalls)
	assert.Equal(t, 1, s.Len())
}

func TestRun_CancelledDuringDelay(t *testing.T) {
	s, _ := setupStore(t)
	api := newFakeAPI()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	NewInitialScanner(api, s, Options{Delay: time.Hour}, zap.NewNop()).Run(ctx)

	vitalCalls, _ := api.calls()
	assert.Equal(t, 0, vitalCalls)
}

func TestLatestPerPatient(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	out := LatestPerPatient([]models.VitalsReading{
		{ID: "a", PatientID: "P1", RecordedAt: base},
		{ID: "b", PatientID: "P2", RecordedAt: base},
		{ID: "c", PatientID: "P1", RecordedAt: base.Add(time.Minute)},
		{ID: "d", PatientID: "P1", RecordedAt: base},
		{ID: "e", PatientID: "", RecordedAt: base},
	})

	require.Len(t, out, 2)
	assert.Equal(t, "c", out[0].ID)
	assert.Equal(t, "b", out[1].ID)
}
