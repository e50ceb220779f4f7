package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"critical-alerts/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAPI(t *testing.T, handler http.HandlerFunc) *HospitalAPI {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHospitalAPI(Options{BaseURL: srv.URL, Token: "secret", Timeout: 2 * time.Second}, zap.NewNop())
}

func TestHospitalAPI_GetTodayVitals(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/vitals/today", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[
			{"id":"v1","patient_id":"P1","patient_name":"Jane Doe","recorded_at":"2026-03-01T08:00:00Z","heart_rate":"250","blood_pressure":"190/120"},
			{"id":"v2","patient":{"id":"P2","first_name":"John","last_name":"Roe"},"recordedAt":"2026-03-01T09:00:00Z","spo2":85},
			{"id":"v3","heart_rate":90}
		]}`))
	})

	readings, err := api.GetTodayVitals(context.Background())

	require.NoError(t, err)
	require.Len(t, readings, 2, "records without a patient are dropped")

	assert.Equal(t, "P1", readings[0].PatientID)
	assert.Equal(t, "Jane Doe", readings[0].PatientName)
	require.NotNil(t, readings[0].HeartRate)
	assert.Equal(t, 250.0, *readings[0].HeartRate)
	require.NotNil(t, readings[0].SystolicBP)
	assert.Equal(t, 190.0, *readings[0].SystolicBP)
	assert.Equal(t, 120.0, *readings[0].DiastolicBP)

	assert.Equal(t, "P2", readings[1].PatientID)
	assert.Equal(t, "John Roe", readings[1].PatientName)
	assert.Equal(t, 85.0, *readings[1].OxygenSaturation)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), readings[1].RecordedAt)
}

func TestHospitalAPI_GetCriticalVitalRanges(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/triage/critical-vital-ranges", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("is_active"))
		w.Write([]byte(`[
			{"id":"r1","vital_sign":"Heart Rate","min_value":"40","max_value":"180","unit":"bpm","severity":"CRITICAL","is_active":true},
			{"id":"r2","parameter":"spo2","min_value":90,"severity":"urgent","description":"Hypoxaemia"},
			{"id":"r3","parameter":"temperature","max_value":40,"is_active":false},
			{"id":"r4","min_value":1}
		]`))
	})

	ranges, err := api.GetCriticalVitalRanges(context.Background())

	require.NoError(t, err)
	require.Len(t, ranges, 2)

	assert.Equal(t, models.ParamHeartRate, ranges[0].Parameter)
	assert.Equal(t, 40.0, *ranges[0].Min)
	assert.Equal(t, 180.0, *ranges[0].Max)
	assert.Equal(t, models.SeverityCritical, ranges[0].Severity)

	assert.Equal(t, models.ParamOxygenSaturation, ranges[1].Parameter)
	assert.Nil(t, ranges[1].Max)
	assert.Equal(t, models.SeverityUrgent, ranges[1].Severity)
	require.NotNil(t, ranges[1].Description)
	assert.Equal(t, "Hypoxaemia", *ranges[1].Description)
}

func TestHospitalAPI_GetQueue(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/queue", r.URL.Path)
		assert.Equal(t, "laboratory", q.Get("service_point"))
		assert.Equal(t, "true", q.Get("active_only"))
		assert.Equal(t, "1", q.Get("page"))
		assert.Equal(t, "100", q.Get("page_size"))
		w.Write([]byte(`{"results":[
			{"id":"q1","patient_id":"P1","status":"Serving"},
			{"id":"q2","patientId":"P2","status":"completed","service_point":"laboratory"}
		]}`))
	})

	entries, err := api.GetQueue(context.Background(), models.ServicePointLaboratory, true, 0, 0)

	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.QueueServing, entries[0].Status)
	assert.Equal(t, models.ServicePointLaboratory, entries[0].ServicePoint)
	assert.Equal(t, models.QueueCompleted, entries[1].Status)
}

func TestHospitalAPI_ErrorStatus(t *testing.T) {
	var calls atomic.Int32
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := api.GetQueue(context.Background(), models.ServicePointConsultation, true, 1, 50)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHospitalAPI_MalformedBody(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>oops</html>`))
	})

	_, err := api.GetTodayVitals(context.Background())
	assert.Error(t, err)
}

func TestHospitalAPI_ContextCancelled(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := api.GetTodayVitals(ctx)
	assert.Error(t, err)
}
