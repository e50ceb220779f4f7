package client

import (
	"testing"

	"critical-alerts/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeParameter(t *testing.T) {
	assert.Equal(t, models.ParamHeartRate, NormalizeParameter("Heart Rate"))
	assert.Equal(t, models.ParamHeartRate, NormalizeParameter("heartRate"))
	assert.Equal(t, models.ParamOxygenSaturation, NormalizeParameter("SpO2"))
	assert.Equal(t, models.ParamSystolicBP, NormalizeParameter("blood-pressure-systolic"))
	assert.Equal(t, "lactate", NormalizeParameter(" Lactate "))
}

func TestPatientDisplayName(t *testing.T) {
	assert.Equal(t, "Jane Doe", PatientDisplayName(map[string]any{"patient_name": "Jane Doe", "first_name": "X"}))
	assert.Equal(t, "John Roe", PatientDisplayName(map[string]any{"first_name": "John", "last_name": "Roe"}))
	assert.Equal(t, "Ann", PatientDisplayName(map[string]any{"patient": map[string]any{"first_name": "Ann"}}))
	assert.Equal(t, "", PatientDisplayName(map[string]any{"patient_id": "P1"}))
}

func TestNormalizeVitals_EmptyStringsAreAbsent(t *testing.T) {
	r, ok := NormalizeVitals(map[string]any{
		"patient_id":  float64(42),
		"heart_rate":  "",
		"temperature": "38.5",
		"pain_score":  "n/a",
	})

	require.True(t, ok)
	assert.Equal(t, "42", r.PatientID)
	assert.Nil(t, r.HeartRate)
	assert.Nil(t, r.PainScore)
	require.NotNil(t, r.Temperature)
	assert.Equal(t, 38.5, *r.Temperature)
	assert.True(t, r.RecordedAt.IsZero())
}

func TestNormalizeVitals_ExplicitBPWins(t *testing.T) {
	r, ok := NormalizeVitals(map[string]any{
		"patient_id":     "P1",
		"systolic_bp":    150.0,
		"blood_pressure": "190/120",
	})

	require.True(t, ok)
	assert.Equal(t, 150.0, *r.SystolicBP)
	assert.Equal(t, 120.0, *r.DiastolicBP)
}

func TestNormalizeRange_Defaults(t *testing.T) {
	r, ok := NormalizeRange(map[string]any{"parameter": "pulse", "max": 150.0, "severity": "high", "is_active": "false"})

	require.True(t, ok)
	assert.Equal(t, models.ParamHeartRate, r.Parameter)
	assert.Equal(t, models.SeverityCritical, r.Severity)
	assert.False(t, r.Active)
	assert.Nil(t, r.Min)

	_, ok = NormalizeRange(map[string]any{"min": 1.0})
	assert.False(t, ok)
}

func TestNormalizeQueueEntry_Fallbacks(t *testing.T) {
	e, ok := NormalizeQueueEntry(map[string]any{"patient": "P9", "status": " WAITING "}, models.ServicePointRadiology)

	require.True(t, ok)
	assert.Equal(t, "P9", e.PatientID)
	assert.Equal(t, models.QueueWaiting, e.Status)
	assert.Equal(t, models.ServicePointRadiology, e.ServicePoint)

	_, ok = NormalizeQueueEntry(map[string]any{"status": "serving"}, models.ServicePointRadiology)
	assert.False(t, ok)
}

func TestExtractList(t *testing.T) {
	list, err := ExtractList([]byte(`{"data":{"items":[{"a":1},2]}}`))
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = ExtractList([]byte(`{"message":"ok"}`))
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = ExtractList([]byte(`nope`))
	assert.Error(t, err)
}
