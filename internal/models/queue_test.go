package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsServing(t *testing.T) {
	entries := []QueueEntry{
		{PatientID: "P1", Status: QueueServing, ServicePoint: ServicePointConsultation},
		{PatientID: "P2", Status: QueueCompleted, ServicePoint: ServicePointConsultation},
		{PatientID: "P3", Status: QueueWaiting, ServicePoint: ServicePointLaboratory},
	}

	assert.True(t, IsServing(entries, "P1"))
	assert.False(t, IsServing(entries, "P2"), "completed is not serving")
	assert.False(t, IsServing(entries, "P3"))
	assert.False(t, IsServing(entries, "P4"))

	assert.True(t, HasPatient(entries, "P3"))
	assert.False(t, HasPatient(entries, "P4"))
}

func TestVitalsReading_Value(t *testing.T) {
	hr := 250.0
	r := VitalsReading{PatientID: "P1", HeartRate: &hr}

	v, ok := r.Value(ParamHeartRate)
	assert.True(t, ok)
	assert.Equal(t, 250.0, v)

	_, ok = r.Value(ParamTemperature)
	assert.False(t, ok)

	_, ok = r.Value("unknown")
	assert.False(t, ok)
}

func TestCriticalNotification_Clone(t *testing.T) {
	desc := "tachycardia"
	n := CriticalNotification{
		PatientID: "P1",
		Alerts:    []Alert{{Parameter: ParamHeartRate, Value: NumberValue(250), Description: &desc}},
	}

	c := n.Clone()
	*c.Alerts[0].Value.Number = 1
	*c.Alerts[0].Description = "changed"

	assert.Equal(t, NumberValue(250), n.Alerts[0].Value)
	assert.Equal(t, "tachycardia", *n.Alerts[0].Description)
}
