package models

import "time"

// 生命体征参数名（与分诊危急值范围配置中的 parameter 一致）
const (
	ParamTemperature      = "temperature"
	ParamHeartRate        = "heart_rate"
	ParamRespiratoryRate  = "respiratory_rate"
	ParamSystolicBP       = "systolic_bp"
	ParamDiastolicBP      = "diastolic_bp"
	ParamOxygenSaturation = "oxygen_saturation"
	ParamBloodGlucose     = "blood_glucose"
	ParamPainScore        = "pain_score"
)

// DefaultUnits 参数默认单位（范围配置未给出单位时使用）
var DefaultUnits = map[string]string{
	ParamTemperature:      "°C",
	ParamHeartRate:        "bpm",
	ParamRespiratoryRate:  "breaths/min",
	ParamSystolicBP:       "mmHg",
	ParamDiastolicBP:      "mmHg",
	ParamOxygenSaturation: "%",
	ParamBloodGlucose:     "mmol/L",
	ParamPainScore:        "/10",
}

// VitalsReading 一次生命体征记录（已规范化）
type VitalsReading struct {
	ID          string    `json:"id,omitempty"`
	PatientID   string    `json:"patientId"`
	PatientName string    `json:"patientName,omitempty"` // 已合并的显示名，可能为空
	RecordedAt  time.Time `json:"recordedAt"`

	Temperature      *float64 `json:"temperature,omitempty"`
	HeartRate        *float64 `json:"heartRate,omitempty"`
	RespiratoryRate  *float64 `json:"respiratoryRate,omitempty"`
	SystolicBP       *float64 `json:"systolicBp,omitempty"`
	DiastolicBP      *float64 `json:"diastolicBp,omitempty"`
	OxygenSaturation *float64 `json:"oxygenSaturation,omitempty"`
	BloodGlucose     *float64 `json:"bloodGlucose,omitempty"`
	PainScore        *float64 `json:"painScore,omitempty"`
}

// Value 按参数名读取数值，字段为空时返回 false
func (r VitalsReading) Value(parameter string) (float64, bool) {
	var v *float64
	switch parameter {
	case ParamTemperature:
		v = r.Temperature
	case ParamHeartRate:
		v = r.HeartRate
	case ParamRespiratoryRate:
		v = r.RespiratoryRate
	case ParamSystolicBP:
		v = r.SystolicBP
	case ParamDiastolicBP:
		v = r.DiastolicBP
	case ParamOxygenSaturation:
		v = r.OxygenSaturation
	case ParamBloodGlucose:
		v = r.BloodGlucose
	case ParamPainScore:
		v = r.PainScore
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}

// CriticalVitalRange 危急值范围配置（Min/Max 为空表示该侧不设限）
type CriticalVitalRange struct {
	ID          string   `json:"id,omitempty"`
	Parameter   string   `json:"parameter"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	Unit        string   `json:"unit,omitempty"`
	Severity    Severity `json:"severity"`
	Description *string  `json:"description,omitempty"`
	Active      bool     `json:"active"`
}
