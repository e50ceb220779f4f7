package client

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"critical-alerts/internal/models"
)

// 后端返回的字段命名不统一（snake_case / camelCase / 嵌套 patient 对象），
// 所有兼容逻辑集中在本文件，其余代码只处理 models 中的强类型

// parameterAliases 参数名别名 → 规范参数名
var parameterAliases = map[string]string{
	"temperature":              models.ParamTemperature,
	"temp":                     models.ParamTemperature,
	"heart_rate":               models.ParamHeartRate,
	"heartrate":                models.ParamHeartRate,
	"pulse":                    models.ParamHeartRate,
	"pulse_rate":               models.ParamHeartRate,
	"respiratory_rate":         models.ParamRespiratoryRate,
	"respiratoryrate":          models.ParamRespiratoryRate,
	"respiration":              models.ParamRespiratoryRate,
	"systolic_bp":              models.ParamSystolicBP,
	"systolicbp":               models.ParamSystolicBP,
	"blood_pressure_systolic":  models.ParamSystolicBP,
	"systolic":                 models.ParamSystolicBP,
	"diastolic_bp":             models.ParamDiastolicBP,
	"diastolicbp":              models.ParamDiastolicBP,
	"blood_pressure_diastolic": models.ParamDiastolicBP,
	"diastolic":                models.ParamDiastolicBP,
	"oxygen_saturation":        models.ParamOxygenSaturation,
	"oxygensaturation":         models.ParamOxygenSaturation,
	"spo2":                     models.ParamOxygenSaturation,
	"blood_glucose":            models.ParamBloodGlucose,
	"bloodglucose":             models.ParamBloodGlucose,
	"glucose":                  models.ParamBloodGlucose,
	"pain_score":               models.ParamPainScore,
	"painscore":                models.ParamPainScore,
}

// NormalizeParameter 规范化参数名，未知参数返回小写原值
func NormalizeParameter(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")
	if p, ok := parameterAliases[key]; ok {
		return p
	}
	return key
}

// ExtractList 从响应体中取出记录数组：支持裸数组、{data: [...]}、{results: [...]}、{items: [...]}
func ExtractList(body []byte) ([]map[string]any, error) {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	return listOf(raw), nil
}

func listOf(raw any) []map[string]any {
	switch v := raw.(type) {
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	case map[string]any:
		for _, key := range []string{"data", "results", "items", "result"} {
			if inner, ok := v[key]; ok {
				return listOf(inner)
			}
		}
	}
	return nil
}

// NormalizeVitals 将一条松散的生命体征记录转换为 VitalsReading；缺少患者ID返回 false
func NormalizeVitals(m map[string]any) (models.VitalsReading, bool) {
	r := models.VitalsReading{
		ID:          firstString(m, "id", "vital_id", "vitalId"),
		PatientID:   patientID(m),
		PatientName: PatientDisplayName(m),
		RecordedAt:  firstTime(m, "recorded_at", "recordedAt", "created_at", "createdAt", "date"),
	}
	if r.PatientID == "" {
		return r, false
	}

	r.Temperature = firstNumber(m, "temperature", "temp")
	r.HeartRate = firstNumber(m, "heart_rate", "heartRate", "pulse", "pulse_rate")
	r.RespiratoryRate = firstNumber(m, "respiratory_rate", "respiratoryRate", "respiration")
	r.SystolicBP = firstNumber(m, "systolic_bp", "systolicBp", "blood_pressure_systolic", "systolic")
	r.DiastolicBP = firstNumber(m, "diastolic_bp", "diastolicBp", "blood_pressure_diastolic", "diastolic")
	r.OxygenSaturation = firstNumber(m, "oxygen_saturation", "oxygenSaturation", "spo2", "SpO2")
	r.BloodGlucose = firstNumber(m, "blood_glucose", "bloodGlucose", "glucose")
	r.PainScore = firstNumber(m, "pain_score", "painScore")

	// "120/80" 形式的血压
	if r.SystolicBP == nil || r.DiastolicBP == nil {
		if bp := firstString(m, "blood_pressure", "bloodPressure", "bp"); bp != "" {
			if sys, dia, ok := splitBloodPressure(bp); ok {
				if r.SystolicBP == nil {
					r.SystolicBP = &sys
				}
				if r.DiastolicBP == nil {
					r.DiastolicBP = &dia
				}
			}
		}
	}

	return r, true
}

// NormalizeRange 转换危急值范围配置；缺少参数名返回 false
func NormalizeRange(m map[string]any) (models.CriticalVitalRange, bool) {
	param := firstString(m, "parameter", "vital_sign", "vitalSign", "name")
	if param == "" {
		return models.CriticalVitalRange{}, false
	}

	severity := models.Severity(strings.ToLower(firstString(m, "severity", "level")))
	if !severity.IsValid() {
		severity = models.SeverityCritical
	}

	active := true
	if b, ok := firstBool(m, "is_active", "isActive", "active"); ok {
		active = b
	}

	var description *string
	if d := firstString(m, "description", "notes"); d != "" {
		description = &d
	}

	return models.CriticalVitalRange{
		ID:          firstString(m, "id"),
		Parameter:   NormalizeParameter(param),
		Min:         firstNumber(m, "min_value", "minValue", "min", "critical_min"),
		Max:         firstNumber(m, "max_value", "maxValue", "max", "critical_max"),
		Unit:        firstString(m, "unit", "units"),
		Severity:    severity,
		Description: description,
		Active:      active,
	}, true
}

// NormalizeQueueEntry 转换队列条目；缺少患者ID返回 false
func NormalizeQueueEntry(m map[string]any, fallback models.ServicePoint) (models.QueueEntry, bool) {
	e := models.QueueEntry{
		ID:           firstString(m, "id", "queue_id", "queueId"),
		PatientID:    patientID(m),
		PatientName:  PatientDisplayName(m),
		Status:       models.QueueStatus(strings.ToLower(strings.TrimSpace(firstString(m, "status", "queue_status", "queueStatus")))),
		ServicePoint: models.ServicePoint(strings.ToLower(firstString(m, "service_point", "servicePoint"))),
	}
	if e.PatientID == "" {
		return e, false
	}
	if e.ServicePoint == "" {
		e.ServicePoint = fallback
	}
	return e, true
}

// PatientDisplayName 显示名：优先合并字段，其次 first + last，否则为空
func PatientDisplayName(m map[string]any) string {
	if name := firstString(m, "patient_name", "patientName", "full_name", "fullName"); name != "" {
		return name
	}
	if p, ok := m["patient"].(map[string]any); ok {
		if name := firstString(p, "full_name", "fullName", "name"); name != "" {
			return name
		}
		if name := joinName(p); name != "" {
			return name
		}
	}
	return joinName(m)
}

func joinName(m map[string]any) string {
	first := firstString(m, "first_name", "firstName")
	last := firstString(m, "last_name", "lastName")
	return strings.TrimSpace(first + " " + last)
}

func patientID(m map[string]any) string {
	if id := firstString(m, "patient_id", "patientId"); id != "" {
		return id
	}
	switch p := m["patient"].(type) {
	case map[string]any:
		return firstString(p, "id", "patient_id", "patientId")
	case string:
		return strings.TrimSpace(p)
	case float64:
		return strconv.FormatFloat(p, 'f', -1, 64)
	}
	return ""
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			return v.String()
		}
	}
	return ""
}

func firstNumber(m map[string]any, keys ...string) *float64 {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return &v
		case string:
			s := strings.TrimSpace(v)
			if s == "" {
				continue
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return &f
			}
		}
	}
	return nil
}

func firstBool(m map[string]any, keys ...string) (bool, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case bool:
			return v, true
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				return b, true
			}
		case float64:
			return v != 0, true
		}
	}
	return false, false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func firstTime(m map[string]any, keys ...string) time.Time {
	for _, k := range keys {
		s, ok := m[k].(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

func splitBloodPressure(bp string) (float64, float64, bool) {
	parts := strings.SplitN(bp, "/", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	sys, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	dia, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return sys, dia, true
}
