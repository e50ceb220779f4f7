package evaluator

import (
	"strconv"
	"strings"

	"critical-alerts/internal/models"
)

// Evaluate 用危急值范围评估一次生命体征记录，返回所有超限项
// 纯函数：无日志、无 I/O；等于边界值不算超限
func Evaluate(reading models.VitalsReading, ranges []models.CriticalVitalRange) []models.Alert {
	var alerts []models.Alert

	for _, r := range ranges {
		if !r.Active {
			continue
		}

		value, ok := reading.Value(r.Parameter)
		if !ok {
			continue
		}

		if !breached(value, r.Min, r.Max) {
			continue
		}

		unit := r.Unit
		if unit == "" {
			unit = models.DefaultUnits[r.Parameter]
		}

		var description *string
		if r.Description != nil && *r.Description != "" {
			d := *r.Description
			description = &d
		}

		alerts = append(alerts, models.Alert{
			Parameter:   r.Parameter,
			Value:       models.NumberValue(value),
			Unit:        unit,
			Range:       FormatRange(r.Min, r.Max, unit),
			Description: description,
			Severity:    r.Severity,
		})
	}

	return alerts
}

// breached 严格区间外才算超限
func breached(value float64, min, max *float64) bool {
	if min != nil && value < *min {
		return true
	}
	if max != nil && value > *max {
		return true
	}
	return false
}

// FormatRange 生成安全范围描述，如 "40-180 bpm"、"≥ 90 %"、"≤ 39.5 °C"
func FormatRange(min, max *float64, unit string) string {
	var b strings.Builder

	switch {
	case min != nil && max != nil:
		b.WriteString(formatNumber(*min))
		b.WriteString("-")
		b.WriteString(formatNumber(*max))
	case min != nil:
		b.WriteString("≥ ")
		b.WriteString(formatNumber(*min))
	case max != nil:
		b.WriteString("≤ ")
		b.WriteString(formatNumber(*max))
	default:
		return "unbounded"
	}

	if unit != "" {
		b.WriteString(" ")
		b.WriteString(unit)
	}
	return b.String()
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
