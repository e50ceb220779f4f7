package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// NotificationType 危急通知来源
type NotificationType string

const (
	NotificationVital NotificationType = "vital"
	NotificationLab   NotificationType = "lab"
)

// IsValid 检查通知类型是否合法
func (t NotificationType) IsValid() bool {
	return t == NotificationVital || t == NotificationLab
}

// Severity 危急级别
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityUrgent   Severity = "urgent"
)

// IsValid 检查级别是否合法
func (s Severity) IsValid() bool {
	return s == SeverityCritical || s == SeverityUrgent
}

// AlertValue 告警读数：生命体征为数值，检验结果可以是文本（如 "positive"）
// JSON 中为 number 或 string，两者都为空时为 null
type AlertValue struct {
	Number *float64
	Text   *string
}

// NumberValue 数值读数
func NumberValue(v float64) AlertValue {
	return AlertValue{Number: &v}
}

// TextValue 文本读数
func TextValue(s string) AlertValue {
	return AlertValue{Text: &s}
}

// Float 数值读数，非数值返回 false
func (v AlertValue) Float() (float64, bool) {
	if v.Number == nil {
		return 0, false
	}
	return *v.Number, true
}

// IsZero 没有读数
func (v AlertValue) IsZero() bool {
	return v.Number == nil && v.Text == nil
}

func (v AlertValue) String() string {
	switch {
	case v.Number != nil:
		return strconv.FormatFloat(*v.Number, 'f', -1, 64)
	case v.Text != nil:
		return *v.Text
	}
	return ""
}

func (v AlertValue) clone() AlertValue {
	out := AlertValue{}
	if v.Number != nil {
		n := *v.Number
		out.Number = &n
	}
	if v.Text != nil {
		t := *v.Text
		out.Text = &t
	}
	return out
}

func (v AlertValue) MarshalJSON() ([]byte, error) {
	switch {
	case v.Number != nil:
		return json.Marshal(*v.Number)
	case v.Text != nil:
		return json.Marshal(*v.Text)
	}
	return []byte("null"), nil
}

func (v *AlertValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*v = AlertValue{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v.Text = &s
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("alert value must be a number or a string: %w", err)
	}
	v.Number = &f
	return nil
}

// Alert 单项超限告警
type Alert struct {
	Parameter   string     `json:"parameter"`
	Value       AlertValue `json:"value"`
	Unit        string     `json:"unit"`
	Range       string     `json:"range"`                 // 可读的安全范围描述，如 "40-180 bpm"
	Description *string    `json:"description,omitempty"` // 来自范围配置的说明
	Severity    Severity   `json:"severity"`
}

// CriticalNotification 患者危急通知（每个患者最多一条）
type CriticalNotification struct {
	ID          string           `json:"id"`
	PatientID   string           `json:"patientId"`
	PatientName string           `json:"patientName,omitempty"`
	Type        NotificationType `json:"type"`
	Alerts      []Alert          `json:"alerts"`
	Timestamp   time.Time        `json:"timestamp"` // 创建时间，更新时保持不变
}

// NotificationInput 新增/更新通知的输入
type NotificationInput struct {
	PatientID   string           `json:"patientId"`
	PatientName string           `json:"patientName,omitempty"`
	Type        NotificationType `json:"type"`
	Alerts      []Alert          `json:"alerts"`
}

// Clone 深拷贝，避免调用方修改内部状态
func (n CriticalNotification) Clone() CriticalNotification {
	out := n
	out.Alerts = make([]Alert, len(n.Alerts))
	for i, a := range n.Alerts {
		a.Value = a.Value.clone()
		if a.Description != nil {
			d := *a.Description
			a.Description = &d
		}
		out.Alerts[i] = a
	}
	return out
}
