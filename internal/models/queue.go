package models

// ServicePoint 就诊环节
type ServicePoint string

const (
	ServicePointTriage       ServicePoint = "triage"
	ServicePointConsultation ServicePoint = "consultation"
	ServicePointLaboratory   ServicePoint = "laboratory"
	ServicePointRadiology    ServicePoint = "radiology"
	ServicePointPharmacy     ServicePoint = "pharmacy"
	ServicePointBilling      ServicePoint = "billing"
)

// QueueStatus 排队状态（未知状态原样保留）
type QueueStatus string

const (
	QueueWaiting   QueueStatus = "waiting"
	QueueCalled    QueueStatus = "called"
	QueueServing   QueueStatus = "serving"
	QueueCompleted QueueStatus = "completed"
)

// QueueEntry 队列条目（已规范化）
type QueueEntry struct {
	ID           string       `json:"id,omitempty"`
	PatientID    string       `json:"patientId"`
	PatientName  string       `json:"patientName,omitempty"`
	Status       QueueStatus  `json:"status"`
	ServicePoint ServicePoint `json:"servicePoint"`
}

// ServedServicePoints 判断"正在就诊"时检查的环节，顺序即查询顺序
var ServedServicePoints = []ServicePoint{
	ServicePointConsultation,
	ServicePointLaboratory,
	ServicePointRadiology,
}

// IsServing 患者是否在任一条目中处于 serving 状态（completed 不算）
func IsServing(entries []QueueEntry, patientID string) bool {
	for _, e := range entries {
		if e.PatientID == patientID && e.Status == QueueServing {
			return true
		}
	}
	return false
}

// HasPatient 条目中是否包含该患者
func HasPatient(entries []QueueEntry, patientID string) bool {
	for _, e := range entries {
		if e.PatientID == patientID {
			return true
		}
	}
	return false
}
