package httpapi

import (
	"context"
	"net/http"

	"critical-alerts/internal/client"
	"critical-alerts/internal/models"

	"go.uber.org/zap"
)

// NotificationService 处理器依赖的服务能力
type NotificationService interface {
	List() []models.CriticalNotification
	Get(patientID string) (models.CriticalNotification, bool)
	AddNotification(ctx context.Context, input models.NotificationInput) (models.CriticalNotification, bool)
	RemoveNotification(ctx context.Context, patientID string) bool
	ClearAll(ctx context.Context)
	RecordVitals(ctx context.Context, reading models.VitalsReading) ([]models.Alert, error)
}

// NotificationHandler 危急通知 HTTP 处理器
type NotificationHandler struct {
	svc    NotificationService
	logger *zap.Logger
}

func NewNotificationHandler(svc NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{svc: svc, logger: logger}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	items := h.svc.List()
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": items,
		"total": len(items),
	}))
}

func (h *NotificationHandler) Get(w http.ResponseWriter, r *http.Request, patientID string) {
	n, ok := h.svc.Get(patientID)
	if !ok {
		writeJSON(w, http.StatusNotFound, Fail("notification not found"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(n))
}

func (h *NotificationHandler) Add(w http.ResponseWriter, r *http.Request) {
	var input models.NotificationInput
	if err := readBodyJSON(r, maxBodyBytes, &input); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	if input.Type != "" && !input.Type.IsValid() {
		writeJSON(w, http.StatusBadRequest, Fail("invalid notification type"))
		return
	}
	for _, a := range input.Alerts {
		if !a.Severity.IsValid() {
			writeJSON(w, http.StatusBadRequest, Fail("invalid alert severity"))
			return
		}
	}

	n, ok := h.svc.AddNotification(r.Context(), input)
	if !ok {
		writeJSON(w, http.StatusBadRequest, Fail("patientId and at least one alert are required"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(n))
}

func (h *NotificationHandler) Remove(w http.ResponseWriter, r *http.Request, patientID string) {
	removed := h.svc.RemoveNotification(r.Context(), patientID)
	writeJSON(w, http.StatusOK, Ok(map[string]bool{"removed": removed}))
}

func (h *NotificationHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	h.svc.ClearAll(r.Context())
	writeJSON(w, http.StatusOK, Ok[any](nil))
}

// RecordVitals 保存生命体征后的评估入口，请求体字段与后端生命体征记录一致
func (h *NotificationHandler) RecordVitals(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := readBodyJSON(r, maxBodyBytes, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	reading, ok := client.NormalizeVitals(body)
	if !ok {
		writeJSON(w, http.StatusBadRequest, Fail("patient_id is required"))
		return
	}

	alerts, err := h.svc.RecordVitals(r.Context(), reading)
	if err != nil {
		h.logger.Error("Failed to evaluate vitals",
			zap.String("patient_id", reading.PatientID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusBadGateway, Fail("failed to evaluate vitals"))
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"patientId": reading.PatientID,
		"alerts":    alerts,
		"critical":  len(alerts) > 0,
	}))
}
