package models

import "time"

// Notification - событие для Telegram и WebSocket подписчиков
type Notification struct {
	Timestamp time.Time              `json:"timestamp"`
	Type      string                 `json:"type"`     // OPEN, REJECTED, ERROR, STOP_FAIL, SIMULATED
	Severity  string                 `json:"severity"` // info, warn, error
	Message   string                 `json:"message"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
}

// Типы уведомлений
const (
	NotificationTypeOpen      = "OPEN"      // позиция открыта
	NotificationTypeSimulated = "SIMULATED" // торговля выключена, ордер симулирован
	NotificationTypeRejected  = "REJECTED"  // отклонено риск-лимитами
	NotificationTypeError     = "ERROR"     // ошибка входа
	NotificationTypeStopFail  = "STOP_FAIL" // не удалось поставить SL/TP
)

// Уровни важности
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)
