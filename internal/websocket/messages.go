package websocket

import (
	"time"

	"signaltrader/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeSagaResult - итог обработки сигнала
	MessageTypeSagaResult MessageType = "sagaResult"

	// MessageTypeNotification - новое уведомление
	MessageTypeNotification MessageType = "notification"

	// MessageTypeTradingMode - переключение реальной торговли
	MessageTypeTradingMode MessageType = "tradingMode"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// SagaResultMessage - итог саги для подписчиков
type SagaResultMessage struct {
	BaseMessage
	Data *models.SagaResult `json:"data"`
}

// NotificationMessage - уведомление
type NotificationMessage struct {
	BaseMessage
	Data *models.Notification `json:"data"`
}

// TradingModeMessage - текущий режим торговли
type TradingModeMessage struct {
	BaseMessage
	Enabled bool `json:"enabled"`
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{Type: t, Timestamp: time.Now()}
}

// NewSagaResultMessage создает сообщение с итогом саги
func NewSagaResultMessage(result *models.SagaResult) *SagaResultMessage {
	return &SagaResultMessage{BaseMessage: newBase(MessageTypeSagaResult), Data: result}
}

// NewNotificationMessage создает сообщение с уведомлением
func NewNotificationMessage(n *models.Notification) *NotificationMessage {
	return &NotificationMessage{BaseMessage: newBase(MessageTypeNotification), Data: n}
}

// NewTradingModeMessage создает сообщение о режиме торговли
func NewTradingModeMessage(enabled bool) *TradingModeMessage {
	return &TradingModeMessage{BaseMessage: newBase(MessageTypeTradingMode), Enabled: enabled}
}
