package service

import (
	"context"
	"time"

	"signaltrader/internal/bot"
	"signaltrader/internal/exchange"
	"signaltrader/internal/models"
)

// WebSocketBroadcaster - интерфейс для отправки WebSocket сообщений
//
// Позволяет избежать циклических зависимостей между пакетами
// и упрощает тестирование (можно подставить mock)
type WebSocketBroadcaster interface {
	BroadcastNotification(notif *models.Notification)
}

// TradingModeBroadcaster рассылает смену режима торговли
type TradingModeBroadcaster interface {
	BroadcastTradingMode(enabled bool)
}

// AccountGateway - часть exchange.Gateway, нужная для чтения аккаунта
type AccountGateway interface {
	GetBalance(ctx context.Context) exchange.Result[*exchange.Balance]
	GetPositions(ctx context.Context, instrument string) exchange.Result[[]exchange.Position]
	CheckConnection(ctx context.Context) exchange.Result[time.Time]
	TradingEnabled() bool
	SetTradingEnabled(enabled bool)
}

// RiskSnapshotter отдает состояние дневного лимита
type RiskSnapshotter interface {
	Snapshot() bot.RiskSnapshot
}

// DispatcherStatter отдает состояние очереди сигналов
type DispatcherStatter interface {
	Stats() bot.DispatcherStats
}

// PositionStatter отдает счетчики саг
type PositionStatter interface {
	Stats() bot.PositionStats
}

// Проверяем, что реальные компоненты реализуют интерфейсы
var _ AccountGateway = (*exchange.Gateway)(nil)
var _ RiskSnapshotter = (*bot.RiskLimiter)(nil)
var _ DispatcherStatter = (*bot.Dispatcher)(nil)
var _ PositionStatter = (*bot.PositionManager)(nil)

// ============ Интерфейсы сервисов для Dependency Injection ============

// NotificationServiceInterface определяет интерфейс сервиса уведомлений
type NotificationServiceInterface interface {
	GetNotifications(types []string, limit int) []*models.Notification
	ClearNotifications()
	CreateNotification(notif *models.Notification)
	GetNotificationCount() int
}

// AccountServiceInterface определяет интерфейс сервиса аккаунта
type AccountServiceInterface interface {
	GetPositions(ctx context.Context) exchange.Result[[]exchange.Position]
	GetBalance(ctx context.Context) exchange.Result[*exchange.Balance]
	GetStatus(ctx context.Context) *Status
	GetDebugConfig() *DebugConfig
	SetTradingEnabled(enabled bool) error
}

// Проверяем, что реальные сервисы реализуют интерфейсы
var _ NotificationServiceInterface = (*NotificationService)(nil)
var _ AccountServiceInterface = (*AccountService)(nil)
var _ bot.ResultPublisher = (*NotificationService)(nil)
