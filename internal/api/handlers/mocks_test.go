package handlers

import (
	"context"
	"strings"
	"sync"
	"time"

	"signaltrader/internal/exchange"
	"signaltrader/internal/models"
	"signaltrader/internal/service"
)

// ============ Mock Notification Service ============

// MockNotificationService мок для NotificationServiceInterface
type MockNotificationService struct {
	notifications []*models.Notification
	lastLimit     int
	mu            sync.RWMutex
}

func NewMockNotificationService() *MockNotificationService {
	return &MockNotificationService{}
}

func (m *MockNotificationService) AddNotification(notifType, severity, message string) {
	m.CreateNotification(&models.Notification{
		Timestamp: time.Now(),
		Type:      notifType,
		Severity:  severity,
		Message:   message,
	})
}

func (m *MockNotificationService) CreateNotification(n *models.Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
}

func (m *MockNotificationService) GetNotifications(types []string, limit int) []*models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit

	var out []*models.Notification
	for _, n := range m.notifications {
		if len(types) > 0 && !containsFold(types, n.Type) {
			continue
		}
		out = append(out, n)
		if len(out) == limit {
			break
		}
	}
	return out
}

func (m *MockNotificationService) ClearNotifications() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = nil
}

func (m *MockNotificationService) GetNotificationCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.notifications)
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

// ============ Mock Account Service ============

// MockAccountService мок для AccountServiceInterface
type MockAccountService struct {
	positions exchange.Result[[]exchange.Position]
	balance   exchange.Result[*exchange.Balance]
	status    *service.Status
	debug     *service.DebugConfig
	toggleErr error
	trading   bool
}

func NewMockAccountService() *MockAccountService {
	return &MockAccountService{
		positions: exchange.Ok([]exchange.Position{}),
		balance:   exchange.Ok(&exchange.Balance{}),
		status:    &service.Status{ServerStatus: "running", OKXConnection: service.ConnectionConnected},
		debug:     &service.DebugConfig{},
	}
}

func (m *MockAccountService) GetPositions(ctx context.Context) exchange.Result[[]exchange.Position] {
	return m.positions
}

func (m *MockAccountService) GetBalance(ctx context.Context) exchange.Result[*exchange.Balance] {
	return m.balance
}

func (m *MockAccountService) GetStatus(ctx context.Context) *service.Status { return m.status }

func (m *MockAccountService) GetDebugConfig() *service.DebugConfig { return m.debug }

func (m *MockAccountService) SetTradingEnabled(enabled bool) error {
	if m.toggleErr != nil {
		return m.toggleErr
	}
	m.trading = enabled
	return nil
}

// ============ Mock Submitter ============

// MockSubmitter записывает принятые сигналы
type MockSubmitter struct {
	mu      sync.Mutex
	signals []models.TradingSignal
	err     error
}

func (m *MockSubmitter) Submit(signal models.TradingSignal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.signals = append(m.signals, signal)
	return nil
}

func (m *MockSubmitter) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.signals)
}
