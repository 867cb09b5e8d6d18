package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"signaltrader/internal/bot"
	"signaltrader/internal/config"
	"signaltrader/internal/exchange"
	"signaltrader/internal/models"
)

// ============ Mock WebSocket Hub ============

type MockBroadcaster struct {
	mu            sync.Mutex
	notifications []*models.Notification
	modes         []bool
}

func (m *MockBroadcaster) BroadcastNotification(n *models.Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
}

func (m *MockBroadcaster) BroadcastTradingMode(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modes = append(m.modes, enabled)
}

func (m *MockBroadcaster) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notifications)
}

// ============ Mock Notifier ============

type MockNotifier struct {
	mu    sync.Mutex
	sent  []string
	err   error
	block chan struct{} // если задан, Send ждет его закрытия
}

func (m *MockNotifier) Name() string { return "mock" }

func (m *MockNotifier) Send(ctx context.Context, msg string) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.err
}

func (m *MockNotifier) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

// ============ Mock Gateway ============

type MockAccountGateway struct {
	balance   exchange.Result[*exchange.Balance]
	positions exchange.Result[[]exchange.Position]
	conn      exchange.Result[time.Time]
	trading   bool

	lastInstrument string
	hadDeadline    bool
}

func NewMockAccountGateway() *MockAccountGateway {
	return &MockAccountGateway{
		balance:   exchange.Ok(&exchange.Balance{TotalEquity: decimal.NewFromInt(1000)}),
		positions: exchange.Ok([]exchange.Position{}),
		conn:      exchange.Ok(time.Now()),
	}
}

func (m *MockAccountGateway) GetBalance(ctx context.Context) exchange.Result[*exchange.Balance] {
	_, m.hadDeadline = ctx.Deadline()
	return m.balance
}

func (m *MockAccountGateway) GetPositions(ctx context.Context, instrument string) exchange.Result[[]exchange.Position] {
	_, m.hadDeadline = ctx.Deadline()
	m.lastInstrument = instrument
	return m.positions
}

func (m *MockAccountGateway) CheckConnection(ctx context.Context) exchange.Result[time.Time] {
	return m.conn
}

func (m *MockAccountGateway) TradingEnabled() bool          { return m.trading }
func (m *MockAccountGateway) SetTradingEnabled(enabled bool) { m.trading = enabled }

// ============ Stat providers ============

type staticRisk bot.RiskSnapshot

func (s staticRisk) Snapshot() bot.RiskSnapshot { return bot.RiskSnapshot(s) }

type staticDispatcher bot.DispatcherStats

func (s staticDispatcher) Stats() bot.DispatcherStats { return bot.DispatcherStats(s) }

type staticSagas bot.PositionStats

func (s staticSagas) Stats() bot.PositionStats { return bot.PositionStats(s) }

func testConfig() *config.Config {
	return &config.Config{
		OKX: config.OKXConfig{
			APIKey:     "abcdef123456",
			SecretKey:  "secret-key-value",
			Passphrase: "pass",
			Sandbox:    true,
			BaseURL:    "https://www.okx.com",
		},
		Trading: config.TradingConfig{OrderTimeout: time.Second},
		Risk: config.RiskConfig{
			MaxPositionSize:       decimal.RequireFromString("0.1"),
			MaxLeverage:           10,
			MaxTotalPositionValue: decimal.NewFromInt(1000),
			MaxDailyTrades:        20,
		},
	}
}

var errSendFailed = errors.New("send failed")
