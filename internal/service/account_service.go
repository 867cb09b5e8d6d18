package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"signaltrader/internal/bot"
	"signaltrader/internal/config"
	"signaltrader/internal/exchange"
	"signaltrader/pkg/utils"
)

// ErrCredentialsMissing - реальную торговлю нельзя включить без ключей OKX
var ErrCredentialsMissing = errors.New("OKX credentials are not configured")

// Статусы подключения к бирже
const (
	ConnectionConnected    = "connected"
	ConnectionDisconnected = "disconnected"
)

// Status - ответ /status
type Status struct {
	ServerStatus  string              `json:"server_status"`
	OKXConnection string              `json:"okx_connection"`
	OKXError      string              `json:"okx_error,omitempty"`
	Timestamp     time.Time           `json:"timestamp"`
	Uptime        string              `json:"uptime"`
	Config        StatusConfig        `json:"config"`
	Risk          bot.RiskSnapshot    `json:"risk"`
	Dispatcher    bot.DispatcherStats `json:"dispatcher"`
	Sagas         bot.PositionStats   `json:"sagas"`
}

// StatusConfig - действующие лимиты и флаги
type StatusConfig struct {
	MaxPositionSize       decimal.Decimal `json:"max_position_size"`
	MaxLeverage           int             `json:"max_leverage"`
	EnableTrading         bool            `json:"enable_trading"`
	MaxDailyTrades        int             `json:"max_daily_trades"`
	MaxTotalPositionValue decimal.Decimal `json:"max_total_position_value"`
	Sandbox               bool            `json:"sandbox"`
}

// DebugConfig - ответ /debug/config, ключи показаны только префиксом
type DebugConfig struct {
	APIConfig   DebugAPIConfig   `json:"api_config"`
	Environment DebugEnvironment `json:"environment"`
	Timestamp   time.Time        `json:"timestamp"`
}

type DebugAPIConfig struct {
	APIKeyPrefix    string `json:"api_key_prefix"`
	SecretKeyPrefix string `json:"secret_key_prefix"`
	PassphraseSet   bool   `json:"passphrase_set"`
	SandboxMode     bool   `json:"sandbox_mode"`
	TradingEnabled  bool   `json:"trading_enabled"`
	BaseURL         string `json:"base_url"`
	ProxyConfigured bool   `json:"proxy_configured"`
}

type DebugEnvironment struct {
	Flag            string `json:"flag"` // "1" = демо-торговля OKX
	EnvironmentName string `json:"environment_name"`
}

// AccountService - чтение аккаунта OKX и состояния сервиса
type AccountService struct {
	gateway     AccountGateway
	cfg         *config.Config
	risk        RiskSnapshotter
	dispatcher  DispatcherStatter
	sagas       PositionStatter
	modeHub     TradingModeBroadcaster
	callTimeout time.Duration
	startedAt   time.Time
}

// NewAccountService создает сервис
func NewAccountService(
	gateway AccountGateway,
	cfg *config.Config,
	risk RiskSnapshotter,
	dispatcher DispatcherStatter,
	sagas PositionStatter,
) *AccountService {
	return &AccountService{
		gateway:     gateway,
		cfg:         cfg,
		risk:        risk,
		dispatcher:  dispatcher,
		sagas:       sagas,
		callTimeout: cfg.Trading.OrderTimeout,
		startedAt:   time.Now(),
	}
}

// SetTradingModeHub подключает рассылку смены режима торговли
func (s *AccountService) SetTradingModeHub(hub TradingModeBroadcaster) {
	s.modeHub = hub
}

// GetPositions возвращает все открытые позиции по свопам. Не кэшируется.
func (s *AccountService) GetPositions(ctx context.Context) exchange.Result[[]exchange.Position] {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return s.gateway.GetPositions(ctx, "")
}

// GetBalance возвращает баланс аккаунта
func (s *AccountService) GetBalance(ctx context.Context) exchange.Result[*exchange.Balance] {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return s.gateway.GetBalance(ctx)
}

// GetStatus собирает состояние сервиса. Подключение проверяется запросом
// публичного времени OKX.
func (s *AccountService) GetStatus(ctx context.Context) *Status {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	status := &Status{
		ServerStatus:  "running",
		OKXConnection: ConnectionConnected,
		Timestamp:     time.Now(),
		Uptime:        utils.FormatDuration(time.Since(s.startedAt)),
		Config: StatusConfig{
			MaxPositionSize:       s.cfg.Risk.MaxPositionSize,
			MaxLeverage:           s.cfg.Risk.MaxLeverage,
			EnableTrading:         s.gateway.TradingEnabled(),
			MaxDailyTrades:        s.cfg.Risk.MaxDailyTrades,
			MaxTotalPositionValue: s.cfg.Risk.MaxTotalPositionValue,
			Sandbox:               s.cfg.OKX.Sandbox,
		},
		Risk:       s.risk.Snapshot(),
		Dispatcher: s.dispatcher.Stats(),
		Sagas:      s.sagas.Stats(),
	}

	if res := s.gateway.CheckConnection(ctx); !res.OK {
		status.OKXConnection = ConnectionDisconnected
		status.OKXError = res.Message
	}
	return status
}

// GetDebugConfig возвращает конфигурацию без секретов
func (s *AccountService) GetDebugConfig() *DebugConfig {
	okx := s.cfg.OKX
	env := DebugEnvironment{Flag: "0", EnvironmentName: "live"}
	if okx.Sandbox {
		env = DebugEnvironment{Flag: "1", EnvironmentName: "sandbox"}
	}
	return &DebugConfig{
		APIConfig: DebugAPIConfig{
			APIKeyPrefix:    maskSecret(okx.APIKey),
			SecretKeyPrefix: maskSecret(okx.SecretKey),
			PassphraseSet:   okx.Passphrase != "" && okx.Passphrase != "your_passphrase",
			SandboxMode:     okx.Sandbox,
			TradingEnabled:  s.gateway.TradingEnabled(),
			BaseURL:         okx.BaseURL,
			ProxyConfigured: okx.ProxyURL != "",
		},
		Environment: env,
		Timestamp:   time.Now(),
	}
}

// SetTradingEnabled переключает реальную торговлю на лету
func (s *AccountService) SetTradingEnabled(enabled bool) error {
	okx := s.cfg.OKX
	if enabled && (okx.APIKey == "" || okx.SecretKey == "" || okx.Passphrase == "") {
		return ErrCredentialsMissing
	}

	s.gateway.SetTradingEnabled(enabled)
	bot.UpdateTradingEnabled(enabled)
	if s.modeHub != nil {
		s.modeHub.BroadcastTradingMode(enabled)
	}
	return nil
}

// maskSecret оставляет первые 6 символов
func maskSecret(v string) string {
	if len(v) <= 6 {
		return "NOT_SET"
	}
	return v[:6] + "****"
}
