package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	OKX      OKXConfig
	Trading  TradingConfig
	Risk     RiskConfig
	Dispatch DispatchConfig
	Notify   NotifyConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port           int
	Host           string
	Debug          bool
	AllowedOrigins []string // CORS и WebSocket; пусто = любые
}

// OKXConfig - доступ к аккаунту OKX
type OKXConfig struct {
	APIKey     string
	SecretKey  string
	Passphrase string
	Sandbox    bool   // x-simulated-trading: 1
	BaseURL    string
	ProxyURL   string // опциональный прокси для запросов к бирже
}

// TradingConfig - параметры исполнения ордеров
type TradingConfig struct {
	EnableTrading     bool // false = ордера симулируются, сеть не трогаем
	DefaultOrderType  string
	DefaultLeverage   int
	SlippageTolerance decimal.Decimal
	OrderTimeout      time.Duration
}

// RiskConfig - статические лимиты риска
type RiskConfig struct {
	MaxPositionSize       decimal.Decimal
	MaxLeverage           int
	MaxTotalPositionValue decimal.Decimal // 0 = не проверяется
	MaxDailyTrades        int
	SupportedSymbols      []string
}

// DispatchConfig - пул фоновой обработки сигналов
type DispatchConfig struct {
	Workers   int
	QueueSize int
}

// NotifyConfig - доставка уведомлений
type NotifyConfig struct {
	TelegramToken  string
	TelegramChatID int64
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	WebhookSecret     string
	CredentialsKey    string // ключ AES-256 для OKX ключей с префиксом enc:
	DebugUsername     string
	DebugPasswordHash string // bcrypt
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level       string
	Format      string
	File        string
	MaxSize     int64 // байт
	BackupCount int
}

// DefaultSupportedSymbols - инструменты, разрешенные без явной настройки
var DefaultSupportedSymbols = []string{
	"BTC-USDT-SWAP",
	"ETH-USDT-SWAP",
	"ADA-USDT-SWAP",
	"DOT-USDT-SWAP",
	"LINK-USDT-SWAP",
	"LTC-USDT-SWAP",
	"BCH-USDT-SWAP",
	"XRP-USDT-SWAP",
	"EOS-USDT-SWAP",
	"TRX-USDT-SWAP",
}

var placeholderCredentials = map[string]bool{
	"your_api_key":    true,
	"your_secret_key": true,
	"your_passphrase": true,
}

// Load загружает конфигурацию из переменных окружения.
// Если рядом лежит .env, он подгружается первым; уже заданные переменные не перетираются.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Debug:          getEnvAsBool("DEBUG", false),
			AllowedOrigins: append(getEnvAsRawList("ALLOWED_ORIGINS"), getEnvAsRawList("CORS_ALLOWED_ORIGINS")...),
		},
		OKX: OKXConfig{
			APIKey:     getEnv("OKX_API_KEY", ""),
			SecretKey:  getEnv("OKX_SECRET_KEY", ""),
			Passphrase: getEnv("OKX_PASSPHRASE", ""),
			Sandbox:    getEnvAsBool("OKX_SANDBOX", true),
			BaseURL:    getEnv("OKX_BASE_URL", "https://www.okx.com"),
			ProxyURL:   getEnv("PROXY_URL", ""),
		},
		Trading: TradingConfig{
			EnableTrading:     getEnvAsBool("ENABLE_TRADING", false),
			DefaultOrderType:  strings.ToLower(getEnv("DEFAULT_ORDER_TYPE", "market")),
			DefaultLeverage:   getEnvAsInt("DEFAULT_LEVERAGE", 10),
			SlippageTolerance: getEnvAsDecimal("SLIPPAGE_TOLERANCE", decimal.NewFromFloat(0.1)),
			OrderTimeout:      getEnvAsSeconds("ORDER_TIMEOUT", 30*time.Second),
		},
		Risk: RiskConfig{
			MaxPositionSize:       getEnvAsDecimal("MAX_POSITION_SIZE", decimal.NewFromFloat(0.1)),
			MaxLeverage:           getEnvAsInt("MAX_LEVERAGE", 10),
			MaxTotalPositionValue: getEnvAsDecimal("MAX_TOTAL_POSITION_VALUE", decimal.NewFromInt(1000)),
			MaxDailyTrades:        getEnvAsInt("MAX_DAILY_TRADES", 20),
			SupportedSymbols:      getEnvAsList("SUPPORTED_SYMBOLS", DefaultSupportedSymbols),
		},
		Dispatch: DispatchConfig{
			Workers:   getEnvAsInt("DISPATCH_WORKERS", 4),
			QueueSize: getEnvAsInt("DISPATCH_QUEUE_SIZE", 100),
		},
		Notify: NotifyConfig{
			TelegramToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
			TelegramChatID: getEnvAsInt64("TELEGRAM_CHAT_ID", 0),
		},
		Security: SecurityConfig{
			WebhookSecret:     getEnv("WEBHOOK_SECRET", ""),
			CredentialsKey:    getEnv("CREDENTIALS_KEY", ""),
			DebugUsername:     getEnv("DEBUG_USERNAME", ""),
			DebugPasswordHash: getEnv("DEBUG_PASSWORD_HASH", ""),
		},
		Logging: LoggingConfig{
			Level:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format:      getEnv("LOG_FORMAT", "json"),
			File:        getEnv("LOG_FILE", "trading.log"),
			MaxSize:     getEnvAsInt64("MAX_LOG_SIZE", 10485760),
			BackupCount: getEnvAsInt("LOG_BACKUP_COUNT", 5),
		},
	}

	// Валидация числовых диапазонов
	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	// Ключи обязательны только при реальной торговле
	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecurity проверяет учетные данные биржи
func (c *Config) validateSecurity() error {
	if c.Security.CredentialsKey != "" && len(c.Security.CredentialsKey) != 32 {
		return fmt.Errorf("CREDENTIALS_KEY must be exactly 32 bytes for AES-256")
	}

	if !c.Trading.EnableTrading {
		return nil
	}

	creds := map[string]string{
		"OKX_API_KEY":    c.OKX.APIKey,
		"OKX_SECRET_KEY": c.OKX.SecretKey,
		"OKX_PASSPHRASE": c.OKX.Passphrase,
	}
	for name, value := range creds {
		if value == "" {
			return fmt.Errorf("%s is required when ENABLE_TRADING=true", name)
		}
		if placeholderCredentials[strings.ToLower(value)] {
			return fmt.Errorf("%s must be changed from placeholder value", name)
		}
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Risk.MaxLeverage < 1 || c.Risk.MaxLeverage > 100 {
		return fmt.Errorf("MAX_LEVERAGE must be between 1 and 100, got %d", c.Risk.MaxLeverage)
	}

	if !c.Risk.MaxPositionSize.IsPositive() {
		return fmt.Errorf("MAX_POSITION_SIZE must be positive, got %s", c.Risk.MaxPositionSize)
	}

	if c.Risk.MaxTotalPositionValue.IsNegative() {
		return fmt.Errorf("MAX_TOTAL_POSITION_VALUE cannot be negative, got %s", c.Risk.MaxTotalPositionValue)
	}

	if c.Risk.MaxDailyTrades < 1 {
		return fmt.Errorf("MAX_DAILY_TRADES must be at least 1, got %d", c.Risk.MaxDailyTrades)
	}

	if len(c.Risk.SupportedSymbols) == 0 {
		return fmt.Errorf("SUPPORTED_SYMBOLS cannot be empty")
	}

	if c.Trading.DefaultLeverage < 1 {
		return fmt.Errorf("DEFAULT_LEVERAGE must be at least 1, got %d", c.Trading.DefaultLeverage)
	}

	if c.Trading.DefaultOrderType != "market" && c.Trading.DefaultOrderType != "limit" {
		return fmt.Errorf("DEFAULT_ORDER_TYPE must be market or limit, got %q", c.Trading.DefaultOrderType)
	}

	// проценты от цены сигнала для limit входа
	if c.Trading.SlippageTolerance.IsNegative() || c.Trading.SlippageTolerance.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return fmt.Errorf("SLIPPAGE_TOLERANCE must be in [0, 100), got %s", c.Trading.SlippageTolerance)
	}

	// Валидация таймаутов (должны быть положительными)
	if c.Trading.OrderTimeout <= 0 {
		return fmt.Errorf("ORDER_TIMEOUT must be positive, got %v", c.Trading.OrderTimeout)
	}

	if c.Dispatch.Workers < 1 {
		return fmt.Errorf("DISPATCH_WORKERS must be at least 1, got %d", c.Dispatch.Workers)
	}

	if c.Dispatch.QueueSize < 1 {
		return fmt.Errorf("DISPATCH_QUEUE_SIZE must be at least 1, got %d", c.Dispatch.QueueSize)
	}

	if c.Logging.MaxSize < 0 || c.Logging.BackupCount < 0 {
		return fmt.Errorf("MAX_LOG_SIZE and LOG_BACKUP_COUNT cannot be negative")
	}

	return nil
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSeconds принимает как "30" (секунды), так и "30s"
func getEnvAsSeconds(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return append([]string(nil), defaultValue...)
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		item = strings.ToUpper(strings.TrimSpace(item))
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvAsRawList - список через запятую без смены регистра (origins, URL)
func getEnvAsRawList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
