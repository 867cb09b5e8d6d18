package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signaltrader/internal/api"
	"signaltrader/internal/bot"
	"signaltrader/internal/config"
	"signaltrader/internal/exchange"
	"signaltrader/internal/notify"
	"signaltrader/internal/service"
	"signaltrader/internal/websocket"
	"signaltrader/pkg/crypto"
	"signaltrader/pkg/utils"
)

// version подставляется при сборке: -ldflags "-X main.version=1.2.3"
var version = "dev"

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       cfg.Logging.File,
		Development:  cfg.Server.Debug,
		MaxSizeBytes: cfg.Logging.MaxSize,
		MaxBackups:   cfg.Logging.BackupCount,
	})
	defer func() { _ = logger.Sync() }()

	if err := decryptCredentials(cfg); err != nil {
		logger.Fatal("failed to decrypt OKX credentials", utils.Err(err))
	}

	// Биржа
	httpCfg := exchange.DefaultHTTPClientConfig()
	httpCfg.TotalTimeout = cfg.Trading.OrderTimeout
	httpCfg.ProxyURL = cfg.OKX.ProxyURL

	okx, err := exchange.NewOKX(exchange.OKXConfig{
		APIKey:     cfg.OKX.APIKey,
		SecretKey:  cfg.OKX.SecretKey,
		Passphrase: cfg.OKX.Passphrase,
		BaseURL:    cfg.OKX.BaseURL,
		Sandbox:    cfg.OKX.Sandbox,
		HTTP:       httpCfg,
	})
	if err != nil {
		logger.Fatal("failed to create OKX client", utils.Err(err))
	}

	gateway := exchange.NewGateway(okx, cfg.Trading.EnableTrading)
	gateway.SetObserver(bot.RecordExchangeCall)
	bot.UpdateTradingEnabled(cfg.Trading.EnableTrading)

	// Торговое ядро
	risk, err := bot.NewRiskLimiter(bot.RiskLimits{
		MaxPositionSize:       cfg.Risk.MaxPositionSize,
		MaxLeverage:           cfg.Risk.MaxLeverage,
		MaxDailyTrades:        cfg.Risk.MaxDailyTrades,
		MaxTotalPositionValue: cfg.Risk.MaxTotalPositionValue,
		SupportedSymbols:      cfg.Risk.SupportedSymbols,
	})
	if err != nil {
		logger.Fatal("invalid risk limits", utils.Err(err))
	}
	positions := bot.NewPositionManager(gateway, risk, cfg.Trading.OrderTimeout)
	positions.SetEntryPolicy(bot.EntryPolicy{
		OrderType:   cfg.Trading.DefaultOrderType,
		SlippagePct: cfg.Trading.SlippageTolerance,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Уведомления и WebSocket
	notificationService := service.NewNotificationService(0, newNotifier(cfg, logger))
	notificationService.Start()

	hub := websocket.NewHub(cfg.Server.AllowedOrigins)
	go hub.Run(ctx)
	notificationService.SetWebSocketHub(hub)

	processor := bot.NewSignalProcessor(positions, risk, hub, notificationService)
	dispatcher := bot.NewDispatcher(processor, cfg.Dispatch.Workers, cfg.Dispatch.QueueSize)
	dispatcher.Start(ctx)

	accountService := service.NewAccountService(gateway, cfg, risk, dispatcher, positions)
	accountService.SetTradingModeHub(hub)

	// Настройка HTTP роутера
	router := api.SetupRoutes(&api.Dependencies{
		Submitter:           dispatcher,
		AccountService:      accountService,
		NotificationService: notificationService,
		WebSocket:           hub.ServeWS,
		Version:             version,
		WebhookSecret:       cfg.Security.WebhookSecret,
		AllowedOrigins:      cfg.Server.AllowedOrigins,
		DefaultLeverage:     cfg.Trading.DefaultLeverage,
		DebugUsername:       cfg.Security.DebugUsername,
		DebugPasswordHash:   cfg.Security.DebugPasswordHash,
		DebugOpen:           cfg.Server.Debug,
	})

	// HTTP сервер
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("starting signal trader",
		utils.String("version", version),
		utils.String("addr", server.Addr),
		utils.Bool("trading_enabled", cfg.Trading.EnableTrading),
		utils.Bool("sandbox", cfg.OKX.Sandbox),
		utils.Bool("webhook_signature", cfg.Security.WebhookSecret != ""),
		utils.Int("workers", cfg.Dispatch.Workers),
		utils.Int("queue_size", cfg.Dispatch.QueueSize),
		utils.Int("supported_symbols", len(cfg.Risk.SupportedSymbols)))
	if !cfg.Trading.EnableTrading {
		logger.Warn("trading disabled: orders will be simulated")
	}

	// Запуск сервера в отдельной горутине
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutting down", utils.String("signal", sig.String()))
	case err := <-serverErr:
		logger.Error("server failed", utils.Err(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Сначала перестаем принимать вебхуки, затем дожидаемся начатых саг
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server forced to shutdown", utils.Err(err))
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Error("dispatcher did not drain in time", utils.Err(err))
	}
	notificationService.Stop()
	cancel()

	logger.Info("server exited")
}

// decryptCredentials расшифровывает ключи OKX с префиксом enc:
func decryptCredentials(cfg *config.Config) error {
	fields := map[string]*string{
		"OKX_API_KEY":    &cfg.OKX.APIKey,
		"OKX_SECRET_KEY": &cfg.OKX.SecretKey,
		"OKX_PASSPHRASE": &cfg.OKX.Passphrase,
	}
	for name, value := range fields {
		plain, err := crypto.DecryptCredential(*value, cfg.Security.CredentialsKey)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*value = plain
	}
	return nil
}

// newNotifier выбирает канал доставки: Telegram, если настроен, иначе лог
func newNotifier(cfg *config.Config, logger *utils.Logger) notify.Notifier {
	if cfg.Notify.TelegramToken == "" {
		return notify.NewLog()
	}
	tg, err := notify.NewTelegram(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
	if err != nil {
		logger.Warn("telegram notifier unavailable, falling back to log", utils.Err(err))
		return notify.NewLog()
	}
	return tg
}
