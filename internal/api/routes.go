package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"signaltrader/internal/api/handlers"
	"signaltrader/internal/api/middleware"
	"signaltrader/internal/service"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	Submitter           handlers.SignalSubmitter
	AccountService      service.AccountServiceInterface
	NotificationService service.NotificationServiceInterface
	WebSocket           http.HandlerFunc // hub.ServeWS

	Version        string
	WebhookSecret  string
	AllowedOrigins []string

	// Плечо для сигналов без поля leverage, 0 = models.DefaultLeverage
	DefaultLeverage int

	DebugUsername     string
	DebugPasswordHash string
	DebugOpen         bool // пускать в /debug без учетных данных (SERVER_DEBUG)
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
//	├── GET /health - liveness
//	├── POST /webhook - сигнал TradingView (подпись HMAC, если задан секрет)
//	├── GET /positions - открытые позиции OKX
//	├── GET /balance - баланс OKX
//	├── GET /status - состояние сервиса
//	├── /notifications
//	│   ├── GET - журнал уведомлений
//	│   └── DELETE - очистить журнал
//	├── GET /ws - WebSocket поток результатов саг
//	├── GET /metrics - Prometheus
//	└── /debug (Basic auth)
//	    ├── GET /config - конфигурация без секретов
//	    └── POST /trading - включить/выключить торговлю
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
// 4. WebhookSignature (только /webhook)
// 5. DebugAuth (только /debug)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS(deps.AllowedOrigins))

	router.HandleFunc("/health", handlers.Health(deps.Version)).Methods(http.MethodGet)

	if deps.Submitter != nil {
		webhook := handlers.NewWebhookHandler(deps.Submitter)
		if deps.DefaultLeverage > 0 {
			webhook.SetDefaultLeverage(deps.DefaultLeverage)
		}
		router.Handle("/webhook",
			middleware.WebhookSignature(deps.WebhookSecret)(http.HandlerFunc(webhook.HandleWebhook)),
		).Methods(http.MethodPost, http.MethodOptions)
	}

	if deps.AccountService != nil {
		account := handlers.NewAccountHandler(deps.AccountService)
		router.HandleFunc("/positions", account.GetPositions).Methods(http.MethodGet)
		router.HandleFunc("/balance", account.GetBalance).Methods(http.MethodGet)
		router.HandleFunc("/status", account.GetStatus).Methods(http.MethodGet)

		debug := router.PathPrefix("/debug").Subrouter()
		debug.Use(middleware.DebugAuth(deps.DebugUsername, deps.DebugPasswordHash, deps.DebugOpen))
		debug.HandleFunc("/config", account.GetDebugConfig).Methods(http.MethodGet)
		debug.HandleFunc("/trading", account.SetTradingMode).Methods(http.MethodPost)
	}

	if deps.NotificationService != nil {
		notifications := handlers.NewNotificationHandler(deps.NotificationService)
		router.HandleFunc("/notifications", notifications.GetNotifications).Methods(http.MethodGet)
		router.HandleFunc("/notifications", notifications.ClearNotifications).Methods(http.MethodDelete)
	}

	if deps.WebSocket != nil {
		router.HandleFunc("/ws", deps.WebSocket).Methods(http.MethodGet)
	}

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return router
}
