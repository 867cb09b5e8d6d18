package handlers

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"signaltrader/internal/bot"
	"signaltrader/internal/models"
	"signaltrader/pkg/utils"
)

// MaxWebhookBody - предел размера тела вебхука
const MaxWebhookBody = 1 << 20

var maxLeverage = decimal.NewFromInt(math.MaxInt32)

// SignalSubmitter ставит сигнал в фоновую обработку
type SignalSubmitter interface {
	Submit(signal models.TradingSignal) error
}

// WebhookHandler принимает сигналы TradingView
//
// Endpoints:
// - POST /webhook
//
// Обработчик только валидирует и ставит сигнал в очередь. Сага
// выполняется воркерами диспетчера, ответ не ждет биржу.
type WebhookHandler struct {
	submitter       SignalSubmitter
	defaultLeverage int
	log             *utils.Logger
}

// NewWebhookHandler создает обработчик
func NewWebhookHandler(submitter SignalSubmitter) *WebhookHandler {
	return &WebhookHandler{
		submitter:       submitter,
		defaultLeverage: models.DefaultLeverage,
		log:             utils.L().WithComponent("webhook"),
	}
}

// SetDefaultLeverage задает плечо для сигналов без поля leverage
func (h *WebhookHandler) SetDefaultLeverage(leverage int) {
	h.defaultLeverage = leverage
}

// webhookPayload - тело сигнала. Указатели отличают отсутствующее поле от нуля.
type webhookPayload struct {
	Action     *string          `json:"action"`
	Symbol     *string          `json:"symbol"`
	Price      *decimal.Decimal `json:"price"`
	Size       *decimal.Decimal `json:"size"`
	Leverage   *decimal.Decimal `json:"leverage"`
	StopLoss   *decimal.Decimal `json:"stop_loss"`
	TakeProfit *decimal.Decimal `json:"take_profit"`
}

// WebhookResponse - ответ на принятый сигнал
type WebhookResponse struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// payloadError - тело не прошло валидацию, текст уходит клиенту
type payloadError struct{ msg string }

func (e *payloadError) Error() string { return e.msg }

// HandleWebhook принимает сигнал
//
// POST /webhook
//
// HTTP коды:
// - 200 OK: сигнал принят в обработку
// - 400 Bad Request: невалидный JSON, нет обязательных полей, неизвестный action
// - 413 Request Entity Too Large: тело больше 1 MiB
// - 503 Service Unavailable: очередь заполнена или сервис останавливается
// - 500 Internal Server Error: прочие ошибки
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			bot.RecordSignalRejected("body_too_large")
			respondWithError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		bot.RecordSignalRejected("read_error")
		respondWithError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		bot.RecordSignalRejected("invalid_json")
		respondWithError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	signal, err := payload.toSignal(h.defaultLeverage)
	if err != nil {
		bot.RecordSignalRejected("invalid_payload")
		h.log.Warn("webhook payload rejected", utils.Err(err))
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	signal.RequestID = uuid.NewString()
	signal.ReceivedAt = time.Now()

	if err := h.submitter.Submit(signal); err != nil {
		switch {
		case errors.Is(err, bot.ErrQueueFull):
			bot.RecordSignalRejected("queue_full")
			respondWithError(w, http.StatusServiceUnavailable, "signal queue is full, retry later")
		case errors.Is(err, bot.ErrDispatcherStopped):
			bot.RecordSignalRejected("shutting_down")
			respondWithError(w, http.StatusServiceUnavailable, "service is shutting down")
		default:
			bot.RecordSignalRejected("internal")
			h.log.Error("failed to dispatch signal", utils.RequestID(signal.RequestID), utils.Err(err))
			respondWithError(w, http.StatusInternalServerError, "failed to process signal")
		}
		return
	}

	bot.RecordSignal(signal.Action)
	h.log.Info("signal received",
		utils.RequestID(signal.RequestID),
		utils.Action(signal.Action),
		utils.Symbol(signal.Symbol),
		utils.Volume(signal.Size),
		utils.Price(signal.Price))

	respondWithJSON(w, http.StatusOK, WebhookResponse{
		Status:    "received",
		Message:   fmt.Sprintf("%s %s %s accepted for processing", signal.Action, signal.Symbol, signal.Size),
		RequestID: signal.RequestID,
		Timestamp: signal.ReceivedAt,
	})
}

// toSignal проверяет обязательные поля и собирает сигнал
func (p *webhookPayload) toSignal(defaultLeverage int) (models.TradingSignal, error) {
	var missing []string
	if p.Action == nil || strings.TrimSpace(*p.Action) == "" {
		missing = append(missing, "action")
	}
	if p.Symbol == nil || strings.TrimSpace(*p.Symbol) == "" {
		missing = append(missing, "symbol")
	}
	if p.Price == nil {
		missing = append(missing, "price")
	}
	if p.Size == nil {
		missing = append(missing, "size")
	}
	if len(missing) > 0 {
		return models.TradingSignal{}, &payloadError{
			msg: "missing required fields: " + strings.Join(missing, ", "),
		}
	}

	action := strings.ToLower(strings.TrimSpace(*p.Action))
	if !models.IsValidAction(action) {
		return models.TradingSignal{}, &payloadError{
			msg: fmt.Sprintf("invalid action %q: must be buy or sell", *p.Action),
		}
	}

	signal := models.TradingSignal{
		Action:     action,
		Symbol:     strings.TrimSpace(*p.Symbol),
		Price:      *p.Price,
		Size:       *p.Size,
		StopLoss:   models.PositiveOrNil(p.StopLoss),
		TakeProfit: models.PositiveOrNil(p.TakeProfit),
	}

	if p.Leverage == nil {
		signal.Leverage = defaultLeverage
		return signal, nil
	}
	if !p.Leverage.IsInteger() {
		return models.TradingSignal{}, &payloadError{msg: "leverage must be an integer"}
	}
	// IntPart молча обрезает значения за пределами int64
	if p.Leverage.LessThan(decimal.NewFromInt(1)) || p.Leverage.GreaterThan(maxLeverage) {
		return models.TradingSignal{}, &payloadError{msg: fmt.Sprintf("leverage must be between 1 and %d", math.MaxInt32)}
	}
	signal.Leverage = int(p.Leverage.IntPart())
	return signal, nil
}
