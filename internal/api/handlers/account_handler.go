package handlers

import (
	"errors"
	"net/http"

	"signaltrader/internal/service"
)

// AccountHandler отдает состояние аккаунта OKX и сервиса
//
// Endpoints:
// - GET /positions - открытые позиции
// - GET /balance - баланс
// - GET /status - состояние сервиса, лимиты, очередь
// - GET /debug/config - конфигурация без секретов
// - POST /debug/trading - включение/выключение реальной торговли
type AccountHandler struct {
	accountService service.AccountServiceInterface
}

// NewAccountHandler создает новый AccountHandler с внедрением зависимости
func NewAccountHandler(accountService service.AccountServiceInterface) *AccountHandler {
	return &AccountHandler{accountService: accountService}
}

// GetPositions возвращает открытые позиции
//
// HTTP коды:
// - 200 OK: {success:true, data:[...]}
// - 502 Bad Gateway: биржа недоступна или вернула ошибку
func (h *AccountHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	res := h.accountService.GetPositions(r.Context())
	if !res.OK {
		respondWithJSON(w, http.StatusBadGateway, ExchangeResponse{Error: res.Message, Code: res.Code})
		return
	}
	respondWithJSON(w, http.StatusOK, ExchangeResponse{Success: true, Data: res.Value})
}

// GetBalance возвращает баланс аккаунта
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	res := h.accountService.GetBalance(r.Context())
	if !res.OK {
		respondWithJSON(w, http.StatusBadGateway, ExchangeResponse{Error: res.Message, Code: res.Code})
		return
	}
	respondWithJSON(w, http.StatusOK, ExchangeResponse{Success: true, Data: res.Value})
}

// GetStatus возвращает состояние сервиса. Отвечает 200 даже без связи с биржей.
func (h *AccountHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.accountService.GetStatus(r.Context()))
}

// GetDebugConfig возвращает конфигурацию с замаскированными ключами
func (h *AccountHandler) GetDebugConfig(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.accountService.GetDebugConfig())
}

// TradingModeRequest - тело POST /debug/trading
type TradingModeRequest struct {
	Enabled *bool `json:"enabled"`
}

// TradingModeResponse - режим торговли после переключения
type TradingModeResponse struct {
	TradingEnabled bool `json:"trading_enabled"`
}

// SetTradingMode переключает реальную торговлю
//
// HTTP коды:
// - 200 OK: режим переключен
// - 400 Bad Request: нет поля enabled
// - 409 Conflict: нельзя включить торговлю без ключей OKX
func (h *AccountHandler) SetTradingMode(w http.ResponseWriter, r *http.Request) {
	var req TradingModeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil || req.Enabled == nil {
		respondWithError(w, http.StatusBadRequest, "body must be {\"enabled\": true|false}")
		return
	}

	if err := h.accountService.SetTradingEnabled(*req.Enabled); err != nil {
		if errors.Is(err, service.ErrCredentialsMissing) {
			respondWithError(w, http.StatusConflict, err.Error())
			return
		}
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, TradingModeResponse{TradingEnabled: *req.Enabled})
}
