package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"signaltrader/internal/bot"
	"signaltrader/internal/models"
)

func postWebhook(h *WebhookHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.HandleWebhook(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return resp
}

func TestWebhookHandler_Accepts(t *testing.T) {
	sub := &MockSubmitter{}
	h := NewWebhookHandler(sub)

	w := postWebhook(h, `{"action":"BUY","symbol":"BTCUSDT","price":50000,"size":"0.01","leverage":5,"stop_loss":49000,"take_profit":0}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp WebhookResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "received" || resp.RequestID == "" || resp.Timestamp.IsZero() {
		t.Errorf("unexpected response: %+v", resp)
	}

	if sub.Count() != 1 {
		t.Fatalf("expected 1 dispatched signal, got %d", sub.Count())
	}
	sig := sub.signals[0]
	if sig.Action != "buy" {
		t.Errorf("expected normalized action buy, got %q", sig.Action)
	}
	if sig.Leverage != 5 || sig.Size.String() != "0.01" || sig.Price.String() != "50000" {
		t.Errorf("unexpected signal values: %+v", sig)
	}
	if sig.StopLoss == nil || sig.StopLoss.String() != "49000" {
		t.Errorf("expected stop loss 49000, got %v", sig.StopLoss)
	}
	if sig.TakeProfit != nil {
		t.Errorf("zero take profit must be dropped, got %v", sig.TakeProfit)
	}
	if sig.RequestID != resp.RequestID {
		t.Errorf("request id mismatch: %s vs %s", sig.RequestID, resp.RequestID)
	}
}

func TestWebhookHandler_LeverageOptional(t *testing.T) {
	sub := &MockSubmitter{}
	h := NewWebhookHandler(sub)

	w := postWebhook(h, `{"action":"sell","symbol":"ETHUSDT","price":"3000","size":"0.1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	// без поля плечо берётся по умолчанию
	if sub.signals[0].Leverage != models.DefaultLeverage {
		t.Errorf("expected default leverage %d, got %d", models.DefaultLeverage, sub.signals[0].Leverage)
	}
}

func TestWebhookHandler_ConfiguredDefaultLeverage(t *testing.T) {
	sub := &MockSubmitter{}
	h := NewWebhookHandler(sub)
	h.SetDefaultLeverage(3)

	postWebhook(h, `{"action":"buy","symbol":"BTCUSDT","price":1,"size":1}`)
	postWebhook(h, `{"action":"buy","symbol":"BTCUSDT","price":1,"size":1,"leverage":8}`)

	if sub.Count() != 2 {
		t.Fatalf("expected 2 signals, got %d", sub.Count())
	}
	if sub.signals[0].Leverage != 3 || sub.signals[1].Leverage != 8 {
		t.Errorf("expected leverage 3 and 8, got %d and %d", sub.signals[0].Leverage, sub.signals[1].Leverage)
	}
}

func TestWebhookHandler_LeverageBounds(t *testing.T) {
	sub := &MockSubmitter{}
	h := NewWebhookHandler(sub)

	for _, body := range []string{
		`{"action":"buy","symbol":"BTCUSDT","price":1,"size":1,"leverage":1}`,
		`{"action":"buy","symbol":"BTCUSDT","price":1,"size":1,"leverage":2147483647}`,
		`{"action":"buy","symbol":"BTCUSDT","price":1,"size":1,"leverage":"7.0"}`,
	} {
		if w := postWebhook(h, body); w.Code != http.StatusOK {
			t.Fatalf("expected 200 for %s, got %d: %s", body, w.Code, w.Body.String())
		}
	}

	got := []int{sub.signals[0].Leverage, sub.signals[1].Leverage, sub.signals[2].Leverage}
	want := []int{1, 2147483647, 7}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("signal %d: expected leverage %d, got %d", i, want[i], got[i])
		}
	}
}

func TestWebhookHandler_Rejects(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantCode  int
		wantError string
	}{
		{"malformed json", `{"action":`, http.StatusBadRequest, "invalid JSON payload"},
		{"missing size", `{"action":"buy","symbol":"BTCUSDT","price":50000}`, http.StatusBadRequest, "size"},
		{"missing several", `{"action":"buy"}`, http.StatusBadRequest, "symbol, price, size"},
		{"empty symbol", `{"action":"buy","symbol":" ","price":1,"size":1}`, http.StatusBadRequest, "symbol"},
		{"null price", `{"action":"buy","symbol":"BTCUSDT","price":null,"size":1}`, http.StatusBadRequest, "price"},
		{"invalid action", `{"action":"hold","symbol":"BTCUSDT","price":1,"size":1}`, http.StatusBadRequest, "invalid action"},
		{"fractional leverage", `{"action":"buy","symbol":"BTCUSDT","price":1,"size":1,"leverage":2.5}`, http.StatusBadRequest, "leverage"},
		{"zero leverage", `{"action":"buy","symbol":"BTCUSDT","price":1,"size":1,"leverage":0}`, http.StatusBadRequest, "leverage"},
		{"negative leverage", `{"action":"buy","symbol":"BTCUSDT","price":1,"size":1,"leverage":-3}`, http.StatusBadRequest, "leverage"},
		{"leverage above uint64", `{"action":"buy","symbol":"BTCUSDT","price":1,"size":1,"leverage":18446744073709551621}`, http.StatusBadRequest, "leverage"},
		{"leverage below -uint64", `{"action":"buy","symbol":"BTCUSDT","price":1,"size":1,"leverage":-18446744073709551611}`, http.StatusBadRequest, "leverage"},
		{"leverage exponent", `{"action":"buy","symbol":"BTCUSDT","price":1,"size":1,"leverage":1e30}`, http.StatusBadRequest, "leverage"},
		{"leverage above int32", `{"action":"buy","symbol":"BTCUSDT","price":1,"size":1,"leverage":2147483648}`, http.StatusBadRequest, "leverage"},
		{"bad number", `{"action":"buy","symbol":"BTCUSDT","price":"abc","size":1}`, http.StatusBadRequest, "invalid JSON payload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &MockSubmitter{}
			w := postWebhook(NewWebhookHandler(sub), tt.body)

			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, w.Code)
			}
			if resp := decodeError(t, w); !strings.Contains(resp.Error, tt.wantError) {
				t.Errorf("expected error containing %q, got %q", tt.wantError, resp.Error)
			}
			if sub.Count() != 0 {
				t.Error("rejected payload must not be dispatched")
			}
		})
	}
}

func TestWebhookHandler_BodyTooLarge(t *testing.T) {
	sub := &MockSubmitter{}
	body := `{"action":"buy","symbol":"` + strings.Repeat("A", MaxWebhookBody) + `"}`

	w := postWebhook(NewWebhookHandler(sub), body)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", w.Code)
	}
	if sub.Count() != 0 {
		t.Error("oversized payload must not be dispatched")
	}
}

func TestWebhookHandler_SubmitErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"queue full", bot.ErrQueueFull, http.StatusServiceUnavailable},
		{"stopped", bot.ErrDispatcherStopped, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &MockSubmitter{err: tt.err}
			w := postWebhook(NewWebhookHandler(sub), `{"action":"buy","symbol":"BTCUSDT","price":1,"size":0.01}`)
			if w.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, w.Code)
			}
			if decodeError(t, w).Error == "" {
				t.Error("expected error message")
			}
		})
	}
}
