package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"signaltrader/internal/bot"
	"signaltrader/pkg/crypto"
	"signaltrader/pkg/utils"
)

// maxSignedBody совпадает с пределом тела вебхука
const maxSignedBody = 1 << 20

// Заголовки с подписью тела. Первый непустой выигрывает.
var signatureHeaders = []string{"X-Signature", "X-TradingView-Signature"}

// WebhookSignature проверяет HMAC-SHA256 сырого тела запроса.
//
// Подпись - hex, допускается префикс "sha256=". С пустым секретом
// проверка выключена и запрос проходит как есть. Тело вычитывается
// целиком и подменяется копией, чтобы обработчик прочитал его снова.
//
// Использование:
//
//	router.Handle("/webhook", middleware.WebhookSignature(secret)(webhook))
func WebhookSignature(secret string) func(http.Handler) http.Handler {
	log := utils.L().WithComponent("signature")

	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSignedBody))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					bot.RecordSignalRejected("body_too_large")
					writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
					return
				}
				bot.RecordSignalRejected("read_error")
				writeError(w, http.StatusBadRequest, "failed to read request body")
				return
			}

			signature := ""
			for _, h := range signatureHeaders {
				if signature = r.Header.Get(h); signature != "" {
					break
				}
			}

			if signature == "" || !crypto.VerifyHMACSHA256Hex(secret, body, signature) {
				bot.RecordSignalRejected("bad_signature")
				log.Warn("webhook signature mismatch",
					utils.String("remote_addr", r.RemoteAddr),
					utils.Bool("signature_present", signature != ""))
				writeError(w, http.StatusUnauthorized, "invalid signature")
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}
