package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"signaltrader/pkg/utils"
)

// Recovery - middleware для восстановления после паники в handlers
//
// Перехватывает panic, пишет сообщение и stack trace в лог и отвечает
// 500. Текст паники клиенту не отдается.
func Recovery(next http.Handler) http.Handler {
	log := utils.L().WithComponent("recovery")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Error("panic in handler",
					utils.String("panic", fmt.Sprint(rec)),
					utils.String("method", r.Method),
					utils.String("path", r.URL.Path),
					utils.String("stack", string(debug.Stack())))

				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}
