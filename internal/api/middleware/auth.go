package middleware

import (
	"crypto/subtle"
	"net/http"

	"signaltrader/pkg/crypto"
	"signaltrader/pkg/utils"
)

// DebugAuth - middleware для защиты debug endpoints
//
// Назначение:
// Закрывает /debug/* (конфигурация аккаунта, переключение торговли)
// через HTTP Basic Authentication.
//
// Конфигурация:
// - username: DEBUG_USERNAME
// - passwordHash: DEBUG_PASSWORD_HASH, bcrypt хэш пароля
// - allowUnconfigured: пропускать без проверки, если учетные данные
//   не заданы (режим SERVER_DEBUG). Иначе 403.
//
// Безопасность:
// - Имя пользователя сравнивается за константное время
// - Пароль проверяется bcrypt, открытый пароль нигде не хранится
//
// Использование:
//
//	debug := router.PathPrefix("/debug").Subrouter()
//	debug.Use(middleware.DebugAuth(user, hash, cfg.Server.Debug))
func DebugAuth(username, passwordHash string, allowUnconfigured bool) func(http.Handler) http.Handler {
	log := utils.L().WithComponent("debug_auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if username == "" || passwordHash == "" {
				if allowUnconfigured {
					next.ServeHTTP(w, r)
					return
				}
				writeError(w, http.StatusForbidden, "debug endpoints disabled: set DEBUG_USERNAME and DEBUG_PASSWORD_HASH")
				return
			}

			user, pass, ok := r.BasicAuth()
			if !ok {
				unauthorized(w)
				return
			}

			userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
			// bcrypt считаем всегда, чтобы время ответа не выдавало имя пользователя
			passMatch := crypto.CheckPasswordMatch(pass, passwordHash)

			if !userMatch || !passMatch {
				log.Warn("debug auth failed",
					utils.String("path", r.URL.Path),
					utils.String("remote_addr", r.RemoteAddr))
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="Debug endpoints"`)
	writeError(w, http.StatusUnauthorized, "unauthorized")
}
