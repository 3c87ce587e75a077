package middleware

import (
	"net/http"

	"orchestrator/pkg/crypto"
)

// APIKeyAuth проверяет операторский ключ из заголовка X-API-Key
//
// Ключ сверяется с bcrypt-хэшем из конфигурации: сам ключ на сервере
// не хранится. Пустой хэш отключает аутентификацию - режим локального
// развертывания, когда API не выставлен наружу.
func APIKeyAuth(operatorKeyHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if operatorKeyHash == "" {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("X-API-Key")
			if key == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if !crypto.CheckPasswordMatch(key, operatorKeyHash) {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
