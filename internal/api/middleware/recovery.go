// Package middleware содержит HTTP middleware операторского API.
package middleware

import (
	"net/http"
	"runtime/debug"

	"orchestrator/pkg/utils"
)

// Recovery перехватывает панику в handler'ах
//
// Паника одного запроса не должна ронять весь оркестратор: логируем
// stack trace и отвечаем 500, сервер продолжает обслуживать остальных.
func Recovery(logger *utils.Logger) func(http.Handler) http.Handler {
	log := logger.WithComponent("api")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error("panic in handler",
						utils.Any("panic", err),
						utils.String("path", r.URL.Path),
						utils.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
