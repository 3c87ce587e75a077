// Package handlers содержит HTTP handlers операторского API.
package handlers

import (
	"net/http"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrorResponse - стандартный формат ошибки API
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse - стандартный формат подтверждения без данных
type SuccessResponse struct {
	Message string `json:"message"`
}

// writeJSON сериализует ответ с указанным статусом
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Заголовки уже ушли, остаётся только оборвать ответ
		http.Error(w, "encoding error", http.StatusInternalServerError)
	}
}

// writeError отвечает ошибкой в стандартном формате
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
