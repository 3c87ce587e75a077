package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"orchestrator/pkg/crypto"
)

func TestAPIKeyAuth(t *testing.T) {
	hash, err := crypto.HashPassword("operator-key")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name string
		hash string
		key  string
		want int
	}{
		{"valid key", hash, "operator-key", http.StatusOK},
		{"wrong key", hash, "not-the-key", http.StatusUnauthorized},
		{"missing key", hash, "", http.StatusUnauthorized},
		{"auth disabled", "", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := APIKeyAuth(tt.hash)(ok)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/pools", nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
