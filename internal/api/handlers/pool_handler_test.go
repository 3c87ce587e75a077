package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"orchestrator/internal/placement"
	"orchestrator/pkg/utils"
)

func testLogger() *utils.Logger {
	return utils.InitLogger(utils.LogConfig{Level: "error", Format: "console", Output: "stderr"})
}

func newPoolHandler(t *testing.T) (*PoolHandler, *placement.Manager) {
	t.Helper()

	store := placement.NewStore(filepath.Join(t.TempDir(), "placement.json"))
	manager, err := placement.NewManager(store, 3, nil, testLogger())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return NewPoolHandler(manager, nil, nil, testLogger()), manager
}

func TestPoolHandlerPlaceAndList(t *testing.T) {
	h, _ := newPoolHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/placements",
		strings.NewReader(`{"instance_id": "bot-1"}`))
	rec := httptest.NewRecorder()
	h.PlaceBot(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("PlaceBot status = %d, body %s", rec.Code, rec.Body.String())
	}

	var placed struct {
		PoolID string `json:"pool_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &placed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if placed.PoolID == "" {
		t.Fatal("empty pool_id in response")
	}

	rec = httptest.NewRecorder()
	h.ListPools(rec, httptest.NewRequest(http.MethodGet, "/api/v1/pools", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ListPools status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), placed.PoolID) {
		t.Errorf("ListPools body %s lacks pool %s", rec.Body.String(), placed.PoolID)
	}
}

func TestPoolHandlerPlaceValidation(t *testing.T) {
	h, _ := newPoolHandler(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty body", "", http.StatusBadRequest},
		{"missing instance_id", `{}`, http.StatusBadRequest},
		{"garbage", `{{{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/placements", strings.NewReader(tt.body))
			h.PlaceBot(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestPoolHandlerPlaceDuplicate(t *testing.T) {
	h, manager := newPoolHandler(t)
	if _, err := manager.Place("bot-1"); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/placements",
		strings.NewReader(`{"instance_id": "bot-1"}`))
	h.PlaceBot(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate place status = %d, want 409", rec.Code)
	}
}

func TestPoolHandlerDrain(t *testing.T) {
	h, manager := newPoolHandler(t)
	poolID, err := manager.Place("bot-1")
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/pools/"+poolID+"/drain", nil)
	req = mux.SetURLVars(req, map[string]string{"id": poolID})
	rec := httptest.NewRecorder()
	h.DrainPool(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("DrainPool status = %d, body %s", rec.Code, rec.Body.String())
	}

	// Повторный drain конфликтует
	rec = httptest.NewRecorder()
	h.DrainPool(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("second drain status = %d, want 409", rec.Code)
	}

	// Несуществующий пул
	req = mux.SetURLVars(httptest.NewRequest(http.MethodPost, "/api/v1/pools/nope/drain", nil),
		map[string]string{"id": "nope"})
	rec = httptest.NewRecorder()
	h.DrainPool(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("drain missing pool status = %d, want 404", rec.Code)
	}
}

func TestPoolHandlerRemove(t *testing.T) {
	h, manager := newPoolHandler(t)
	if _, err := manager.Place("bot-1"); err != nil {
		t.Fatal(err)
	}

	req := mux.SetURLVars(httptest.NewRequest(http.MethodDelete, "/api/v1/placements/bot-1", nil),
		map[string]string{"instance_id": "bot-1"})
	rec := httptest.NewRecorder()
	h.RemoveBot(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("RemoveBot status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.RemoveBot(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("remove unplaced status = %d, want 404", rec.Code)
	}
}

type fakePoolController struct {
	started []string
	stopped []string
}

func (f *fakePoolController) ListRunning(ctx context.Context, poolID string) ([]string, error) {
	return nil, nil
}

func (f *fakePoolController) StartBot(ctx context.Context, poolID, instanceID string) error {
	f.started = append(f.started, instanceID)
	return nil
}

func (f *fakePoolController) StopBot(ctx context.Context, poolID, instanceID string) error {
	f.stopped = append(f.stopped, instanceID)
	return nil
}

func TestPoolHandlerSupervisorLifecycle(t *testing.T) {
	store := placement.NewStore(filepath.Join(t.TempDir(), "placement.json"))
	manager, err := placement.NewManager(store, 3, nil, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	controller := &fakePoolController{}
	h := NewPoolHandler(manager, controller, nil, testLogger())

	rec := httptest.NewRecorder()
	h.PlaceBot(rec, httptest.NewRequest(http.MethodPost, "/api/v1/placements",
		strings.NewReader(`{"instance_id": "bot-1"}`)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("PlaceBot status = %d", rec.Code)
	}
	if len(controller.started) != 1 || controller.started[0] != "bot-1" {
		t.Errorf("started = %v, want [bot-1]", controller.started)
	}

	req := mux.SetURLVars(httptest.NewRequest(http.MethodDelete, "/api/v1/placements/bot-1", nil),
		map[string]string{"instance_id": "bot-1"})
	rec = httptest.NewRecorder()
	h.RemoveBot(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("RemoveBot status = %d", rec.Code)
	}
	if len(controller.stopped) != 1 || controller.stopped[0] != "bot-1" {
		t.Errorf("stopped = %v, want [bot-1]", controller.stopped)
	}
}

func TestPoolHandlerReconcileUnconfigured(t *testing.T) {
	h, _ := newPoolHandler(t)

	rec := httptest.NewRecorder()
	h.Reconcile(rec, httptest.NewRequest(http.MethodPost, "/api/v1/reconcile", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Reconcile without sweeper status = %d, want 503", rec.Code)
	}
}
