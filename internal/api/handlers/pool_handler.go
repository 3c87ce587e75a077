package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"orchestrator/internal/models"
	"orchestrator/internal/placement"
	"orchestrator/pkg/utils"
)

// Reconciler запускает сверку размещения по запросу оператора
type Reconciler interface {
	Sweep(ctx context.Context) (*placement.ReconcileReport, error)
}

// PoolHandler обслуживает операции над пулами и размещением
type PoolHandler struct {
	manager    *placement.Manager
	controller placement.PoolController // nil = супервизор не подключен
	reconciler Reconciler
	logger     *utils.Logger
}

// NewPoolHandler создает handler пулов
func NewPoolHandler(manager *placement.Manager, controller placement.PoolController, reconciler Reconciler, logger *utils.Logger) *PoolHandler {
	return &PoolHandler{
		manager:    manager,
		controller: controller,
		reconciler: reconciler,
		logger:     logger.WithComponent("api"),
	}
}

// poolView - пул в ответах API
type poolView struct {
	ID        string   `json:"id"`
	Capacity  int      `json:"capacity"`
	Occupancy int      `json:"occupancy"`
	Status    string   `json:"status"`
	Instances []string `json:"instances"`
}

func toPoolView(p *models.Pool) poolView {
	return poolView{
		ID:        p.ID,
		Capacity:  p.Capacity,
		Occupancy: len(p.Instances),
		Status:    p.Status,
		Instances: p.Instances,
	}
}

// ListPools возвращает все пулы с размещениями
// GET /api/v1/pools
func (h *PoolHandler) ListPools(w http.ResponseWriter, r *http.Request) {
	state := h.manager.Snapshot()

	pools := make([]poolView, 0, len(state.Pools))
	for _, p := range state.Pools {
		pools = append(pools, toPoolView(p))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pools":        pools,
		"placed_total": len(state.BotMapping),
	})
}

// GetPool возвращает один пул
// GET /api/v1/pools/{id}
func (h *PoolHandler) GetPool(w http.ResponseWriter, r *http.Request) {
	poolID := mux.Vars(r)["id"]

	state := h.manager.Snapshot()
	pool, ok := state.Pools[poolID]
	if !ok {
		writeError(w, http.StatusNotFound, "pool not found")
		return
	}
	writeJSON(w, http.StatusOK, toPoolView(pool))
}

// DrainPool переводит пул в режим дренажа
// POST /api/v1/pools/{id}/drain
func (h *PoolHandler) DrainPool(w http.ResponseWriter, r *http.Request) {
	poolID := mux.Vars(r)["id"]

	if err := h.manager.Drain(poolID); err != nil {
		if errors.Is(err, placement.ErrPoolNotFound) {
			writeError(w, http.StatusNotFound, "pool not found")
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	h.logger.Info("pool drain requested", utils.Pool(poolID))
	writeJSON(w, http.StatusOK, SuccessResponse{Message: "pool draining"})
}

// PlaceBot размещает инстанс в пул
// POST /api/v1/placements  {"instance_id": "..."}
func (h *PoolHandler) PlaceBot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InstanceID string `json:"instance_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.InstanceID == "" {
		writeError(w, http.StatusBadRequest, "instance_id is required")
		return
	}

	poolID, err := h.manager.Place(req.InstanceID)
	switch {
	case errors.Is(err, placement.ErrAlreadyPlaced):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":   "instance already placed",
			"pool_id": poolID,
		})
		return
	case errors.Is(err, placement.ErrCapacityExhausted):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Запуск процесса best-effort: размещение уже записано, расхождение
	// с реальностью подберёт сверка
	if h.controller != nil {
		if err := h.controller.StartBot(r.Context(), poolID, req.InstanceID); err != nil {
			h.logger.Warn("start bot process", utils.Instance(req.InstanceID),
				utils.Pool(poolID), utils.Err(err))
		}
	}

	writeJSON(w, http.StatusCreated, map[string]string{"pool_id": poolID})
}

// RemoveBot удаляет размещение инстанса
// DELETE /api/v1/placements/{instance_id}
func (h *PoolHandler) RemoveBot(w http.ResponseWriter, r *http.Request) {
	instanceID := mux.Vars(r)["instance_id"]
	poolID, _ := h.manager.PoolFor(instanceID)

	if err := h.manager.Remove(instanceID); err != nil {
		if errors.Is(err, placement.ErrNotPlaced) {
			writeError(w, http.StatusNotFound, "instance is not placed")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if h.controller != nil && poolID != "" {
		if err := h.controller.StopBot(r.Context(), poolID, instanceID); err != nil {
			h.logger.Warn("stop bot process", utils.Instance(instanceID),
				utils.Pool(poolID), utils.Err(err))
		}
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Message: "placement removed"})
}

// Reconcile запускает внеплановую сверку
// POST /api/v1/reconcile
func (h *PoolHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if h.reconciler == nil {
		writeError(w, http.StatusServiceUnavailable, "reconciler is not configured")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	report, err := h.reconciler.Sweep(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}
