package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"orchestrator/internal/models"
	"orchestrator/internal/placement"
	"orchestrator/internal/repository"
	"orchestrator/pkg/utils"
)

// BotHandler обслуживает запросы о ботах: реестр, размещение, журнал действий
type BotHandler struct {
	instances *repository.InstanceRepository
	actionLog *repository.ActionLogRepository
	manager   *placement.Manager
	logger    *utils.Logger
}

// NewBotHandler создает handler ботов
func NewBotHandler(instances *repository.InstanceRepository, actionLog *repository.ActionLogRepository, manager *placement.Manager, logger *utils.Logger) *BotHandler {
	return &BotHandler{
		instances: instances,
		actionLog: actionLog,
		manager:   manager,
		logger:    logger.WithComponent("api"),
	}
}

// botView - инстанс в ответах API; учётные данные не отдаются
type botView struct {
	InstanceID string `json:"instance_id"`
	UserID     string `json:"user_id"`
	Port       int    `json:"port"`
	PoolID     string `json:"pool_id,omitempty"`
}

func (h *BotHandler) toBotView(inst *models.BotInstance) botView {
	view := botView{
		InstanceID: inst.InstanceID,
		UserID:     inst.UserID,
		Port:       inst.Port,
	}
	if poolID, ok := h.manager.PoolFor(inst.InstanceID); ok {
		view.PoolID = poolID
	}
	return view
}

// ListBots возвращает зарегистрированные инстансы
// GET /api/v1/bots
func (h *BotHandler) ListBots(w http.ResponseWriter, r *http.Request) {
	instances, err := h.instances.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list instances")
		return
	}

	bots := make([]botView, 0, len(instances))
	for _, inst := range instances {
		bots = append(bots, h.toBotView(inst))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bots": bots})
}

// GetBot возвращает один инстанс
// GET /api/v1/bots/{instance_id}
func (h *BotHandler) GetBot(w http.ResponseWriter, r *http.Request) {
	instanceID := mux.Vars(r)["instance_id"]

	inst, err := h.instances.Get(instanceID)
	if err != nil {
		if errors.Is(err, repository.ErrInstanceNotFound) {
			writeError(w, http.StatusNotFound, "instance not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load instance")
		return
	}
	writeJSON(w, http.StatusOK, h.toBotView(inst))
}

// GetActionLog возвращает журнал действий инстанса, новые записи первыми
// GET /api/v1/bots/{instance_id}/actions?limit=50
func (h *BotHandler) GetActionLog(w http.ResponseWriter, r *http.Request) {
	instanceID := mux.Vars(r)["instance_id"]

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be in [1, 1000]")
			return
		}
		limit = parsed
	}

	entries, err := h.actionLog.ListByInstance(instanceID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load action log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"actions": entries})
}
