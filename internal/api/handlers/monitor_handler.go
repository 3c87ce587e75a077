package handlers

import (
	"net/http"

	"orchestrator/internal/monitor"
	"orchestrator/pkg/utils"
)

// MonitorHandler обслуживает запросы о состоянии контура управления
type MonitorHandler struct {
	monitor *monitor.Monitor
	logger  *utils.Logger
}

// NewMonitorHandler создает handler контура
func NewMonitorHandler(m *monitor.Monitor, logger *utils.Logger) *MonitorHandler {
	return &MonitorHandler{
		monitor: m,
		logger:  logger.WithComponent("api"),
	}
}

// GetStatus возвращает снимок состояния контура
// GET /api/v1/monitor/status
func (h *MonitorHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.Status())
}

// RunCycle запускает внеплановый цикл мониторинга
// POST /api/v1/monitor/cycle
//
// Цикл выполняется синхронно: оператор получает ответ после разбора
// очереди действий.
func (h *MonitorHandler) RunCycle(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("manual cycle requested")
	h.monitor.RunCycle(r.Context())
	writeJSON(w, http.StatusOK, h.monitor.Status())
}
