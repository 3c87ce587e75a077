// Package api собирает HTTP маршруты операторского API.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"orchestrator/internal/api/handlers"
	"orchestrator/internal/api/middleware"
	"orchestrator/internal/monitor"
	"orchestrator/internal/placement"
	"orchestrator/internal/repository"
	"orchestrator/internal/websocket"
	"orchestrator/pkg/utils"
)

// Deps - зависимости маршрутов
type Deps struct {
	Manager    *placement.Manager
	Controller placement.PoolController
	Reconciler handlers.Reconciler
	Monitor    *monitor.Monitor
	Instances  *repository.InstanceRepository
	ActionLog  *repository.ActionLogRepository
	Hub        *websocket.Hub
	Logger     *utils.Logger

	// bcrypt-хэш операторского ключа; пустой = auth отключен
	OperatorKeyHash string
}

// SetupRoutes строит роутер с middleware-цепочкой
//
// Порядок: recovery -> logging -> CORS -> API-key auth. Recovery
// внешним слоем, чтобы паника в любом из остальных тоже ловилась.
func SetupRoutes(deps Deps) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.Logging(deps.Logger))
	router.Use(middleware.CORS)

	// Метрики и health вне auth: их читают Prometheus и пробники
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	apiV1 := router.PathPrefix("/api/v1").Subrouter()
	apiV1.Use(middleware.APIKeyAuth(deps.OperatorKeyHash))

	poolHandler := handlers.NewPoolHandler(deps.Manager, deps.Controller, deps.Reconciler, deps.Logger)
	apiV1.HandleFunc("/pools", poolHandler.ListPools).Methods(http.MethodGet)
	apiV1.HandleFunc("/pools/{id}", poolHandler.GetPool).Methods(http.MethodGet)
	apiV1.HandleFunc("/pools/{id}/drain", poolHandler.DrainPool).Methods(http.MethodPost)
	apiV1.HandleFunc("/placements", poolHandler.PlaceBot).Methods(http.MethodPost)
	apiV1.HandleFunc("/placements/{instance_id}", poolHandler.RemoveBot).Methods(http.MethodDelete)
	apiV1.HandleFunc("/reconcile", poolHandler.Reconcile).Methods(http.MethodPost)

	botHandler := handlers.NewBotHandler(deps.Instances, deps.ActionLog, deps.Manager, deps.Logger)
	apiV1.HandleFunc("/bots", botHandler.ListBots).Methods(http.MethodGet)
	apiV1.HandleFunc("/bots/{instance_id}", botHandler.GetBot).Methods(http.MethodGet)
	apiV1.HandleFunc("/bots/{instance_id}/actions", botHandler.GetActionLog).Methods(http.MethodGet)

	monitorHandler := handlers.NewMonitorHandler(deps.Monitor, deps.Logger)
	apiV1.HandleFunc("/monitor/status", monitorHandler.GetStatus).Methods(http.MethodGet)
	apiV1.HandleFunc("/monitor/cycle", monitorHandler.RunCycle).Methods(http.MethodPost)

	// WebSocket поток событий контура
	router.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWS(deps.Hub, w, r)
	})

	return router
}
