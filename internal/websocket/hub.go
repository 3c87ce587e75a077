// Package websocket транслирует события контура управления операторам.
package websocket

import (
	"bytes"
	"encoding/json"
	"sync"

	"orchestrator/pkg/utils"
)

// sync.Pool для JSON буферов: Broadcast вызывается на каждое действие
// контура, аллокации на каждый вызов не нужны
var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// Hub управляет всеми активными WebSocket соединениями операторов
//
// Регистрирует и снимает клиентов, рассылает события контура всем
// подключённым. Медленный клиент (переполненный send-буфер) отключается,
// чтобы не тормозить рассылку остальным.
//
// Использование:
//  1. hub := NewHub(logger)
//  2. go hub.Run()
//  3. hub.BroadcastActionExecuted(...)
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	logger *utils.Logger
	mu     sync.RWMutex
}

// NewHub создает новый Hub
func NewHub(logger *utils.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.WithComponent("websocket"),
	}
}

// Run запускает главный цикл Hub
// Должен запускаться в отдельной горутине: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("operator connected", utils.Int("clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("operator disconnected", utils.Int("clients", total))

		case message := <-h.broadcast:
			// Копируем список клиентов под коротким RLock и отправляем
			// без блокировки, чтобы не задерживать register/unregister
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var toRemove []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					toRemove = append(toRemove, client)
				}
			}

			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				total := len(h.clients)
				h.mu.Unlock()
				h.logger.Warn("slow operator clients dropped",
					utils.Int("removed", len(toRemove)), utils.Int("clients", total))
			}
		}
	}
}

// Broadcast сериализует сообщение и рассылает его всем клиентам
func (h *Hub) Broadcast(message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		h.logger.Error("marshal broadcast message", utils.Err(err))
		jsonBufferPool.Put(buf)
		return
	}

	// Encode добавляет завершающий перевод строки
	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)
	jsonBufferPool.Put(buf)

	h.broadcast <- msgCopy
}

// BroadcastActionExecuted отправляет событие исполненного действия
func (h *Hub) BroadcastActionExecuted(msg *ActionExecutedMessage) {
	h.Broadcast(msg)
}

// BroadcastTradingPaused отправляет событие запрета торговли
func (h *Hub) BroadcastTradingPaused(instanceID, reason string) {
	h.Broadcast(NewTradingPausedMessage(instanceID, reason))
}

// BroadcastCycleSummary отправляет итог цикла мониторинга
func (h *Hub) BroadcastCycleSummary(data *CycleSummaryData) {
	h.Broadcast(NewCycleSummaryMessage(data))
}

// BroadcastReconcileReport отправляет отчёт сверки размещения
func (h *Hub) BroadcastReconcileReport(report interface{}) {
	h.Broadcast(NewReconcileReportMessage(report))
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
