package websocket

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"

	"signaltrader/internal/models"
	"signaltrader/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// sync.Pool для JSON буферов: Broadcast вызывается на каждый сигнал и уведомление
var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 1024))
	},
}

const broadcastBufferSize = 256

// Hub управляет всеми активными WebSocket соединениями
//
// Рассылает подписчикам итоги саг и уведомления. Медленные клиенты,
// не успевающие забирать сообщения, отключаются. Если переполнен
// общий канал рассылки, сообщение отбрасывается: торговое ядро
// никогда не ждет подписчиков.
//
// Использование:
// 1. hub := NewHub(allowedOrigins)
// 2. go hub.Run(ctx)
// 3. router.HandleFunc("/ws", hub.ServeWS)
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	origins *OriginChecker
	dropped atomic.Int64
	done    chan struct{} // закрывается при выходе из Run

	mu  sync.RWMutex
	log *utils.Logger
}

// NewHub создает новый Hub. Пустой allowedOrigins разрешает любые Origin.
func NewHub(allowedOrigins []string) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, broadcastBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		origins:    NewOriginChecker(allowedOrigins),
		done:       make(chan struct{}),
		log:        utils.L().WithComponent("ws_hub"),
	}
}

// Run запускает главный цикл Hub до отмены ctx
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client connected", utils.Int("clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client disconnected", utils.Int("clients", total))

		case message := <-h.broadcast:
			// копируем список клиентов под коротким RLock
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
				h.log.Warn("removed slow clients", utils.Int("removed", len(toRemove)), utils.Int("clients", total))
			}
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

// join и leave не блокируются после остановки Run
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast сериализует сообщение и ставит его в очередь рассылки без ожидания
func (h *Hub) Broadcast(message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		h.log.Error("failed to marshal broadcast message", utils.Err(err))
		jsonBufferPool.Put(buf)
		return
	}

	data := bytes.TrimRight(buf.Bytes(), "\n")
	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)
	jsonBufferPool.Put(buf)

	select {
	case h.broadcast <- msgCopy:
	default:
		h.dropped.Add(1)
	}
}

// BroadcastSagaResult рассылает итог саги
func (h *Hub) BroadcastSagaResult(result *models.SagaResult) {
	h.Broadcast(NewSagaResultMessage(result))
}

// BroadcastNotification рассылает уведомление
func (h *Hub) BroadcastNotification(n *models.Notification) {
	h.Broadcast(NewNotificationMessage(n))
}

// BroadcastTradingMode рассылает режим торговли
func (h *Hub) BroadcastTradingMode(enabled bool) {
	h.Broadcast(NewTradingModeMessage(enabled))
}

// PublishResult - реализация bot.ResultPublisher
func (h *Hub) PublishResult(result *models.SagaResult) {
	h.BroadcastSagaResult(result)
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DroppedMessages - сообщения, отброшенные из-за переполнения очереди рассылки
func (h *Hub) DroppedMessages() int64 {
	return h.dropped.Load()
}
