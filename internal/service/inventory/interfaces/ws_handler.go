// internal/service/inventory/interfaces/ws_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"stockledger/internal/pkg/logger"
	"stockledger/internal/service/inventory/domain"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 审计流是内网消费，不做 Origin 校验
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeWait    = 10 * time.Second
	clientBuffer = 64
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
)

// EventStreamHub 把领域事件实时广播给 WebSocket 订阅者（审计面板、对账工具）。
// 它实现 port.EventPublisher，作为 CompositePublisher 的一个下游挂进引擎。
// 慢消费者直接断开，不允许拖慢业务路径。
type EventStreamHub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func NewEventStreamHub() *EventStreamHub {
	return &EventStreamHub{clients: make(map[*wsClient]struct{})}
}

// Publish 把事件序列化后投入每个订阅者的发送队列。
// 队列满视为慢消费者，丢弃该连接。广播失败不影响业务结果。
func (h *EventStreamHub) Publish(_ context.Context, event *domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	h.mu.RLock()
	var slow []*wsClient
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.drop(c)
	}
	return nil
}

// ServeWS 升级连接并把客户端纳入广播。
func (h *EventStreamHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	logger.Ctx(r.Context()).Info().
		Str("remote", conn.RemoteAddr().String()).
		Msg("event stream subscriber connected")

	go h.writeLoop(client)
	go h.readLoop(client)
}

// Close 断开所有订阅者，服务关停时调用。
func (h *EventStreamHub) Close() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.drop(c)
	}
}

func (h *EventStreamHub) drop(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	if ok {
		_ = c.conn.Close()
	}
}

func (h *EventStreamHub) writeLoop(c *wsClient) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.drop(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.drop(c)
				return
			}
		}
	}
}

// readLoop 只消费控制帧，订阅者不允许发业务消息。
func (h *EventStreamHub) readLoop(c *wsClient) {
	defer h.drop(c)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
