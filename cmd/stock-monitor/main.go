// cmd/stock-monitor/main.go
package main

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"oms/internal/pkg/config"
	"oms/internal/pkg/logger"
	"oms/internal/pkg/mq"
)

// stock-monitor 订阅库存事件流，把每一次预占/释放/扣减实时推送给
// 通过 WebSocket 连接的监控前端。它是纯粹的只读下游，不回写任何状态。

const (
	serviceName          = "stock-monitor"
	inventoryEventsTopic = "inventory-events"
	consumerGroupID      = "stock-monitor-consumer-group"
)

var (
	nodeID   = serviceName + "-" + uuid.New().String()[:8]
	upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool { // 简化处理，允许所有跨域
			return true
		},
	}
)

// Hub 维护所有活跃的连接，并负责消息广播
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	lock       sync.RWMutex
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
	}
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.lock.Lock()
			h.clients[client] = struct{}{}
			h.lock.Unlock()
			logger.Logger().Info().Str("node", nodeID).Msg("monitor client registered")
		case client := <-h.unregister:
			h.lock.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.lock.Unlock()
			logger.Logger().Info().Msg("monitor client unregistered")
		case message := <-h.broadcast:
			h.lock.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// 慢消费者直接丢消息，监控流允许有损
				}
			}
			h.lock.RUnlock()
		}
	}
}

// Client 是一个WebSocket连接的代表
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	for {
		// 只消化心跳和关闭帧，监控端不上行业务数据
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func serveWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Logger().Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{hub: hub, conn: conn, send: make(chan []byte, 256)}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// consumeInventoryEvents 把库存事件原样转发到 Hub 广播通道。
func consumeInventoryEvents(ctx context.Context, hub *Hub, brokers []string) {
	reader := mq.NewKafkaReader(brokers, inventoryEventsTopic, consumerGroupID)
	defer reader.Close()

	logger.Logger().Info().Str("topic", inventoryEventsTopic).Msg("✅ Stock monitor consuming inventory events")
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Logger().Error().Err(err).Msg("could not read inventory event, retrying")
			time.Sleep(1 * time.Second)
			continue
		}
		hub.broadcast <- msg.Value
	}
}

func main() {
	logger.Init(serviceName)
	cfg := config.Load()

	hub := newHub()
	go hub.run()
	go consumeInventoryEvents(context.Background(), hub, strings.Split(cfg.Infra.KafkaBrokers, ","))

	http.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, w, r)
	})

	logger.Logger().Info().Str("node", nodeID).Msg("Stock monitor started on :8088")
	if err := http.ListenAndServe(":8088", nil); err != nil {
		logger.Logger().Fatal().Err(err).Msg("ListenAndServe failed")
	}
}
