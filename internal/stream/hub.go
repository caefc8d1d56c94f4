// Package stream empurra para clientes WebSocket as odds que este nó recebe
// de outros nós. Cada assinatura é um par (nó de origem, mercado).
package stream

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/prediction-market-node/internal/oddscache"
)

// ClientMsg representa uma mensagem recebida do cliente WebSocket
// Type: subscribe | unsubscribe | ping
// Node e MarketID são obrigatórios para subscribe/unsubscribe
type ClientMsg struct {
	Type     string `json:"type"`
	Node     string `json:"node"`
	MarketID uint64 `json:"marketId"`
}

// Update é o que o cliente recebe a cada odd aplicada no cache
type Update struct {
	Type string          `json:"type"` // sempre "odds"
	Key  string          `json:"key"`
	Data oddscache.Entry `json:"data"`
}

// client serializa as escritas numa conexão (gorilla não aceita escritores concorrentes)
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// Hub gerencia conexões WebSocket e assinaturas
// subs: mapeia a chave nó:mercado para o conjunto de clientes inscritos
type Hub struct {
	upgrader websocket.Upgrader
	log      *zap.Logger
	mu       sync.RWMutex
	subs     map[string]map[*client]struct{}
}

// NewHub cria uma instância de Hub com política customizada de origem (CORS)
func NewHub(allowOrigin func(r *http.Request) bool, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		log:      log.Named("hub"),
		subs:     make(map[string]map[*client]struct{}),
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão WebSocket
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	c := &client{conn: conn}

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		key := oddscache.Key(msg.Node, msg.MarketID)
		switch msg.Type {
		case "subscribe":
			h.mu.Lock()
			if _, ok := h.subs[key]; !ok {
				h.subs[key] = make(map[*client]struct{})
			}
			h.subs[key][c] = struct{}{}
			h.mu.Unlock()
		case "unsubscribe":
			h.mu.Lock()
			h.remove(key, c)
			h.mu.Unlock()
		case "ping":
			_ = c.write([]byte(`{"type":"pong"}`))
		}
	}

	// Remove a conexão de todas as assinaturas ao desconectar
	h.mu.Lock()
	for key := range h.subs {
		h.remove(key, c)
	}
	h.mu.Unlock()
}

// remove exige h.mu travado
func (h *Hub) remove(key string, c *client) {
	if set, ok := h.subs[key]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, key)
		}
	}
}

// Broadcast envia a entrada para todos os clientes inscritos na chave dela
func (h *Hub) Broadcast(e oddscache.Entry) {
	key := e.Key()
	h.mu.RLock()
	targets := make([]*client, 0, len(h.subs[key]))
	for c := range h.subs[key] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	b, err := json.Marshal(Update{Type: "odds", Key: key, Data: e})
	if err != nil {
		h.log.Warn("marshal update", zap.Error(err))
		return
	}
	for _, c := range targets {
		if err := c.write(b); err != nil {
			h.log.Debug("ws write failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// Subscriptions retorna quantos clientes estão inscritos na chave
func (h *Hub) Subscriptions(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[key])
}
