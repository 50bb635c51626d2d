package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"deltacar/server/internal/order"
	"deltacar/server/internal/token"

	"github.com/google/uuid"
	gw "github.com/gorilla/websocket"
)

type Conn = gw.Conn

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 512
)

var upgrader = gw.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type OrderLookup interface {
	Get(ctx context.Context, id string) (order.Order, error)
}

type Handler struct {
	hub    *Hub
	orders OrderLookup
	logger *slog.Logger
}

func NewHandler(hub *Hub, orders OrderLookup, logger *slog.Logger) *Handler {
	return &Handler{hub: hub, orders: orders, logger: logger}
}

// ServeWS streams status changes of one order to its owner. It expects the
// caller's identity in the request context.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")
	caller, ok := token.FromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized access", http.StatusUnauthorized)
		return
	}

	o, err := h.orders.Get(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			http.Error(w, "order not found", http.StatusNotFound)
			return
		}
		h.logger.Error("load order for status feed", "id", orderID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !caller.Owns(o["email"]) {
		http.Error(w, "Unauthorized access", http.StatusForbidden)
		return
	}

	// Updates are broadcast under the canonical UUID text, whatever spelling
	// the lookup accepted.
	feedID := orderID
	if id, err := uuid.Parse(orderID); err == nil {
		feedID = id.String()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("status feed upgrade failed", "id", orderID, "err", err)
		return
	}

	client := &Client{
		hub:     h.hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		orderID: feedID,
	}

	if !h.hub.Register(client) {
		_ = conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()

	upd := OrderUpdate{OrderID: feedID, Status: o["status"]}
	if b, err := json.Marshal(upd); err == nil {
		h.hub.sendInitial(client, b)
	}
}

// readPump discards client frames and keeps the connection alive through
// pongs. Its exit unregisters the client.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
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

// writePump is the only writer on the connection. A closed send channel
// means the hub dropped the client.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(gw.CloseMessage, gw.FormatCloseMessage(gw.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(gw.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(gw.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
