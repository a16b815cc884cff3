// Package wsbus is the one concrete bus.Bus backend: each websocket
// connection is a bus "sender". Inbound JSON frames decode into
// bus.Request; outbound frames are bus.Response or subscription payloads.
package wsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"settingsvc/internal/bus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wireRequest is a request frame as it appears on the wire.
type wireRequest struct {
	Method    string         `json:"method"`
	Params    map[string]any `json:"params"`
	Subscribe bool           `json:"subscribe"`
}

type conn struct {
	id string
	ws *websocket.Conn
	mu sync.Mutex // serializes writes; gorilla/websocket forbids concurrent writers
}

func (c *conn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

// Hub is a Bus implementation backed by a pool of live websocket
// connections, one per bus sender.
type Hub struct {
	log *slog.Logger

	mu    sync.RWMutex
	conns map[string]*conn

	requests chan bus.Request

	// OnDisconnect, if set, is called with a sender's id once its
	// connection closes, so the notification registry can purge its
	// subscriptions (spec §4.3.2 client-initiated cancellation).
	OnDisconnect func(sender string)
}

// New constructs an empty Hub. Call ServeHTTP from an http.Server handler
// to accept connections, and range over Requests() to dispatch them.
func New(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:      log,
		conns:    make(map[string]*conn),
		requests: make(chan bus.Request, 64),
	}
}

// ServeHTTP upgrades the connection and runs its read loop until the
// client disconnects, at which point the sender's entries are removed —
// any in-flight reply to that client then becomes a no-op on send
// failure (spec §4.3.2).
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("wsbus: upgrade failed", "error", err)
		return
	}

	c := &conn{id: uuid.NewString(), ws: ws}
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.conns, c.id)
		h.mu.Unlock()
		ws.Close()
		if h.OnDisconnect != nil {
			h.OnDisconnect(c.id)
		}
	}()

	for {
		var wr wireRequest
		if err := ws.ReadJSON(&wr); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("wsbus: read error", "sender", c.id, "error", err)
			}
			return
		}
		h.requests <- bus.Request{
			Sender:    c.id,
			Method:    wr.Method,
			Params:    wr.Params,
			Subscribe: wr.Subscribe,
		}
	}
}

// Requests implements bus.Bus.
func (h *Hub) Requests() <-chan bus.Request { return h.requests }

// Reply implements bus.Bus: sends resp back on req's originating
// connection. A disconnected sender makes this a harmless no-op.
func (h *Hub) Reply(req bus.Request, resp bus.Response) error {
	h.mu.RLock()
	c, ok := h.conns[req.Sender]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	return c.writeJSON(resp)
}

// Publish implements bus.Bus: pushes an unsolicited subscription payload
// to the connection identified by subscriberSender.
func (h *Hub) Publish(ctx context.Context, subscriberSender string, payload any) error {
	h.mu.RLock()
	c, ok := h.conns[subscriberSender]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("wsbus: sender %q is no longer connected", subscriberSender)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("wsbus: encode publish payload: %w", err)
	}
	var raw json.RawMessage = encoded
	return c.writeJSON(raw)
}
