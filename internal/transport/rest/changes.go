package rest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kristinauko/BookStoreInventory/internal/notify"
	"github.com/kristinauko/BookStoreInventory/internal/resource"
	"github.com/kristinauko/BookStoreInventory/pkg/web"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// changeMessage is the frame sent for every change: re-read path.
type changeMessage struct {
	Op   string `json:"op"`
	Path string `json:"path"`
	ID   int64  `json:"id,omitempty"`
}

// CollectionChanges streams every change to the product collection over a websocket.
func (h *Handler) CollectionChanges(w http.ResponseWriter, r *http.Request) {
	h.streamChanges(w, r, resource.CollectionPath())
}

// ItemChanges streams the changes of one product over a websocket.
func (h *Handler) ItemChanges(w http.ResponseWriter, r *http.Request) {
	mLogger := h.logger
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	h.streamChanges(w, r, resource.ItemPath(id))
}

// streamChanges keeps the subscription alive for as long as the connection is open.
func (h *Handler) streamChanges(w http.ResponseWriter, r *http.Request, path string) {
	mLogger := h.logger
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		mLogger.WarnContext(r.Context(), "Websocket upgrade failed", "error", err)
		return
	}
	client := &wsClient{
		ctx:    r.Context(),
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: mLogger,
	}
	sub, err := h.changes.Subscribe(path, client)
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Failed to subscribe to changes", "path", path, "error", err)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, ""), time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	mLogger.InfoContext(r.Context(), "Change stream opened", "path", path)

	go client.writePump()
	client.readPump()

	sub.Unsubscribe()
	close(client.done)
	mLogger.InfoContext(r.Context(), "Change stream closed", "path", path)
}

// wsClient is the notify.Observer behind one websocket connection.
type wsClient struct {
	ctx    context.Context
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	logger *slog.Logger
}

// OnChange queues the change; a full buffer drops it.
func (c *wsClient) OnChange(ctx context.Context, change notify.Change) {
	msg, err := json.Marshal(changeMessage{Op: string(change.Op), Path: change.Path(), ID: change.ID})
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to encode change", "error", err)
		return
	}
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		c.logger.WarnContext(ctx, "Change stream buffer full, dropping change", "path", change.Path())
	}
}

// readPump discards inbound frames and returns when the peer goes away.
func (c *wsClient) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.WarnContext(c.ctx, "Unexpected websocket close", "error", err)
			}
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
