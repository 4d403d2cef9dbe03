package web

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"kanban-cli/internal/model"
	"kanban-cli/internal/optimistic"
)

const (
	writeWait  = 10 * time.Second
	clientSend = 16
)

// message is what websocket clients receive: the whole board after each change, or a
// rolled-back write.
type message struct {
	Type  string       `json:"type"`
	Board *model.Board `json:"board,omitempty"`
	Error *syncNotice  `json:"error,omitempty"`
}

type syncNotice struct {
	Op      string `json:"op"`
	Kind    string `json:"kind"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

func boardMessage(b model.Board) []byte {
	raw, _ := json.Marshal(message{Type: "board", Board: &b})
	return raw
}

func errorMessage(se *optimistic.SyncError) []byte {
	raw, _ := json.Marshal(message{Type: "error", Error: &syncNotice{
		Op:      se.Op,
		Kind:    se.Kind,
		ID:      se.ID,
		Message: se.Error(),
	}})
	return raw
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 32 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin == "" {
			return true
		}
		// Same-origin only.
		host := strings.TrimSpace(r.Host)
		return strings.Contains(origin, "://"+host)
	},
}

type client struct {
	send chan []byte
}

// hub fans messages out to connected clients. A client that falls behind is dropped.
type hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

func newHub() *hub { return &hub{clients: map[*client]struct{}{}} }

func (h *hub) add() *client {
	cl := &client{send: make(chan []byte, clientSend)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(cl.send)
		return cl
	}
	h.clients[cl] = struct{}{}
	return cl
}

func (h *hub) remove(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[cl]; ok {
		delete(h.clients, cl)
		close(cl.send)
	}
}

func (h *hub) broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		select {
		case cl.send <- msg:
		default:
			delete(h.clients, cl)
			close(cl.send)
		}
	}
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for cl := range h.clients {
		delete(h.clients, cl)
		close(cl.send)
	}
}

// handleWS sends the board on connect and after every change until the client goes away.
func (s *Server) handleWS(c echo.Context) error {
	conn, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		return nil
	}
	defer conn.Close()

	cl := s.hub.add()
	defer s.hub.remove(cl)

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, boardMessage(s.ctrl.State().Snapshot())); err != nil {
		return nil
	}

	// Clients only listen; reading detects the close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-cl.send:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return nil
			}
		case <-gone:
			return nil
		}
	}
}
