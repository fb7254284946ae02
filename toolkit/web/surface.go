package web

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/aperturerobotics/go-jsdos/engine"
	"github.com/aperturerobotics/go-jsdos/session"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	sendQueue  = 64
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type outMessage struct {
	kind int
	data []byte
}

// Surface is a page region rendered by browser clients connected over a
// websocket. Every connected client mirrors the same surface.
type Surface struct {
	root   string
	logger *slog.Logger

	mu       sync.Mutex
	clients  map[*client]struct{}
	overlay  bool
	gestures any
	bindings map[string]int
	keys     engine.KeySink
	owner    session.Instance
}

func newSurface(root string, logger *slog.Logger) *Surface {
	return &Surface{
		root:    root,
		logger:  logger.With("root", root),
		clients: make(map[*client]struct{}),
	}
}

// Root returns the region name.
func (s *Surface) Root() string {
	return s.root
}

// ShowLoadingOverlay implements session.Surface.
func (s *Surface) ShowLoadingOverlay() {
	s.setOverlay(true)
}

// HideLoadingOverlay implements session.Surface.
func (s *Surface) HideLoadingOverlay() {
	s.setOverlay(false)
}

// OverlayVisible reports the overlay state.
func (s *Surface) OverlayVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlay
}

func (s *Surface) setOverlay(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overlay = visible
	s.broadcastLocked(websocket.TextMessage, overlayMessage(visible))
}

// NotifyError implements session.ErrorNotifier.
func (s *Surface) NotifyError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcastLocked(websocket.TextMessage, errorMessage(err))
}

// bind marks ci as the instance presented on the surface.
func (s *Surface) bind(ci session.Instance) {
	s.mu.Lock()
	s.owner = ci
	s.mu.Unlock()
}

// release drops the key sink and gestures of ci once its output ended,
// unless a newer instance has been bound since.
func (s *Surface) release(ci session.Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner != ci {
		return
	}
	s.owner = nil
	s.keys = nil
	s.bindings = nil
	if s.gestures != nil {
		s.gestures = nil
		s.broadcastLocked(websocket.TextMessage, gesturesMessage(nil))
	}
}

// setKeySink routes input to keys while ci owns the surface.
func (s *Surface) setKeySink(ci session.Instance, keys engine.KeySink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner != ci {
		return
	}
	s.keys = keys
}

func (s *Surface) setGestures(ci session.Instance, settings any, bindings map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner != ci {
		return
	}
	s.gestures = settings
	s.bindings = bindings
	s.broadcastLocked(websocket.TextMessage, gesturesMessage(settings))
}

func (s *Surface) broadcast(kind int, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcastLocked(kind, data)
}

// broadcastLocked queues data for every client, skipping clients whose
// queue is full.
func (s *Surface) broadcastLocked(kind int, data []byte) {
	for c := range s.clients {
		select {
		case c.send <- outMessage{kind: kind, data: data}:
		default:
			s.logger.Debug("client queue full", "client", c.id)
		}
	}
}

// ClientCount returns the number of connected clients.
func (s *Surface) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// serve attaches conn to the surface and blocks until it disconnects.
func (s *Surface) serve(conn *websocket.Conn) {
	c := &client{
		id:      uuid.NewString(),
		conn:    conn,
		send:    make(chan outMessage, sendQueue),
		surface: s,
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	c.send <- outMessage{kind: websocket.TextMessage, data: overlayMessage(s.overlay)}
	if s.gestures != nil {
		c.send <- outMessage{kind: websocket.TextMessage, data: gesturesMessage(s.gestures)}
	}
	s.mu.Unlock()
	s.logger.Debug("client connected", "client", c.id, "remote", conn.RemoteAddr().String())

	go c.writePump()
	c.readPump()

	s.mu.Lock()
	delete(s.clients, c)
	close(c.send)
	s.mu.Unlock()
	s.logger.Debug("client disconnected", "client", c.id)
}

// handleInput routes a page input message to the attached instance.
func (s *Surface) handleInput(msg inputMessage) {
	s.mu.Lock()
	keys := s.keys
	bindings := s.bindings
	s.mu.Unlock()

	if keys == nil {
		return
	}

	switch msg.Type {
	case TypeKey:
		if code := engine.DOMToKeyCode(msg.Code); code != engine.KeyNone {
			keys.SendKey(code, msg.Pressed)
		}
	case TypeGesture:
		if code, ok := bindings[msg.Event]; ok {
			keys.SendKey(code, msg.Pressed)
		}
	default:
		s.logger.Debug("unknown input message", "type", msg.Type)
	}
}

type client struct {
	id      string
	conn    *websocket.Conn
	send    chan outMessage
	surface *Surface
}

func (c *client) readPump() {
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		var msg inputMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.surface.logger.Debug("bad input message", "client", c.id, "err", err)
			continue
		}
		c.surface.handleInput(msg)
	}
}

func (c *client) writePump() {
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
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(msg.kind, msg.data); err != nil {
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
