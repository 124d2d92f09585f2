package ws

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/proxyview/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/proxyview/internal/navigation"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 32
)

// Navigator is what the relay drives and observes. The Start methods return
// once the command's history move is committed.
type Navigator interface {
	StartNavigate(ctx context.Context, raw string) navigation.Pending
	StartBack(ctx context.Context) navigation.Pending
	StartForward(ctx context.Context) navigation.Pending
	StartReload(ctx context.Context) navigation.Pending
	OpenExternal(ctx context.Context) error
	Snapshot() navigation.Snapshot
	Subscribe(fn func(navigation.Snapshot)) func()
}

// Handler relays shell commands to the controller and pushes every state
// change to all connected shells
type Handler struct {
	nav      Navigator
	upgrader websocket.Upgrader
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	commands    sync.WaitGroup

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
}

// NewHandler creates a handler subscribed to nav
func NewHandler(nav Navigator, logger *zap.Logger, metrics *monitoring.Metrics) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handler{
		nav:     nav,
		logger:  logger,
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
		clients: make(map[string]*client),
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: sameHostOrLocal}
	h.unsubscribe = nav.Subscribe(h.broadcast)
	return h
}

// HandleConnection upgrades the request and serves the client until it
// disconnects
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	cl := newClient(uuid.NewString(), conn)
	if !h.add(cl) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	defer h.remove(cl)

	log := h.logger.With(zap.String("client_id", cl.id))
	log.Debug("WebSocket connected", zap.String("remote", c.ClientIP()))

	go h.writePump(cl, log)

	h.send(cl, Frame{Type: TypeHello, ClientID: cl.id, Timestamp: time.Now().Unix()})
	h.send(cl, stateFrame(h.nav.Snapshot()))

	h.readPump(cl, log)
	log.Debug("WebSocket disconnected")
}

// Clients returns the number of connected shells
func (h *Handler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client, stops observing the controller and
// waits for running commands
func (h *Handler) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, cl := range h.clients {
		clients = append(clients, cl)
	}
	h.mu.Unlock()

	h.unsubscribe()
	h.cancel()
	for _, cl := range clients {
		cl.close()
	}
	h.commands.Wait()
}

func (h *Handler) readPump(cl *client, log *zap.Logger) {
	cl.conn.SetReadLimit(maxMessageSize)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}

		cmd, err := decode(data)
		if err != nil {
			h.metrics.RecordWSMessage("in", "invalid")
			h.send(cl, errorFrame("invalid message"))
			continue
		}
		h.metrics.RecordWSMessage("in", inboundLabel(cmd.Type))
		h.dispatch(cl, cmd, log)
	}
}

// dispatch runs on the read loop. History moves happen here in arrival
// order; only the loads run in the background.
func (h *Handler) dispatch(cl *client, cmd Command, log *zap.Logger) {
	switch cmd.Type {
	case TypeNavigate:
		if strings.TrimSpace(cmd.URL) == "" {
			h.send(cl, errorFrame("url required"))
			return
		}
		h.run(cl, cmd.Type, log, h.nav.StartNavigate(h.ctx, cmd.URL))
	case TypeBack:
		h.run(cl, cmd.Type, log, h.nav.StartBack(h.ctx))
	case TypeForward:
		h.run(cl, cmd.Type, log, h.nav.StartForward(h.ctx))
	case TypeReload:
		h.run(cl, cmd.Type, log, h.nav.StartReload(h.ctx))
	case TypeOpenExternal:
		h.run(cl, cmd.Type, log, func() error { return h.nav.OpenExternal(h.ctx) })
	case TypePing:
		h.send(cl, Frame{Type: TypePong, Timestamp: time.Now().Unix()})
	default:
		h.send(cl, errorFrame("unknown message type"))
	}
}

// run waits for a command off the read loop, so a later navigate can
// supersede one still loading. Outcomes reach the shell as state pushes;
// only errors the state does not show are sent back.
func (h *Handler) run(cl *client, name string, log *zap.Logger, wait func() error) {
	h.commands.Add(1)
	go func() {
		defer h.commands.Done()

		err := wait()
		var loadErr *navigation.LoadError
		switch {
		case err == nil, errors.Is(err, navigation.ErrSuperseded), errors.As(err, &loadErr):
		case errors.Is(err, context.Canceled):
		default:
			log.Info("Command failed", zap.String("command", name), zap.Error(err))
			h.send(cl, errorFrame(err.Error()))
		}
	}()
}

func (h *Handler) writePump(cl *client, log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.close()
		cl.conn.Close()
	}()

	for {
		select {
		case data := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug("WebSocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-cl.done:
			_ = cl.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (h *Handler) broadcast(snap navigation.Snapshot) {
	data, err := encode(stateFrame(snap))
	if err != nil {
		h.logger.Error("Failed to encode state", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, cl := range h.clients {
		h.deliver(cl, TypeState, data)
	}
}

func (h *Handler) send(cl *client, f Frame) {
	data, err := encode(f)
	if err != nil {
		h.logger.Error("Failed to encode frame", zap.String("type", f.Type), zap.Error(err))
		return
	}
	h.deliver(cl, f.Type, data)
}

// deliver queues data without blocking. A client that cannot keep up is
// disconnected; it resyncs from the state sent on reconnect.
func (h *Handler) deliver(cl *client, msgType string, data []byte) {
	if cl.closed() {
		return
	}
	if !cl.enqueue(data) {
		h.logger.Warn("WebSocket client too slow, disconnecting", zap.String("client_id", cl.id))
		cl.close()
		return
	}
	h.metrics.RecordWSMessage("out", msgType)
}

func (h *Handler) add(cl *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[cl.id] = cl
	h.metrics.IncWSConnections()
	return true
}

func (h *Handler) remove(cl *client) {
	h.mu.Lock()
	if _, ok := h.clients[cl.id]; ok {
		delete(h.clients, cl.id)
		h.metrics.DecWSConnections()
	}
	h.mu.Unlock()
	cl.close()
}

// sameHostOrLocal accepts shells served by this process or by a local dev
// server. Pages on other sites must not drive the viewer.
func sameHostOrLocal(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
