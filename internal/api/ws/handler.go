package ws

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/TabSessions/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/TabSessions/backend/internal/kv"
	"github.com/GriffinCanCode/TabSessions/backend/internal/shared/id"
	"github.com/GriffinCanCode/TabSessions/backend/internal/shared/validate"
)

// Message types.
const (
	TypeSystem   = "system"
	TypeChange   = "change"
	TypeFilter   = "filter"
	TypeFiltered = "filtered"
	TypePing     = "ping"
	TypePong     = "pong"
	TypeError    = "error"
)

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // debug surface, any origin
	},
}

// Inbound is a message sent by a stream client.
type Inbound struct {
	Type   string `json:"type"`
	Prefix string `json:"prefix,omitempty"`
}

// Outbound is a message sent to a stream client.
type Outbound struct {
	Type      string     `json:"type"`
	ConnID    string     `json:"connId,omitempty"`
	TabID     string     `json:"tabId,omitempty"`
	Message   string     `json:"message,omitempty"`
	Prefix    string     `json:"prefix,omitempty"`
	Change    *kv.Change `json:"change,omitempty"`
	Timestamp int64      `json:"timestamp"`
}

// Handler streams persistent-store changes to WebSocket clients.
type Handler struct {
	feed    kv.Feed
	tabID   string
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// NewHandler creates a change-stream handler over feed.
func NewHandler(feed kv.Feed, tabID string, metrics *monitoring.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{feed: feed, tabID: tabID, metrics: metrics, logger: logger}
}

// conn is one client. Writes go through out so that only the writer goroutine
// touches the socket.
type conn struct {
	id     id.ConnID
	ws     *websocket.Conn
	out    chan Outbound
	done   chan struct{}
	logger *zap.Logger

	mu     sync.RWMutex
	prefix string
}

// HandleConnection upgrades the request and streams changes until the client leaves.
func (h *Handler) HandleConnection(c *gin.Context) {
	socket, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	cn := &conn{
		id:   id.NewConnID(),
		ws:   socket,
		out:  make(chan Outbound, sendBuffer),
		done: make(chan struct{}),
	}
	cn.logger = h.logger.With(zap.String("conn_id", cn.id.String()))

	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(cn)
	}()
	defer func() {
		close(cn.done)
		<-writerDone
		socket.Close()
	}()

	if h.feed == nil {
		cn.send(Outbound{Type: TypeError, Message: "change feed unavailable"})
		return
	}
	cancel, err := h.feed.Subscribe(func(change kv.Change) {
		if !cn.wants(change.Key) {
			return
		}
		ch := change
		cn.send(Outbound{Type: TypeChange, Change: &ch})
	})
	if err != nil {
		cn.logger.Error("Failed to subscribe to change feed", zap.Error(err))
		cn.send(Outbound{Type: TypeError, Message: "subscription failed"})
		return
	}
	defer cancel()

	cn.send(Outbound{
		Type:    TypeSystem,
		ConnID:  cn.id.String(),
		TabID:   h.tabID,
		Message: "Connected to session change stream",
	})
	cn.logger.Info("Change stream opened")

	h.readLoop(cn)
	cn.logger.Info("Change stream closed")
}

func (h *Handler) readLoop(cn *conn) {
	for {
		_, data, err := cn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				cn.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}

		if err := validate.Size(data, validate.MaxMessageSize); err != nil {
			cn.send(Outbound{Type: TypeError, Message: "message too large"})
			continue
		}

		var msg Inbound
		if err := sonic.Unmarshal(data, &msg); err != nil {
			cn.send(Outbound{Type: TypeError, Message: "invalid message"})
			continue
		}
		h.record("in", msg.Type)

		switch msg.Type {
		case TypePing:
			cn.send(Outbound{Type: TypePong})
		case TypeFilter:
			if err := validate.KeyPrefix(msg.Prefix); err != nil {
				cn.send(Outbound{Type: TypeError, Message: err.Error()})
				continue
			}
			cn.setPrefix(msg.Prefix)
			cn.send(Outbound{Type: TypeFiltered, Prefix: msg.Prefix})
		default:
			cn.send(Outbound{Type: TypeError, Message: "unknown message type"})
		}
	}
}

// writeLoop owns the socket's write side. Messages queued before done are
// flushed before it returns.
func (h *Handler) writeLoop(cn *conn) {
	for {
		select {
		case <-cn.done:
			for {
				select {
				case msg := <-cn.out:
					if !h.write(cn, msg) {
						return
					}
				default:
					return
				}
			}
		case msg := <-cn.out:
			if !h.write(cn, msg) {
				return
			}
		}
	}
}

func (h *Handler) write(cn *conn, msg Outbound) bool {
	data, err := sonic.Marshal(msg)
	if err != nil {
		cn.logger.Error("Failed to encode stream message", zap.Error(err))
		return true
	}
	_ = cn.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := cn.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		cn.logger.Debug("WebSocket write error", zap.Error(err))
		return false
	}
	h.record("out", msg.Type)
	return true
}

func (h *Handler) record(direction, msgType string) {
	if h.metrics != nil {
		h.metrics.RecordWSMessage(direction, msgType)
	}
}

// send queues msg, dropping it when the client cannot keep up.
func (cn *conn) send(msg Outbound) {
	msg.Timestamp = time.Now().UnixMilli()
	select {
	case <-cn.done:
	case cn.out <- msg:
	default:
		cn.logger.Warn("Dropping stream message for slow client", zap.String("type", msg.Type))
	}
}

func (cn *conn) setPrefix(prefix string) {
	cn.mu.Lock()
	cn.prefix = prefix
	cn.mu.Unlock()
}

func (cn *conn) wants(key string) bool {
	cn.mu.RLock()
	defer cn.mu.RUnlock()
	return strings.HasPrefix(key, cn.prefix)
}
