// Package events streams verification outcomes to websocket clients.
package events

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"memecoin-calls/internal/domain"
	"memecoin-calls/internal/observability"
)

// Message types.
const (
	TypeCallVerified = "call.verified"
	TypeCallError    = "call.error"
)

const (
	sendBuffer   = 64
	pingInterval = 30 * time.Second
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
)

// Message is the envelope written to clients.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Outcome is the payload of call.verified and call.error messages.
type Outcome struct {
	CallID                string     `json:"callId"`
	UserID                string     `json:"userId"`
	TokenID               string     `json:"tokenId"`
	Status                string     `json:"status"`
	VerificationTimestamp *time.Time `json:"verificationTimestamp"`
	PeakPrice             *float64   `json:"peakPrice"`
	FinalPrice            *float64   `json:"finalPrice"`
	TargetHitTimestamp    *time.Time `json:"targetHitTimestamp"`
	TimeToHitRatio        *float64   `json:"timeToHitRatio"`
	PriceHistoryURL       *string    `json:"priceHistoryUrl"`
}

type client struct {
	send chan Message
	// Closed by the hub when the client falls behind.
	evicted chan struct{}
	once    atomic.Bool
}

func (c *client) evict() {
	if c.once.CompareAndSwap(false, true) {
		close(c.evicted)
	}
}

// Hub fans verification outcomes out to connected clients.
// Slow clients are disconnected rather than blocking the publisher.
type Hub struct {
	clients  *xsync.Map[uint64, *client]
	nextID   atomic.Uint64
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: xsync.NewMap[uint64, *client](),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger.Named("events"),
	}
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	return h.clients.Size()
}

// PublishOutcome implements verification.OutcomePublisher.
func (h *Hub) PublishOutcome(call *domain.TokenCall) {
	msg := Message{Type: TypeCallVerified, Payload: outcomeOf(call)}
	if call.Status == domain.CallStatusError {
		msg.Type = TypeCallError
	}
	h.broadcast(msg)
}

func (h *Hub) broadcast(msg Message) {
	h.clients.Range(func(id uint64, c *client) bool {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("event client too slow, disconnecting", zap.Uint64("client_id", id))
			c.evict()
		}
		return true
	})
}

func outcomeOf(call *domain.TokenCall) Outcome {
	return Outcome{
		CallID:                call.ID,
		UserID:                call.UserID,
		TokenID:               call.TokenID,
		Status:                call.Status.String(),
		VerificationTimestamp: call.VerificationTimestamp,
		PeakPrice:             call.PeakPrice,
		FinalPrice:            call.FinalPrice,
		TargetHitTimestamp:    call.TargetHitTimestamp,
		TimeToHitRatio:        call.TimeToHitRatio,
		PriceHistoryURL:       call.PriceHistoryURL,
	}
}

// ServeHTTP upgrades the request and streams messages until the client
// disconnects or is evicted. Clients only receive; anything they send is discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	id := h.nextID.Add(1)
	c := &client{send: make(chan Message, sendBuffer), evicted: make(chan struct{})}
	h.clients.Store(id, c)
	observability.SetEventSubscribers(h.clients.Size())
	h.logger.Info("event client connected",
		zap.Uint64("client_id", id),
		zap.String("remote_addr", r.RemoteAddr))

	defer func() {
		h.clients.Delete(id)
		observability.SetEventSubscribers(h.clients.Size())
		if err := conn.Close(); err != nil {
			h.logger.Debug("close websocket", zap.Error(err))
		}
		h.logger.Info("event client disconnected", zap.Uint64("client_id", id))
	}()

	closed := make(chan struct{})
	go h.readLoop(conn, closed)
	h.writeLoop(conn, c, closed)
}

// readLoop consumes control frames and detects closure.
func (h *Hub) readLoop(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		if _, _, err := conn.NextReader(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writeLoop(conn *websocket.Conn, c *client, closed <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-c.evicted:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too slow"),
				time.Now().Add(writeTimeout))
			return
		case msg := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				h.logger.Debug("websocket ping failed", zap.Error(err))
				return
			}
		}
	}
}
