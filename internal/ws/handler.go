package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/GriffinCanCode/shmbridge/internal/channel"
	"github.com/GriffinCanCode/shmbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/shmbridge/internal/shared/id"
	"github.com/GriffinCanCode/shmbridge/internal/shared/types"
	"github.com/GriffinCanCode/shmbridge/internal/shm"
	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is enforced by the HTTP middleware
	},
}

// Handler streams mailbox changes to WebSocket clients
type Handler struct {
	channel  *channel.Channel
	interval time.Duration
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// NewHandler creates a watch handler polling ch every interval. metrics may be nil.
func NewHandler(ch *channel.Channel, interval time.Duration, metrics *monitoring.Metrics, logger *zap.Logger) *Handler {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		channel:  ch,
		interval: interval,
		metrics:  metrics,
		logger:   logger,
	}
}

// clientMessage is what clients may send: only "ping" is understood
type clientMessage struct {
	Type string `json:"type"`
}

// HandleConnection upgrades the request and streams until the client leaves
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	streamID := id.NewStreamID()
	logger := h.logger.With(zap.Stringer("stream_id", streamID))
	logger.Debug("Watch stream opened")

	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}

	h.watch(c.Request.Context(), conn, logger)
	logger.Debug("Watch stream closed")
}

func (h *Handler) watch(ctx context.Context, conn *websocket.Conn, logger *zap.Logger) {
	incoming := make(chan clientMessage)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg clientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			select {
			case incoming <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := h.send(conn, types.StreamInfo, h.channel.Info()); err != nil {
		return
	}

	w := &watcher{}
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		if msgType, data, changed := w.poll(h.channel); changed {
			if err := h.send(conn, msgType, data); err != nil {
				logger.Debug("Watch stream write failed", zap.Error(err))
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case msg := <-incoming:
			if msg.Type == "ping" {
				if err := h.send(conn, "pong", nil); err != nil {
					return
				}
			}
		case <-ticker.C:
		}
	}
}

func (h *Handler) send(conn *websocket.Conn, msgType string, data interface{}) error {
	if h.metrics != nil {
		h.metrics.RecordWSMessage(msgType)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(types.StreamMessage{Type: msgType, Data: data})
}

// watcher remembers the last observed state so only changes are pushed
type watcher struct {
	seen    bool
	empty   bool
	payload []byte
	errMsg  string
}

// poll reads the channel once and reports the message to send, if any.
func (w *watcher) poll(ch *channel.Channel) (string, interface{}, bool) {
	payload, err := ch.Peek()
	first := !w.seen
	w.seen = true

	switch {
	case err == nil:
		if !first && !w.empty && w.errMsg == "" && bytes.Equal(payload, w.payload) {
			return "", nil, false
		}
		w.empty, w.errMsg, w.payload = false, "", payload
		return types.StreamUpdate, payloadValue(payload), true

	case errors.Is(err, shm.ErrEmpty):
		if !first && w.empty {
			return "", nil, false
		}
		w.empty, w.errMsg, w.payload = true, "", nil
		return types.StreamCleared, nil, true

	default:
		if w.errMsg == err.Error() {
			return "", nil, false
		}
		w.empty, w.errMsg, w.payload = false, err.Error(), nil
		return types.StreamError, err.Error(), true
	}
}

// payloadValue returns JSON payloads as raw JSON and anything else as text
func payloadValue(payload []byte) interface{} {
	if sonic.ConfigStd.Valid(payload) {
		return json.RawMessage(payload)
	}
	return string(payload)
}
