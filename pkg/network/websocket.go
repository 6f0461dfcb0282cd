package network

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/davemo88/ggez-multiplayer/pkg/broker"
	"github.com/davemo88/ggez-multiplayer/pkg/game/constants"
	gametypes "github.com/davemo88/ggez-multiplayer/pkg/game/types"
	"github.com/davemo88/ggez-multiplayer/pkg/log"
	"github.com/davemo88/ggez-multiplayer/pkg/messages"
	"github.com/gorilla/mux"
	"nhooyr.io/websocket"
)

// ConnectionBroker is what a websocket connection needs from the broker
type ConnectionBroker interface {
	Exists(token string) bool
	Connect(token string, outbound chan<- []byte) error
	Disconnect(token string)
	HandleAction(ctx context.Context, token string, action gametypes.Action) error
}

// WSHandler upgrades /ws/{id} requests and serves one player per connection.
type WSHandler struct {
	broker         ConnectionBroker
	outboundBuffer int
	writeTimeout   time.Duration
	originPatterns []string
}

type NewWSHandlerOptions struct {
	Broker         ConnectionBroker
	OutboundBuffer int
	WriteTimeout   time.Duration
	// OriginPatterns restricts cross origin upgrades. Any origin is accepted when empty.
	OriginPatterns []string
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(opts NewWSHandlerOptions) *WSHandler {
	outboundBuffer := opts.OutboundBuffer
	if outboundBuffer <= 0 {
		outboundBuffer = constants.OutboundBufferSize
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = constants.WriteTimeout
	}
	return &WSHandler{
		broker:         opts.Broker,
		outboundBuffer: outboundBuffer,
		writeTimeout:   writeTimeout,
		originPatterns: opts.OriginPatterns,
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["id"]
	if !h.broker.Exists(token) {
		http.Error(w, "NoPlayer: unknown id", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: len(h.originPatterns) == 0,
		OriginPatterns:     h.originPatterns,
	})
	if err != nil {
		log.Error("Failed to upgrade to WebSocket: %v", err)
		return
	}
	conn.SetReadLimit(messages.MessageBufferSize)

	logger := log.With("token", token)
	logger.Debug("New WebSocket connection from %s", r.RemoteAddr)

	outbound := make(chan []byte, h.outboundBuffer)
	if err := h.broker.Connect(token, outbound); err != nil {
		logger.Warn("Failed to connect client: %v", err)
		conn.Close(websocket.StatusPolicyViolation, err.Error())
		return
	}

	h.handleWSConnection(r.Context(), conn, token, outbound, logger)
}

// handleWSConnection runs the read loop of an accepted connection and
// cleans up after it.
func (h *WSHandler) handleWSConnection(ctx context.Context, conn *websocket.Conn, token string, outbound chan []byte, logger *log.Logger) {
	ctx, cancel := context.WithCancel(ctx)
	forwarderDone := make(chan struct{})
	go func() {
		defer close(forwarderDone)
		h.forward(ctx, conn, outbound, logger)
	}()

	defer func() {
		// no publisher can reach outbound once the client is removed
		h.broker.Disconnect(token)
		close(outbound)
		<-forwarderDone
		cancel()
		conn.Close(websocket.StatusNormalClosure, "")
		logger.Debug("Connection closed")
	}()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				logger.Trace("Client closed the connection")
			default:
				if !errors.Is(err, context.Canceled) {
					logger.Debug("Error reading WebSocket message: %v", err)
				}
			}
			return
		}

		if typ != websocket.MessageText {
			logger.Warn("Ignoring non-text frame")
			continue
		}

		action, ping, err := messages.ParseClientMessage(data)
		if err != nil {
			logger.Warn("Ignoring malformed frame: %v", err)
			h.reply(outbound, err, logger)
			continue
		}
		if ping {
			continue
		}

		if err := h.broker.HandleAction(ctx, token, *action); err != nil {
			logger.Debug("Failed to handle %s action: %v", action.Type, err)
			h.reply(outbound, err, logger)
		}
	}
}

// forward writes queued frames until outbound is closed or a write fails.
// A failed write closes the connection, which ends the read loop.
func (h *WSHandler) forward(ctx context.Context, conn *websocket.Conn, outbound <-chan []byte, logger *log.Logger) {
	for frame := range outbound {
		writeCtx, cancel := context.WithTimeout(ctx, h.writeTimeout)
		err := conn.Write(writeCtx, websocket.MessageText, frame)
		cancel()
		if err != nil {
			logger.Debug("Failed to write message to WebSocket connection: %v", err)
			conn.Close(websocket.StatusInternalError, "write failed")
			return
		}
	}
}

// reply sends an error message to the connection that caused err.
// It never blocks; a full buffer drops the reply.
func (h *WSHandler) reply(outbound chan<- []byte, err error, logger *log.Logger) {
	msg, ok := broker.ErrorMessage(err)
	if !ok {
		return
	}
	b, sErr := messages.SerializeMessage(msg)
	if sErr != nil {
		logger.Error("Failed to serialize error message: %v", sErr)
		return
	}
	select {
	case outbound <- b:
	default:
		logger.Warn("Dropped error reply: outbound buffer is full")
	}
}
