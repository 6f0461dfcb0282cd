package network

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/davemo88/ggez-multiplayer/pkg/log"
	"github.com/davemo88/ggez-multiplayer/pkg/messages"
	"nhooyr.io/websocket"
)

// WSClient is a player's websocket connection to the broker.
type WSClient struct {
	conn *websocket.Conn
}

// DialWS connects to a websocket url handed out on registration.
func DialWS(ctx context.Context, url string) (*WSClient, error) {
	log.Info("Connecting to WebSocket server at %s", url)
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %v", err)
	}
	conn.SetReadLimit(messages.MessageBufferSize)
	return &WSClient{conn: conn}, nil
}

// SendAction sends a player action. payload may be nil.
func (c *WSClient) SendAction(ctx context.Context, actionType string, payload interface{}) error {
	msg, err := messages.NewMessage(actionType, payload)
	if err != nil {
		return err
	}
	return c.SendMessage(ctx, msg)
}

// SendMessage sends a message to the WebSocket server.
func (c *WSClient) SendMessage(ctx context.Context, msg *messages.Message) error {
	b, err := messages.SerializeMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %v", err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, b); err != nil {
		return fmt.Errorf("failed to write message to WebSocket connection: %v", err)
	}
	return nil
}

// SendKeepalive sends the application level ping the broker ignores.
func (c *WSClient) SendKeepalive(ctx context.Context) error {
	if err := c.conn.Write(ctx, websocket.MessageText, []byte(messages.MessageTypeClientPing)); err != nil {
		return fmt.Errorf("failed to write keepalive: %v", err)
	}
	return nil
}

// ReadMessage blocks until the next server message arrives.
func (c *WSClient) ReadMessage(ctx context.Context) (*messages.Message, error) {
	typ, b, err := c.conn.Read(ctx)
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return nil, &ErrConnectionClosedByServer{}
		}
		return nil, err
	}
	if typ != websocket.MessageText {
		return nil, &messages.ErrMalformedMessage{Reason: "non-text frame"}
	}
	return messages.DeserializeMessage(b)
}

// HandleMessages reads messages until ctx is done or the connection fails
// and passes each one to handler. Handler errors are logged.
func (c *WSClient) HandleMessages(ctx context.Context, handler func(msg *messages.Message) error) error {
	for {
		msg, err := c.ReadMessage(ctx)
		if err != nil {
			if messages.IsMalformedMessage(err) {
				log.Warn("Ignoring malformed message: %v", err)
				continue
			}
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		log.Trace("Received message from WebSocket server of type %s", msg.Type)
		if err := handler(msg); err != nil {
			log.Error("Failed to handle %s message: %v", msg.Type, err)
		}
	}
}

// Ping measures the round trip time of a websocket ping.
// A concurrent reader must be running for the pong to be received.
func (c *WSClient) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := c.conn.Ping(ctx); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// Close closes the WebSocket connection.
func (c *WSClient) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

// ParseServerError decodes the payload of an error message
func ParseServerError(msg *messages.Message) (*messages.ServerError, error) {
	serverError := &messages.ServerError{}
	if err := messages.DecodePayload(msg, serverError); err != nil {
		return nil, err
	}
	return serverError, nil
}
