package network

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gametypes "github.com/davemo88/ggez-multiplayer/pkg/game/types"
	"github.com/davemo88/ggez-multiplayer/pkg/messages"
	"github.com/davemo88/ggez-multiplayer/pkg/state"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

type fakeBroker struct {
	lock         sync.Mutex
	outbound     chan<- []byte
	actions      []gametypes.Action
	disconnected bool
}

func (b *fakeBroker) Exists(token string) bool {
	return token == "alice"
}

func (b *fakeBroker) Connect(token string, outbound chan<- []byte) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.outbound = outbound
	return nil
}

func (b *fakeBroker) Disconnect(token string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.disconnected = true
}

func (b *fakeBroker) HandleAction(ctx context.Context, token string, action gametypes.Action) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.actions = append(b.actions, action)
	return &state.ErrNoGame{}
}

func (b *fakeBroker) snapshot() (chan<- []byte, []gametypes.Action, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.outbound, append([]gametypes.Action(nil), b.actions...), b.disconnected
}

func newTestServer(t *testing.T, b ConnectionBroker) *httptest.Server {
	router := mux.NewRouter()
	router.Handle("/ws/{id}", NewWSHandler(NewWSHandlerOptions{Broker: b}))
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server, token string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/" + token
}

func readServerError(t *testing.T, ctx context.Context, conn *websocket.Conn) *messages.ServerError {
	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)
	msg, err := messages.DeserializeMessage(data)
	require.NoError(t, err)
	require.Equal(t, messages.MessageTypeServerError, msg.Type)
	serverError := &messages.ServerError{}
	require.NoError(t, messages.DecodePayload(msg, serverError))
	return serverError
}

func TestWSHandler_unknownToken(t *testing.T) {
	server := newTestServer(t, &fakeBroker{})

	resp, err := http.Get(server.URL + "/ws/bob")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWSHandler_connection(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b := &fakeBroker{}
	server := newTestServer(t, b)

	conn, _, err := websocket.Dial(ctx, wsURL(server, "alice"), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	// malformed frames are answered and the connection stays open
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{not json")))
	assert.Equal(t, messages.ErrorKindMalformedMessage, readServerError(t, ctx, conn).Kind)

	// keepalives are swallowed
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("ping")))
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`"ping"`)))

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"type":"PressedA"}`)))
	assert.Equal(t, messages.ErrorKindNoGame, readServerError(t, ctx, conn).Kind)

	outbound, actions, _ := b.snapshot()
	require.NotNil(t, outbound)
	require.Len(t, actions, 1)
	assert.Equal(t, "PressedA", actions[0].Type)

	// frames published to the client's channel reach the socket
	outbound <- []byte(`{"type":"match_found","payload":{"game_id":"g1","opponent":"bob"}}`)
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"match_found","payload":{"game_id":"g1","opponent":"bob"}}`, string(data))

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
	assert.Eventually(t, func() bool {
		_, _, disconnected := b.snapshot()
		return disconnected
	}, time.Second, 5*time.Millisecond)
}
