package relay

import (
	"testing"

	"github.com/davemo88/ggez-multiplayer/pkg/clients"
	"github.com/davemo88/ggez-multiplayer/pkg/messages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClient struct {
	name     string
	gameID   string
	outbound chan []byte
}

func setupClients(t *testing.T, cm *clients.ClientManager, testClients []testClient) map[string]chan []byte {
	t.Helper()
	channels := map[string]chan []byte{}
	for _, tc := range testClients {
		token, err := cm.Register(tc.name)
		require.NoError(t, err)
		if tc.gameID != "" {
			require.NoError(t, cm.Match(tc.gameID, token))
		}
		if tc.outbound != nil {
			require.NoError(t, cm.AttachOutbound(token, tc.outbound))
		}
		channels[tc.name] = tc.outbound
	}
	return channels
}

func received(ch chan []byte) int {
	if ch == nil {
		return 0
	}
	return len(ch)
}

func TestRelay_Publish(t *testing.T) {
	tests := []struct {
		name          string
		filter        Filter
		wantDelivered int
		wantReceivers []string
	}{
		{
			name:          "no filter reaches every connected client",
			filter:        Filter{},
			wantDelivered: 3,
			wantReceivers: []string{"alice", "bob", "carol"},
		},
		{
			name:          "player filter reaches only that player",
			filter:        Filter{PlayerName: "alice"},
			wantDelivered: 1,
			wantReceivers: []string{"alice"},
		},
		{
			name:          "player filter ignores game dimension when empty",
			filter:        Filter{PlayerName: "carol"},
			wantDelivered: 1,
			wantReceivers: []string{"carol"},
		},
		{
			name:          "game filter",
			filter:        Filter{GameID: "g1"},
			wantDelivered: 2,
			wantReceivers: []string{"alice", "bob"},
		},
		{
			name:          "both filters are combined",
			filter:        Filter{PlayerName: "alice", GameID: "g2"},
			wantDelivered: 0,
		},
		{
			name:          "unknown player",
			filter:        Filter{PlayerName: "mallory"},
			wantDelivered: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cm := clients.NewClientManager()
			channels := setupClients(t, cm, []testClient{
				{name: "alice", gameID: "g1", outbound: make(chan []byte, 4)},
				{name: "bob", gameID: "g1", outbound: make(chan []byte, 4)},
				{name: "carol", gameID: "g2", outbound: make(chan []byte, 4)},
				{name: "dave", gameID: "g1"},
			})
			r := New(cm)

			msg, err := messages.NewMessage(messages.MessageTypeServerStateUpdate, &messages.ServerStateUpdate{GameID: "g1"})
			require.NoError(t, err)

			delivered, err := r.Publish(msg, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDelivered, delivered)

			for name, ch := range channels {
				want := 0
				for _, receiver := range tt.wantReceivers {
					if receiver == name {
						want = 1
					}
				}
				assert.Equal(t, want, received(ch), "messages received by %s", name)
			}
		})
	}
}

func TestRelay_PublishSerializedFrame(t *testing.T) {
	cm := clients.NewClientManager()
	ch := make(chan []byte, 1)
	setupClients(t, cm, []testClient{{name: "alice", outbound: ch}})

	_, err := New(cm).PublishPayload(messages.MessageTypeServerMatchFound, &messages.ServerMatchFound{GameID: "g1", Opponent: "bob"}, Filter{PlayerName: "alice"})
	require.NoError(t, err)

	assert.JSONEq(t, `{"type":"match_found","payload":{"game_id":"g1","opponent":"bob"}}`, string(<-ch))
}

func TestRelay_PublishFullChannel(t *testing.T) {
	cm := clients.NewClientManager()
	full := make(chan []byte, 1)
	full <- []byte("pending")
	ok := make(chan []byte, 1)
	setupClients(t, cm, []testClient{
		{name: "alice", outbound: full},
		{name: "bob", outbound: ok},
	})

	delivered, err := New(cm).PublishPayload(messages.MessageTypeServerGameOver, &messages.ServerGameOver{GameID: "g1"}, Filter{})
	assert.True(t, IsDeliveryFailed(err))
	assert.Equal(t, 1, delivered)
	assert.Len(t, ok, 1)

	var deliveryErr *ErrDeliveryFailed
	require.ErrorAs(t, err, &deliveryErr)
	assert.Equal(t, []string{"alice"}, deliveryErr.Recipients)
}

func TestRelay_PublishInvalidMessage(t *testing.T) {
	cm := clients.NewClientManager()
	_, err := New(cm).Publish(&messages.Message{}, Filter{})
	assert.Error(t, err)
	assert.False(t, IsDeliveryFailed(err))
}
