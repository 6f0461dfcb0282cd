package clients

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestClientManager_Register(t *testing.T) {
	cm := NewClientManager()

	token, err := cm.Register("alice")
	require.NoError(t, err)
	assert.Len(t, token, 32)

	client, err := cm.GetClient(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", client.Name)
	assert.Empty(t, client.GameID)
	assert.Nil(t, client.Outbound)

	_, err = cm.Register("alice")
	assert.True(t, IsNameTaken(err))

	_, err = cm.Register("")
	assert.Error(t, err)
}

func TestClientManager_RegisterUniqueTokens(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cm := NewClientManager()
		live := map[string]bool{}
		n := rapid.IntRange(1, 50).Draw(t, "registrations")
		for i := 0; i < n; i++ {
			token, err := cm.Register(fmt.Sprintf("player-%d", i))
			if err != nil {
				t.Fatalf("register: %v", err)
			}
			if live[token] {
				t.Fatalf("token %s issued twice", token)
			}
			live[token] = true
			if rapid.Bool().Draw(t, "remove") {
				cm.Remove(token)
				delete(live, token)
			}
		}
		if cm.Count() != len(live) {
			t.Fatalf("manager has %d clients, want %d", cm.Count(), len(live))
		}
	})
}

func TestClientManager_generateUniqueToken(t *testing.T) {
	cm := NewClientManager()
	cm.newToken = func() string { return "fixed" }

	token, err := cm.Register("alice")
	require.NoError(t, err)
	assert.Equal(t, "fixed", token)

	_, err = cm.Register("bob")
	assert.Error(t, err)
}

func TestClientManager_AttachOutbound(t *testing.T) {
	cm := NewClientManager()
	token, err := cm.Register("alice")
	require.NoError(t, err)

	ch := make(chan []byte, 1)
	other := make(chan []byte, 1)

	tests := []struct {
		name     string
		token    string
		outbound chan []byte
		check    func(t *testing.T, err error)
	}{
		{
			name:     "attach",
			token:    token,
			outbound: ch,
			check:    func(t *testing.T, err error) { assert.NoError(t, err) },
		},
		{
			name:     "same channel is idempotent",
			token:    token,
			outbound: ch,
			check:    func(t *testing.T, err error) { assert.NoError(t, err) },
		},
		{
			name:     "second connection",
			token:    token,
			outbound: other,
			check:    func(t *testing.T, err error) { assert.True(t, IsAlreadyConnected(err)) },
		},
		{
			name:     "unknown token",
			token:    "nope",
			outbound: ch,
			check:    func(t *testing.T, err error) { assert.True(t, IsNoPlayer(err)) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cm.AttachOutbound(tt.token, tt.outbound))
		})
	}

	client, err := cm.GetClient(token)
	require.NoError(t, err)
	assert.Equal(t, chan<- []byte(ch), client.Outbound)
}

func TestClientManager_Unmatch(t *testing.T) {
	cm := NewClientManager()
	alice, err := cm.Register("alice")
	require.NoError(t, err)
	bob, err := cm.Register("bob")
	require.NoError(t, err)
	carol, err := cm.Register("carol")
	require.NoError(t, err)

	require.NoError(t, cm.Match("g1", alice, bob))
	require.NoError(t, cm.Match("g2", carol))
	assert.Equal(t, 2, cm.CountInGame("g1"))

	cm.Unmatch("g1", alice, carol, "nope")

	client, err := cm.GetClient(alice)
	require.NoError(t, err)
	assert.Empty(t, client.GameID)
	client, err = cm.GetClient(carol)
	require.NoError(t, err)
	assert.Equal(t, "g2", client.GameID)
	assert.Equal(t, 1, cm.CountInGame("g1"))

	// an unmatched client can be matched again
	require.NoError(t, cm.Match("g3", alice))
}

func TestClientManager_Match(t *testing.T) {
	cm := NewClientManager()
	alice, err := cm.Register("alice")
	require.NoError(t, err)
	bob, err := cm.Register("bob")
	require.NoError(t, err)

	// a missing client leaves the others untouched
	err = cm.Match("g0", alice, "gone")
	assert.True(t, IsNoPlayer(err))
	client, err := cm.GetClient(alice)
	require.NoError(t, err)
	assert.Empty(t, client.GameID)

	require.NoError(t, cm.Match("g1", alice, bob))
	assert.Equal(t, 2, cm.CountInGame("g1"))

	assert.Error(t, cm.Match("g2", alice, bob))
	assert.Equal(t, 0, cm.CountInGame("g2"))
}

func TestClientManager_Remove(t *testing.T) {
	cm := NewClientManager()
	var events []ClientEvent
	cm.Events().RegisterHandler(func(event ClientEvent) {
		events = append(events, event)
	})

	token, err := cm.Register("alice")
	require.NoError(t, err)

	assert.True(t, cm.Remove(token))
	assert.False(t, cm.Remove(token))
	assert.False(t, cm.Exists(token))

	_, err = cm.GetClient(token)
	assert.True(t, IsNoPlayer(err))

	require.Len(t, events, 1)
	assert.Equal(t, ClientEvent{Type: ClientEventTypeRemove, Token: token, Name: "alice"}, events[0])

	// the name is free again
	_, err = cm.Register("alice")
	assert.NoError(t, err)
}

func TestClientManager_Range(t *testing.T) {
	cm := NewClientManager()
	for _, name := range []string{"alice", "bob", "carol"} {
		_, err := cm.Register(name)
		require.NoError(t, err)
	}

	seen := map[string]bool{}
	cm.Range(func(client *Client) bool {
		seen[client.Name] = true
		return true
	})
	assert.Len(t, seen, 3)

	visited := 0
	cm.Range(func(client *Client) bool {
		visited++
		return false
	})
	assert.Equal(t, 1, visited)
}
