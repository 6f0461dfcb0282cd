package network

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/davemo88/ggez-multiplayer/pkg/log"
	"github.com/davemo88/ggez-multiplayer/pkg/messages"
)

const (
	DefaultServerURL = "http://127.0.0.1:8191"
)

// NetworkManager registers a player with the broker and opens its websocket.
type NetworkManager struct {
	serverURL  string
	httpClient *http.Client
	token      string
	wsURL      string
}

// NewNetworkManager creates a new network manager for the broker at serverURL.
func NewNetworkManager(serverURL string) *NetworkManager {
	if serverURL == "" {
		serverURL = DefaultServerURL
	}
	return &NetworkManager{
		serverURL:  strings.TrimSuffix(serverURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Token returns the token of the registered player
func (m *NetworkManager) Token() string {
	return m.token
}

// Register registers a player name and returns the websocket url to dial.
func (m *NetworkManager) Register(ctx context.Context, playerName string) (string, error) {
	resp, err := m.post(ctx, "/register", &messages.RegisterRequest{PlayerName: playerName})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", newErrUnexpectedStatus(resp)
	}

	registerResponse := &messages.RegisterResponse{}
	if err := json.NewDecoder(resp.Body).Decode(registerResponse); err != nil {
		return "", fmt.Errorf("failed to decode register response: %v", err)
	}
	m.wsURL = registerResponse.URL
	m.token = registerResponse.URL[strings.LastIndex(registerResponse.URL, "/")+1:]
	log.Debug("Registered %s with token %s", playerName, m.token)
	return m.wsURL, nil
}

// Unregister forgets the registered player on the broker.
func (m *NetworkManager) Unregister(ctx context.Context) error {
	if m.token == "" {
		return fmt.Errorf("not registered")
	}
	resp, err := m.post(ctx, "/unregister", &messages.UnregisterRequest{ID: m.token})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return newErrUnexpectedStatus(resp)
	}
	m.token = ""
	m.wsURL = ""
	return nil
}

// Connect dials the websocket of the registered player.
// The broker queues the player for a match once connected.
func (m *NetworkManager) Connect(ctx context.Context) (*WSClient, error) {
	if m.wsURL == "" {
		return nil, fmt.Errorf("not registered")
	}
	return DialWS(ctx, m.wsURL)
}

func (m *NetworkManager) post(ctx context.Context, path string, body interface{}) (*http.Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.serverURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s: %v", path, err)
	}
	return resp, nil
}

// ErrUnexpectedStatus is returned when the broker rejects a request
type ErrUnexpectedStatus struct {
	StatusCode int
	Body       string
}

func newErrUnexpectedStatus(resp *http.Response) *ErrUnexpectedStatus {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &ErrUnexpectedStatus{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}

func (e *ErrUnexpectedStatus) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}
