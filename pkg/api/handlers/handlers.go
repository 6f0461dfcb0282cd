package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/davemo88/ggez-multiplayer/pkg/broker"
	"github.com/davemo88/ggez-multiplayer/pkg/clients"
	"github.com/davemo88/ggez-multiplayer/pkg/log"
	"github.com/davemo88/ggez-multiplayer/pkg/messages"
	"github.com/davemo88/ggez-multiplayer/pkg/relay"
	"github.com/davemo88/ggez-multiplayer/pkg/state"
)

// maxBodySize bounds request bodies
const maxBodySize = messages.MessageBufferSize

// Broker is the part of the broker served over HTTP
type Broker interface {
	Register(name string) (string, error)
	Unregister(token string) error
	Publish(msg *messages.Message, filter relay.Filter) (int, error)
	Stats() broker.Stats
}

// WSBaseURL returns the base url, without trailing slash, clients dial for websockets
type WSBaseURL func(r *http.Request) string

// StaticWSBaseURL always hands out the configured public url
func StaticWSBaseURL(publicURL string) WSBaseURL {
	publicURL = strings.TrimSuffix(publicURL, "/")
	return func(r *http.Request) string {
		return publicURL
	}
}

// RequestWSBaseURL derives the websocket url from the host the request was sent to
func RequestWSBaseURL(r *http.Request) string {
	scheme := "ws"
	if r.TLS != nil {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s", scheme, r.Host)
}

func HandleRegister(b Broker, wsBaseURL WSBaseURL) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := &messages.RegisterRequest{}
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(req); err != nil {
			http.Error(w, "Failed to decode register request", http.StatusBadRequest)
			return
		}
		if req.PlayerName == "" {
			http.Error(w, "player_name must not be empty", http.StatusBadRequest)
			return
		}

		token, err := b.Register(req.PlayerName)
		if err != nil {
			writeError(w, fmt.Sprintf("failed to register %s", req.PlayerName), err)
			return
		}

		writeJSON(w, http.StatusOK, &messages.RegisterResponse{
			URL: fmt.Sprintf("%s/ws/%s", wsBaseURL(r), token),
		})
	}
}

// HandleUnregister accepts either {"id": "<token>"} or the bare JSON string "<token>".
func HandleUnregister(b Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
		if err != nil {
			http.Error(w, "Failed to read request body", http.StatusBadRequest)
			return
		}
		token, err := parseUnregisterRequest(body)
		if err != nil {
			http.Error(w, "Failed to decode unregister request", http.StatusBadRequest)
			return
		}

		if err := b.Unregister(token); err != nil {
			writeError(w, fmt.Sprintf("failed to unregister %s", token), err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func parseUnregisterRequest(body []byte) (string, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '"' {
		var token string
		if err := json.Unmarshal(body, &token); err != nil {
			return "", err
		}
		return token, nil
	}
	req := &messages.UnregisterRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		return "", err
	}
	if req.ID == "" {
		return "", fmt.Errorf("id is missing")
	}
	return req.ID, nil
}

// HandlePublish relays a server message to the clients selected by the
// player_name and game_id query parameters.
func HandlePublish(b Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
		if err != nil {
			http.Error(w, "Failed to read request body", http.StatusBadRequest)
			return
		}
		msg, err := messages.DeserializeMessage(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		filter := relay.Filter{
			PlayerName: r.URL.Query().Get("player_name"),
			GameID:     r.URL.Query().Get("game_id"),
		}
		delivered, err := b.Publish(msg, filter)
		if err != nil && !relay.IsDeliveryFailed(err) {
			log.Error("failed to publish %s message: %v", msg.Type, err)
			http.Error(w, "Failed to publish", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, &messages.PublishResponse{Delivered: delivered})
	}
}

func HandleStats(b Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, b.Stats())
	}
}

func HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// StatusForError maps a broker error to an HTTP status code
func StatusForError(err error) int {
	switch {
	case clients.IsNoPlayer(err), state.IsNoGame(err):
		return http.StatusNotFound
	case clients.IsNameTaken(err), clients.IsAlreadyConnected(err):
		return http.StatusConflict
	case messages.IsMalformedMessage(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError replies with the status of err. Only server side failures are logged.
func writeError(w http.ResponseWriter, action string, err error) {
	status := StatusForError(err)
	if status == http.StatusInternalServerError {
		log.Error("%s: %v", action, err)
		http.Error(w, "Internal server error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response: %v", err)
	}
}
