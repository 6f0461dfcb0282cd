package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/davemo88/ggez-multiplayer/pkg/client/network"
	"github.com/davemo88/ggez-multiplayer/pkg/game/rules"
	"github.com/davemo88/ggez-multiplayer/pkg/log"
	"github.com/davemo88/ggez-multiplayer/pkg/messages"
	"github.com/davemo88/ggez-multiplayer/pkg/version"
	"github.com/google/uuid"
)

// bot registers a player, waits for a match and presses A until the game ends.
type bot struct {
	name       string
	ws         *network.WSClient
	pressEvery time.Duration
	rtts       *network.RTTTracker
	gameID     string
	opponent   string
	score      int
	matched    chan struct{}
	done       chan struct{}
	matchOnce  sync.Once
	doneOnce   sync.Once
}

func main() {
	serverURL := flag.String("server", network.DefaultServerURL, "Broker base url")
	playerName := flag.String("name", "", "Player name, random when empty")
	pressEvery := flag.Duration("press-every", 200*time.Millisecond, "Interval between presses of A")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	logger := log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel)
	log.SetDefaultLogger(logger)
	log.Info("Log level set to %s", parsedLogLevel)

	log.Info("Starting client version %s", version.Get())

	name := *playerName
	if name == "" {
		name = "bot-" + uuid.NewString()[:8]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	networkManager := network.NewNetworkManager(*serverURL)
	if _, err := networkManager.Register(ctx, name); err != nil {
		panic(fmt.Sprintf("Failed to register: %v", err))
	}
	defer func() {
		unregisterCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := networkManager.Unregister(unregisterCtx); err != nil {
			log.Debug("Failed to unregister: %v", err)
		}
	}()

	ws, err := networkManager.Connect(ctx)
	if err != nil {
		log.Error("Failed to connect: %v", err)
		return
	}
	defer ws.Close()

	b := &bot{
		name:       name,
		ws:         ws,
		pressEvery: *pressEvery,
		rtts:       network.NewRTTTracker(),
		matched:    make(chan struct{}),
		done:       make(chan struct{}),
	}
	log.Info("Waiting for a match as %s", name)
	b.run(ctx)
}

func (b *bot) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	readErr := make(chan error, 1)
	go func() {
		readErr <- b.ws.HandleMessages(ctx, b.handleMessage)
	}()

	matched := b.matched
	var presses <-chan time.Time
	press := time.NewTicker(b.pressEvery)
	defer press.Stop()
	ping := time.NewTicker(5 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case err := <-readErr:
			if err != nil {
				log.Error("Connection lost: %v", err)
			}
			return
		case <-matched:
			presses = press.C
			matched = nil
		case <-presses:
			if err := b.ws.SendAction(ctx, rules.ActionPressedA, nil); err != nil {
				log.Error("Failed to press A: %v", err)
			}
		case <-ping.C:
			go b.ping(ctx)
		}
	}
}

func (b *bot) ping(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	rtt, err := b.ws.Ping(ctx)
	if err != nil {
		log.Debug("Ping failed: %v", err)
		return
	}
	b.rtts.Add(rtt)
	log.Debug("RTT %s (average %s)", rtt, b.rtts.Average())
}

// handleMessage runs on the reader goroutine
func (b *bot) handleMessage(msg *messages.Message) error {
	switch msg.Type {
	case messages.MessageTypeServerMatchFound:
		matchFound := &messages.ServerMatchFound{}
		if err := messages.DecodePayload(msg, matchFound); err != nil {
			return err
		}
		b.matchOnce.Do(func() {
			b.opponent = matchFound.Opponent
			b.gameID = matchFound.GameID
			log.Info("Matched against %s in game %s", b.opponent, b.gameID)
			close(b.matched)
		})
	case messages.MessageTypeServerStateUpdate:
		update := &messages.ServerStateUpdate{}
		if err := messages.DecodePayload(msg, update); err != nil {
			return err
		}
		if update.PlayerName == b.name && update.PlayerState != nil && update.PlayerState.Score != b.score {
			b.score = update.PlayerState.Score
			log.Info("Score %d at tick %d", b.score, update.Tick)
		}
	case messages.MessageTypeServerGameOver:
		gameOver := &messages.ServerGameOver{}
		if err := messages.DecodePayload(msg, gameOver); err != nil {
			return err
		}
		switch {
		case gameOver.Winner == b.name:
			log.Info("Won the game")
		case gameOver.Winner != "":
			log.Info("Lost the game to %s", gameOver.Winner)
		default:
			log.Info("Game over: %s", gameOver.Reason)
		}
		b.doneOnce.Do(func() { close(b.done) })
	case messages.MessageTypeServerError:
		serverError, err := network.ParseServerError(msg)
		if err != nil {
			return err
		}
		log.Warn("Server error %s: %s", serverError.Kind, serverError.Reason)
	default:
		return fmt.Errorf("received unexpected message type: %s", msg.Type)
	}
	return nil
}
