package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/davemo88/ggez-multiplayer/pkg/api"
	"github.com/davemo88/ggez-multiplayer/pkg/broker"
	"github.com/davemo88/ggez-multiplayer/pkg/clients"
	"github.com/davemo88/ggez-multiplayer/pkg/game"
	"github.com/davemo88/ggez-multiplayer/pkg/game/constants"
	"github.com/davemo88/ggez-multiplayer/pkg/game/rules"
	"github.com/davemo88/ggez-multiplayer/pkg/log"
	"github.com/davemo88/ggez-multiplayer/pkg/queue"
	"github.com/davemo88/ggez-multiplayer/pkg/relay"
	"github.com/davemo88/ggez-multiplayer/pkg/state"
	"github.com/davemo88/ggez-multiplayer/pkg/version"
	"github.com/davemo88/ggez-multiplayer/pkg/workers"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// a missing .env is fine, the environment may be set by other means
	envErr := godotenv.Load()

	host := flag.String("host", constants.GameServerHost, "Host to listen on")
	port := flag.Int("port", constants.GameServerPort, "Port to listen on")
	publicURL := flag.String("public-url", os.Getenv("BROKER_PUBLIC_URL"), "Websocket base url handed out on registration, e.g. wss://example.com")
	allowOrigin := flag.String("allow-origin", "*", "comma-separated list of allowed origins")
	logLevel := flag.String("log-level", "info", "Log level")
	tickInterval := flag.Duration("tick-interval", constants.TickInterval, "Interval between game ticks")
	matchInterval := flag.Duration("match-interval", constants.MatchInterval, "Interval between matchmaking polls")
	maxGameDuration := flag.Duration("max-game-duration", constants.MaxGameDuration, "Maximum duration of a game, 0 for no limit")
	abandonAfter := flag.Int("abandon-after", constants.AbandonAfterTicks, "Ticks without a registered participant before a game is abandoned, 0 to disable")
	outboundBuffer := flag.Int("outbound-buffer", constants.OutboundBufferSize, "Number of messages buffered per connection")
	writeTimeout := flag.Duration("write-timeout", constants.WriteTimeout, "Timeout of a websocket write")
	rulesName := flag.String("rules", envOrDefault("BROKER_RULES", "noop"), "Game rules: noop or race")
	raceTarget := flag.Int("race-target", constants.RaceTarget, "Presses needed to win a race")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	logger := log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel)
	log.SetDefaultLogger(logger)
	log.Info("Log level set to %s", parsedLogLevel)
	if envErr != nil {
		log.Debug("No .env file loaded: %v", envErr)
	}

	log.Info("Starting broker version %s", version.Get())

	gameRules, err := rules.New(strings.ToLower(*rulesName), *raceTarget)
	if err != nil {
		panic(fmt.Sprintf("Failed to load rules: %v", err))
	}
	log.Info("Using %s rules", *rulesName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clientManager := clients.NewClientManager()
	matchQueue := queue.NewInMemoryQueue()
	store := state.NewInMemoryStore()
	publishRelay := relay.New(clientManager)

	sessions := game.NewSessionManager(game.NewSessionManagerOptions{
		Store:           store,
		Rules:           gameRules,
		Publisher:       publishRelay,
		Presence:        clientManager,
		TickInterval:    *tickInterval,
		MaxGameDuration: *maxGameDuration,
		AbandonAfter:    *abandonAfter,
	})

	b := broker.NewBroker(broker.NewBrokerOptions{
		ClientManager: clientManager,
		MatchQueue:    matchQueue,
		Store:         store,
		Rules:         gameRules,
		Relay:         publishRelay,
		Sessions:      sessions,
	})

	matchmakingWorker := workers.NewMatchmakingWorker(workers.NewMatchmakingWorkerOptions{
		ClientManager: clientManager,
		MatchQueue:    matchQueue,
		Store:         store,
		Sessions:      sessions,
		Publisher:     publishRelay,
		Interval:      *matchInterval,
	})

	apiServerOpts := api.NewAPIServerOptions{
		Host:           *host,
		Port:           *port,
		Broker:         b,
		PublicURL:      *publicURL,
		AllowOrigin:    *allowOrigin,
		OutboundBuffer: *outboundBuffer,
		WriteTimeout:   *writeTimeout,
	}
	tlsCertFile := os.Getenv("BROKER_TLS_CERT_FILE")
	tlsKeyFile := os.Getenv("BROKER_TLS_KEY_FILE")
	if tlsCertFile != "" && tlsKeyFile != "" {
		apiServerOpts.TLS = &api.TLSConfig{
			CertFile: tlsCertFile,
			KeyFile:  tlsKeyFile,
		}
	} else if tlsCertFile != "" || tlsKeyFile != "" {
		panic("BROKER_TLS_CERT_FILE and BROKER_TLS_KEY_FILE must be set together")
	}
	apiServer := api.NewAPIServer(apiServerOpts)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Starting matchmaking worker")
		matchmakingWorker.Start(gctx)
		return nil
	})
	g.Go(func() error {
		return apiServer.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := apiServer.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("failed to stop API server: %w", err)
		}
		return nil
	})

	err = g.Wait()
	sessions.Wait()
	if unfinished := store.List(context.Background()); len(unfinished) > 0 {
		log.Info("Stopped with %d unfinished games: %s", len(unfinished), strings.Join(unfinished, ", "))
	}
	if err != nil {
		log.Error("Broker stopped with error: %v", err)
		os.Exit(1)
	}
	log.Info("Broker stopped")
}

func envOrDefault(key string, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
