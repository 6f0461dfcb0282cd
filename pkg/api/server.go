package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/davemo88/ggez-multiplayer/pkg/api/handlers"
	"github.com/davemo88/ggez-multiplayer/pkg/api/middleware"
	"github.com/davemo88/ggez-multiplayer/pkg/broker"
	"github.com/davemo88/ggez-multiplayer/pkg/log"
	"github.com/davemo88/ggez-multiplayer/pkg/network"
	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"
)

// gzipMinSize is small enough for the JSON bodies of the broker to be compressed
const gzipMinSize = 32

type APIServer struct {
	server *http.Server
	tls    *TLSConfig
}

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type NewAPIServerOptions struct {
	Host   string
	Port   int
	TLS    *TLSConfig
	Broker *broker.Broker
	// PublicURL is the websocket base url handed out on registration.
	// When empty it is derived from each register request.
	PublicURL      string
	AllowOrigin    string
	OutboundBuffer int
	WriteTimeout   time.Duration
}

// NewAPIServer creates a new http.Server serving the broker's HTTP and websocket endpoints
func NewAPIServer(opts NewAPIServerOptions) *APIServer {
	server := &http.Server{
		Addr:              net.JoinHostPort(opts.Host, fmt.Sprint(opts.Port)),
		Handler:           NewRouter(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return &APIServer{
		server: server,
		tls:    opts.TLS,
	}
}

// NewRouter builds the routes of the broker
func NewRouter(opts NewAPIServerOptions) http.Handler {
	wsBaseURL := handlers.WSBaseURL(handlers.RequestWSBaseURL)
	if opts.PublicURL != "" {
		wsBaseURL = handlers.StaticWSBaseURL(opts.PublicURL)
	}
	allowOrigin := opts.AllowOrigin
	if allowOrigin == "" {
		allowOrigin = "*"
	}

	wsHandler := network.NewWSHandler(network.NewWSHandlerOptions{
		Broker:         opts.Broker,
		OutboundBuffer: opts.OutboundBuffer,
		WriteTimeout:   opts.WriteTimeout,
		OriginPatterns: middleware.OriginPatterns(allowOrigin),
	})

	gzip, err := gzhttp.NewWrapper(gzhttp.MinSize(gzipMinSize))
	if err != nil {
		panic(fmt.Sprintf("Failed to create gzip wrapper: %v", err))
	}

	router := mux.NewRouter()
	router.Use(middleware.NewLoggingMiddleware())
	router.Use(middleware.NewCORSMiddleware(allowOrigin))

	router.Handle("/register", gzip(handlers.HandleRegister(opts.Broker, wsBaseURL))).Methods(http.MethodPost, http.MethodOptions)
	router.Handle("/unregister", gzip(handlers.HandleUnregister(opts.Broker))).Methods(http.MethodPost, http.MethodOptions)
	router.Handle("/publish", gzip(handlers.HandlePublish(opts.Broker))).Methods(http.MethodPost)
	router.Handle("/stats", gzip(handlers.HandleStats(opts.Broker))).Methods(http.MethodGet)
	router.HandleFunc("/healthz", handlers.HandleHealthz).Methods(http.MethodGet)
	router.Handle("/ws/{id}", wsHandler).Methods(http.MethodGet)

	return router
}

// Start starts the APIServer and blocks until it is stopped.
// Requests, websocket connections included, are cancelled with ctx.
func (s *APIServer) Start(ctx context.Context) error {
	s.server.BaseContext = func(net.Listener) context.Context {
		return ctx
	}

	var listenAndServe func() error
	if s.tls != nil {
		log.Info("API server listening on %s with TLS", s.server.Addr)
		listenAndServe = func() error {
			return s.server.ListenAndServeTLS(s.tls.CertFile, s.tls.KeyFile)
		}
	} else {
		log.Info("API server listening on %s", s.server.Addr)
		listenAndServe = s.server.ListenAndServe
	}
	if err := listenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			log.Info("API server closed")
			return nil
		}
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

// Stop stops the APIServer
func (s *APIServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
