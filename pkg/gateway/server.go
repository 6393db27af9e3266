package gateway

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/core-tools/hsu-governor/pkg/errors"
	"github.com/core-tools/hsu-governor/pkg/governor"
	"github.com/core-tools/hsu-governor/pkg/logging"
	"github.com/core-tools/hsu-governor/pkg/resourcequota"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// ServerOptions configures the gateway server
type ServerOptions struct {
	// ListenAddress is the host:port the HTTP server binds to
	ListenAddress string
}

// Server exposes a governor over HTTP: a REST API under /api/v1 and a
// websocket stream of session events under /ws/sessions.
type Server struct {
	options ServerOptions
	logger  logging.Logger

	gov *governor.Governor
	hub *Hub

	router     *mux.Router
	httpServer *http.Server
	listener   net.Listener

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates the gateway server and wires the governor's event
// callbacks into the websocket hub. The server does not listen until
// Start is called.
func NewServer(ctx context.Context, options ServerOptions, gov *governor.Governor, logger logging.Logger) (*Server, error) {
	if err := governor.ValidateListenAddress(options.ListenAddress); err != nil {
		return nil, err
	}

	serverCtx, cancel := context.WithCancel(ctx)

	s := &Server{
		options: options,
		logger:  logger,
		gov:     gov,
		hub:     NewHub(serverCtx, logger),
		ctx:     serverCtx,
		cancel:  cancel,
	}

	// Session events flow to websocket subscribers
	gov.SetUsageCallback(func(sessionID string, usage *resourcequota.ResourceUsage) {
		s.hub.BroadcastUsage(sessionID, usage)
	})
	gov.SetViolationCallback(func(sessionID string, violation *resourcequota.ResourceViolation) {
		s.hub.BroadcastViolation(sessionID, violation)
	})

	router := mux.NewRouter()

	router.HandleFunc("/health", s.health).Methods("GET")
	router.HandleFunc("/ws/sessions", s.serveWS).Methods("GET")

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	SetupRoutes(apiRouter, NewHandler(serverCtx, gov, logger))

	s.router = router
	s.httpServer = &http.Server{
		Addr:         options.ListenAddress,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Start binds the listen address and begins serving. Bind failures are
// returned synchronously; serve errors after that are logged.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.options.ListenAddress)
	if err != nil {
		return errors.NewIOError("failed to bind listen address", err).WithContext("listen_address", s.options.ListenAddress)
	}
	s.listener = listener

	go s.hub.Run()

	go func() {
		s.logger.Infof("Gateway listening on %s", listener.Addr().String())
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("Gateway server failed: %v", err)
		}
	}()

	return nil
}

// Stop drains the HTTP server and disconnects websocket clients. The
// context bounds how long draining may take.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Infof("Stopping gateway...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warnf("Gateway shutdown incomplete: %v", err)
	}

	s.hub.Stop()
	s.cancel()

	s.logger.Infof("Gateway stopped")
}

// Addr returns the bound listen address, empty before Start
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// health handles GET /health
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"governor": s.gov.GetState(),
		"sessions": len(s.gov.SessionIDs()),
	})
}

// serveWS handles GET /ws/sessions, optionally filtered with ?session=<id>
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	sessionFilter := r.URL.Query().Get("session")
	if sessionFilter != "" {
		if _, err := s.gov.Session(sessionFilter); err != nil {
			respondDomainError(w, err)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorf("Websocket upgrade error: %v", err)
		return
	}

	client := NewClient(s.ctx, s.hub, conn, uuid.New().String(), sessionFilter, s.logger)
	s.hub.register <- client

	go client.WritePump()
	go client.ReadPump()

	s.logger.Debugf("Websocket client connected, id: %s, filter: %q", client.id, sessionFilter)
}
