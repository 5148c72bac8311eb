package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/homeforge/control-core/internal/audit"
	"github.com/homeforge/control-core/internal/eventbus"
	"github.com/homeforge/control-core/internal/group"
	"github.com/homeforge/control-core/internal/infrastructure/config"
	"github.com/homeforge/control-core/internal/infrastructure/database"
	"github.com/homeforge/control-core/internal/infrastructure/logging"
	"github.com/homeforge/control-core/internal/infrastructure/mqtt"
	"github.com/homeforge/control-core/internal/device"
	"github.com/homeforge/control-core/internal/routine"
	"github.com/homeforge/control-core/internal/scene"
)

// Deps bundles everything the API server needs from the rest of the
// running process. Device mutations flow back through bus for the
// single consumer loop (cmd/graylogic/dispatch.go) to apply; scene
// PUT/DELETE write SceneStore directly and then emit the matching
// Db*Scene event onto bus.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	RateLimit config.RateLimitConfig
	SiteID    string
	Logger    *logging.Logger

	Device    *device.Store
	SceneStore *scene.Store
	Resolver  *scene.Resolver
	Flattener *group.Flattener
	Routines  *routine.Engine

	Bus *eventbus.Bus
	MQTT *mqtt.Client
	DB   *database.DB

	AuditRepo audit.Repository

	// ExternalHub, when non-nil, is used in place of constructing a new
	// Hub — main.go owns the Hub so the dispatcher can broadcast to it
	// directly without importing package api's internals.
	ExternalHub *Hub

	DevMode bool
	Version string
}

// Server is the HTTP/WebSocket front door described in §1 as an
// external collaborator of the reconciliation engine: endpoints read
// snapshots from the domain stores directly; device writes enqueue an
// Action event onto Bus for the dispatcher to apply, and scene PUT/DELETE
// update the scene store before emitting a Db*Scene event.
//
// Grounded on the teacher's api.Server (httprouter-less chi mux,
// Timeouts-configured http.Server, graceful Close), trimmed to the
// device/scene/group/routine surface this domain actually has.
type Server struct {
	cfg    config.APIConfig
	wsCfg  config.WebSocketConfig
	siteID string
	logger *logging.Logger

	device    *device.Store
	scenes    *scene.Store
	resolver  *scene.Resolver
	flattener *group.Flattener
	routines  *routine.Engine

	bus  *eventbus.Bus
	mqtt *mqtt.Client
	db   *database.DB

	auditRepo audit.Repository
	auditCh   chan *audit.AuditLog

	hub     *Hub
	limiter *rateLimiter

	devMode bool
	version string
	started time.Time

	httpServer *http.Server
}

// New constructs a Server from deps. It does not start listening;
// call Start.
func New(deps Deps) (*Server, error) {
	if deps.Device == nil || deps.SceneStore == nil || deps.Resolver == nil || deps.Flattener == nil {
		return nil, errors.New("api: Device, SceneStore, Resolver and Flattener are required")
	}
	if deps.Bus == nil {
		return nil, errors.New("api: Bus is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}

	hub := deps.ExternalHub
	if hub == nil {
		hub = NewHub(deps.WS, logger, deps.Bus)
	}

	s := &Server{
		cfg: deps.Config, wsCfg: deps.WS, siteID: deps.SiteID, logger: logger,
		device: deps.Device, scenes: deps.SceneStore, resolver: deps.Resolver,
		flattener: deps.Flattener, routines: deps.Routines,
		bus: deps.Bus, mqtt: deps.MQTT, db: deps.DB,
		auditRepo: deps.AuditRepo,
		hub:       hub,
		limiter:   newRateLimiter(deps.RateLimit),
		devMode:   deps.DevMode, version: deps.Version, started: time.Now(),
	}
	if s.auditRepo != nil {
		s.auditCh = make(chan *audit.AuditLog, auditChanSize)
	}

	return s, nil
}

// Start begins serving HTTP traffic and, if an audit repository is
// configured, the audit-log drain goroutine. It does not block.
func (s *Server) Start(ctx context.Context) error {
	router := s.buildRouter()

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  durationOrDefault(s.cfg.Timeouts.Read, 30) * time.Second,
		WriteTimeout: durationOrDefault(s.cfg.Timeouts.Write, 30) * time.Second,
		IdleTimeout:  durationOrDefault(s.cfg.Timeouts.Idle, 60) * time.Second,
	}

	if s.auditCh != nil {
		go s.drainAuditLog(ctx)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api: listen on %s: %w", addr, err)
	}

	go func() {
		var serveErr error
		if s.cfg.TLS.Enabled {
			serveErr = s.httpServer.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			serveErr = s.httpServer.Serve(ln)
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("api server stopped unexpectedly", "err", serveErr)
		}
	}()

	s.logger.Info("api server listening", "addr", addr, "tls", s.cfg.TLS.Enabled)
	return nil
}

// Close gracefully shuts down the HTTP server.
func (s *Server) Close() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func durationOrDefault(seconds, fallback int) time.Duration {
	if seconds <= 0 {
		return time.Duration(fallback)
	}
	return time.Duration(seconds)
}
