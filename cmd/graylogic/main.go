// control-core - home automation reconciliation engine
//
// This is the main entry point for the control-core daemon: it loads
// the declarative device/group/scene/routine configuration, hydrates
// the domain stores from the local database, starts the integration
// adapters and the single-consumer event loop, and serves the HTTP/API
// surface describing observed and intended device state.
//
// For architecture details, see SPEC_FULL.md and DESIGN.md.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/homeforge/control-core/internal/api"
	"github.com/homeforge/control-core/internal/audit"
	"github.com/homeforge/control-core/internal/corekey"
	"github.com/homeforge/control-core/internal/device"
	"github.com/homeforge/control-core/internal/eventbus"
	"github.com/homeforge/control-core/internal/expr"
	"github.com/homeforge/control-core/internal/group"
	"github.com/homeforge/control-core/internal/infrastructure/config"
	"github.com/homeforge/control-core/internal/infrastructure/database"
	"github.com/homeforge/control-core/internal/infrastructure/logging"
	"github.com/homeforge/control-core/internal/infrastructure/mqtt"
	"github.com/homeforge/control-core/internal/integration"
	"github.com/homeforge/control-core/internal/integration/mqttadapter"
	"github.com/homeforge/control-core/internal/reconcile"
	"github.com/homeforge/control-core/internal/routine"
	"github.com/homeforge/control-core/internal/scene"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to the configuration file")
	dryRun := flag.Bool("dry-run", false, "suppress DB writes and adapter commands")
	flag.Parse()

	fmt.Printf("control-core %s (%s) built %s\n", version, commit, date)
	fmt.Println("home automation reconciliation engine")
	fmt.Println("---")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, *dryRun); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app bundles the wired-up components so shutdown can unwind them in
// reverse dependency order.
type app struct {
	logger    *logging.Logger
	db        *database.DB
	mqttCli   *mqtt.Client
	apiServer *api.Server
	loopDone  chan struct{}
	history   historyWriter
}

// run wires every component described in §2-§6 and drives the single
// consumer event loop until ctx is cancelled.
//
//nolint:unparam // error return carries startup failures once components exist
func run(ctx context.Context, configPath string, dryRunFlag bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if dryRunFlag {
		cfg.Core.DryRun = true
	}

	logger := logging.New(cfg.Logging, version)
	logger.Info("starting control-core", "version", version, "dry_run", cfg.Core.DryRun)

	a := &app{logger: logger}

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	a.db = db
	defer a.shutdown(ctx)

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	bus := eventbus.NewBus()

	deviceStore := device.NewStore(device.NewSQLiteRepository(db.DB), bus)
	deviceStore.SetLogger(logger.Component("device"))
	if err := deviceStore.Hydrate(ctx); err != nil {
		return fmt.Errorf("hydrating device store: %w", err)
	}

	sceneStore := scene.NewStore(scene.NewSQLiteRepository(db.DB))
	if err := sceneStore.Hydrate(ctx); err != nil {
		return fmt.Errorf("hydrating scene store: %w", err)
	}
	if err := seedScenesIfEmpty(ctx, sceneStore, cfg); err != nil {
		return fmt.Errorf("seeding scenes from config: %w", err)
	}

	flattener := group.NewFlattener(func(ref corekey.DeviceRef) (corekey.DeviceKey, bool) {
		rec, err := deviceStore.GetByRef(ref)
		if err != nil {
			return corekey.DeviceKey{}, false
		}
		return rec.Key, true
	})
	if err := flattener.Load(config.ToGroupConfigs(cfg.Groups)); err != nil {
		return fmt.Errorf("loading group configuration: %w", err)
	}

	resolver := scene.NewResolver(
		sceneStore.Get,
		func(integrationID, normalizedName string) (*device.Record, bool) {
			rec, err := deviceStore.GetByRef(corekey.DeviceRef{Name: normalizedName})
			if err != nil || rec.IntegrationID != integrationID {
				return nil, false
			}
			return rec, true
		},
		func(source string) (*device.ControllableState, bool) {
			snap := buildSnapshot(deviceStore, sceneStore, flattener)
			res, err := expr.Eval(source, snap)
			if err != nil {
				logger.Warn("scene expression evaluation failed", "err", err)
				return nil, false
			}
			return nil, res.Bool
		},
	)

	routineEngine := routine.NewEngine(
		func(ref corekey.DeviceRef) routine.DeviceView {
			rec, err := deviceStore.GetByRef(ref)
			if err != nil {
				return routine.DeviceView{}
			}
			v := routine.DeviceView{Found: true}
			if rec.DataKind == device.DataControllable && rec.Controllable != nil {
				v.Power = rec.Controllable.Power
				v.SceneID = rec.Controllable.SceneID
			}
			if rec.DataKind == device.DataSensor && rec.Sensor != nil {
				v.IsSensor = true
				v.SensorBool = rec.Sensor.Bool
				v.SensorText = rec.Sensor.Text
			}
			return v
		},
		flattener.FindGroupDevices,
	)
	routineEngine.SetLogger(logger.Component("routine"))
	routineEngine.Load(config.ToRoutines(cfg.Routines))

	reconciler := reconcile.New(deviceStore, bus, cfg.Core.ReconcileRateLimitRPS)
	reconciler.SetLogger(logger.Component("reconcile"))

	facade := integration.NewFacade()
	facade.SetLogger(logger.Component("integration"))

	var mqttCli *mqtt.Client
	if cfg.MQTT.Broker.Host != "" {
		mqttCli, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			logger.Warn("mqtt broker connection failed, continuing without it", "err", err)
		} else {
			a.mqttCli = mqttCli
			for integrationID := range cfg.Integrations {
				facade.Add(integrationID, mqttadapter.New(integrationID, mqttCli, bus))
			}
			if len(cfg.Integrations) == 0 {
				facade.Add("mqtt", mqttadapter.New("mqtt", mqttCli, bus))
			}
		}
	}

	hub := api.NewHub(cfg.WebSocket, logger, bus)

	history := connectHistory(ctx, cfg, logger)
	a.history = history

	disp := &dispatcher{
		cfg: cfg, logger: logger, bus: bus,
		deviceStore: deviceStore, sceneStore: sceneStore, resolver: resolver,
		flattener: flattener, routineEngine: routineEngine, reconciler: reconciler,
		facade: facade, hub: hub, history: history,
	}

	warmup := time.Duration(cfg.Core.WarmupTimeSeconds) * time.Second
	loop := eventbus.NewLoop(bus, warmup, disp.handle)
	disp.loop = loop

	loopCtx, loopCancel := context.WithCancel(ctx)
	a.loopDone = make(chan struct{})
	go func() {
		defer close(a.loopDone)
		loop.Run(loopCtx)
	}()
	defer loopCancel()

	if err := facade.Start(ctx); err != nil {
		logger.Warn("one or more integrations failed to start", "err", err)
	}

	apiServer, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		RateLimit:   cfg.RateLimit,
		SiteID:      cfg.Site.ID,
		Logger:      logger,
		Device:      deviceStore,
		SceneStore:  sceneStore,
		Resolver:    resolver,
		Flattener:   flattener,
		Routines:    routineEngine,
		Bus:         bus,
		MQTT:        mqttCli,
		DB:          db,
		AuditRepo:   audit.NewSQLiteRepository(db.DB),
		ExternalHub: hub,
		DevMode:     cfg.Core.DryRun,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("constructing API server: %w", err)
	}
	a.apiServer = apiServer
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}

	logger.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	logger.Info("shutdown signal received, cleaning up")

	return nil
}

// shutdown unwinds components in reverse dependency order: API first (stop
// accepting requests), then the event loop, then MQTT, then the database.
func (a *app) shutdown(ctx context.Context) {
	if a.apiServer != nil {
		if err := a.apiServer.Close(); err != nil {
			a.logger.Error("api server shutdown error", "err", err)
		}
	}
	if a.loopDone != nil {
		select {
		case <-a.loopDone:
		case <-time.After(5 * time.Second):
			a.logger.Warn("event loop did not stop within grace period")
		}
	}
	if a.mqttCli != nil {
		if err := a.mqttCli.Close(); err != nil {
			a.logger.Error("mqtt shutdown error", "err", err)
		}
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Error("device-state history shutdown error", "err", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("database shutdown error", "err", err)
		}
	}
	a.logger.Info("control-core stopped")
}

func buildSnapshot(deviceStore *device.Store, sceneStore *scene.Store, flattener *group.Flattener) expr.Snapshot {
	devices := deviceStore.List()
	scenes := sceneStore.List()
	sceneViews := make(map[string]expr.SceneView, len(scenes))
	for _, s := range scenes {
		sceneViews[s.ID] = expr.SceneView{Name: s.Name, Hidden: s.Hidden}
	}
	return expr.BuildSnapshot(devices, sceneViews, flattener.Flatten())
}

// seedScenesIfEmpty loads the config document's scenes section only on a
// fresh database, matching §3 Lifecycle: thereafter the database (kept
// current via the API) is authoritative.
func seedScenesIfEmpty(ctx context.Context, store *scene.Store, cfg *config.Config) error {
	if len(store.List()) > 0 || len(cfg.Scenes) == 0 {
		return nil
	}
	for _, sc := range config.ToSceneConfigs(cfg.Scenes) {
		if err := store.Put(ctx, sc); err != nil {
			return err
		}
	}
	return nil
}
