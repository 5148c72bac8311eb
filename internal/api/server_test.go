package api

import (
	"context"
	"testing"

	"github.com/homeforge/control-core/internal/corekey"
	"github.com/homeforge/control-core/internal/device"
	"github.com/homeforge/control-core/internal/eventbus"
	"github.com/homeforge/control-core/internal/group"
	"github.com/homeforge/control-core/internal/infrastructure/config"
	"github.com/homeforge/control-core/internal/infrastructure/logging"
	"github.com/homeforge/control-core/internal/routine"
	"github.com/homeforge/control-core/internal/scene"
)

// fakeDeviceRepo is an in-memory device.Repository, mirroring the fakeRepo
// shape used in internal/device's own tests.
type fakeDeviceRepo struct{ records map[corekey.DeviceKey]*device.Record }

func (f *fakeDeviceRepo) Upsert(_ context.Context, r *device.Record) error {
	f.records[r.Key] = r.DeepCopy()
	return nil
}

func (f *fakeDeviceRepo) Load(_ context.Context) ([]*device.Record, error) {
	out := make([]*device.Record, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, r.DeepCopy())
	}
	return out, nil
}

// fakeSceneRepo is an in-memory scene.Repository.
type fakeSceneRepo struct{ scenes map[string]scene.Config }

func (f *fakeSceneRepo) Upsert(_ context.Context, cfg scene.Config) error {
	f.scenes[cfg.ID] = cfg
	return nil
}

func (f *fakeSceneRepo) Delete(_ context.Context, sceneID string) error {
	delete(f.scenes, sceneID)
	return nil
}

func (f *fakeSceneRepo) Load(_ context.Context) ([]scene.Config, error) {
	out := make([]scene.Config, 0, len(f.scenes))
	for _, c := range f.scenes {
		out = append(out, c)
	}
	return out, nil
}

func brightness(v float64) *float64 { return &v }

// testServer builds a Server wired to in-memory device/scene stores and an
// empty group flattener/routine engine, seeded with one controllable light.
func testServer(t *testing.T) *Server {
	t.Helper()

	bus := eventbus.NewBus()
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	deviceRepo := &fakeDeviceRepo{records: map[corekey.DeviceKey]*device.Record{}}
	deviceStore := device.NewStore(deviceRepo, bus)

	lampKey := corekey.DeviceKey{IntegrationID: "hue", DeviceID: "lamp1"}
	deviceStore.SetState(context.Background(), &device.Record{
		Key: lampKey, Name: "Lamp 1", IntegrationID: "hue",
		DataKind:     device.DataControllable,
		Controllable: &device.ControllableState{Power: true, Brightness: brightness(0.5)},
	}, device.SetStateOpts{})

	sceneRepo := &fakeSceneRepo{scenes: map[string]scene.Config{}}
	sceneStore := scene.NewStore(sceneRepo)
	if err := sceneStore.Hydrate(context.Background()); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}

	resolver := scene.NewResolver(
		func(id string) (scene.Config, bool) { return sceneStore.Get(id) },
		func(integrationID, name string) (*device.Record, bool) {
			return deviceStore.GetByRef(corekey.DeviceRef{Name: name})
		},
		func(string) (*device.ControllableState, bool) { return nil, false },
	)

	flattener := group.NewFlattener(func(ref corekey.DeviceRef) (corekey.DeviceKey, bool) {
		if ref.Key != nil {
			return *ref.Key, true
		}
		return corekey.DeviceKey{}, false
	})
	if err := flattener.Load(nil); err != nil {
		t.Fatalf("flattener.Load: %v", err)
	}

	routines := routine.NewEngine(
		func(corekey.DeviceRef) routine.DeviceView { return routine.DeviceView{} },
		func(string) []corekey.DeviceKey { return nil },
	)

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS:        config.WebSocketConfig{Path: "/ws", MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		RateLimit: config.RateLimitConfig{Enabled: false},
		SiteID:    "test-site",
		Logger:    log,
		Device:    deviceStore,
		SceneStore: sceneStore,
		Resolver:  resolver,
		Flattener: flattener,
		Routines:  routines,
		Bus:       bus,
		Version:   "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv
}
