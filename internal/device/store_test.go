package device

import (
	"context"
	"testing"

	"github.com/homeforge/control-core/internal/corekey"
	"github.com/homeforge/control-core/internal/eventbus"
)

type fakeRepo struct {
	records map[corekey.DeviceKey]*Record
}

func newFakeRepo() *fakeRepo { return &fakeRepo{records: map[corekey.DeviceKey]*Record{}} }

func (f *fakeRepo) Upsert(_ context.Context, r *Record) error {
	f.records[r.Key] = r.DeepCopy()
	return nil
}

func (f *fakeRepo) Load(_ context.Context) ([]*Record, error) {
	out := make([]*Record, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, r.DeepCopy())
	}
	return out, nil
}

func brightness(v float64) *float64 { return &v }

func TestSetStateEmitsInternalUpdateOnlyOnChange(t *testing.T) {
	bus := eventbus.NewBus()
	store := NewStore(newFakeRepo(), bus)
	key := corekey.DeviceKey{IntegrationID: "hue", DeviceID: "lamp1"}

	rec := &Record{
		Key:           key,
		Name:          "Lamp 1",
		IntegrationID: "hue",
		DataKind:      DataControllable,
		Controllable:  &ControllableState{Power: true, Brightness: brightness(0.5)},
	}

	store.SetState(context.Background(), rec, SetStateOpts{})
	drainUpdates(bus) // first write always differs from nil

	// identical second write must emit nothing (§8: "set_state(d);
	// set_state(d): second call emits no InternalUpdate").
	store.SetState(context.Background(), rec.DeepCopy(), SetStateOpts{})
	if n := drainUpdates(bus); n != 0 {
		t.Fatalf("second identical SetState emitted %d InternalUpdate events, want 0", n)
	}
}

func drainUpdates(bus *eventbus.Bus) int {
	n := 0
	for {
		ev, ok := bus.TryPop()
		if !ok {
			return n
		}
		if ev.Kind == eventbus.KindInternalUpdate {
			n++
		}
	}
}

func TestGetByRefResolvesByName(t *testing.T) {
	bus := eventbus.NewBus()
	store := NewStore(newFakeRepo(), bus)
	key := corekey.DeviceKey{IntegrationID: "hue", DeviceID: "lamp1"}

	store.SetState(context.Background(), &Record{
		Key: key, Name: "Living Room Lamp", IntegrationID: "hue",
		DataKind:     DataControllable,
		Controllable: &ControllableState{Power: true, Brightness: brightness(1)},
	}, SetStateOpts{})

	r, err := store.GetByRef(corekey.DeviceRef{Name: "Living Room Lamp"})
	if err != nil {
		t.Fatalf("GetByRef: %v", err)
	}
	if r.Key != key {
		t.Fatalf("resolved key = %v, want %v", r.Key, key)
	}
}

func TestGetByRefUnknownNameIsNotFound(t *testing.T) {
	bus := eventbus.NewBus()
	store := NewStore(newFakeRepo(), bus)
	if _, err := store.GetByRef(corekey.DeviceRef{Name: "nope"}); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestEffectiveBrightnessDefaultsWhenPoweredOn(t *testing.T) {
	s := &ControllableState{Power: true}
	if got := s.EffectiveBrightness(); got != 1.0 {
		t.Fatalf("EffectiveBrightness() = %v, want 1.0 (I4)", got)
	}
}

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"Living Room Lamp": "living_room_lamp",
		"already_lower":     "already_lower",
		"MIXED Case":        "mixed_case",
	}
	for in, want := range cases {
		if got := NormalizeName(in); got != want {
			t.Errorf("NormalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}
