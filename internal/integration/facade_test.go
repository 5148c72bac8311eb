package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/homeforge/control-core/internal/corekey"
)

type fakeAdapter struct {
	setCalls int
}

func (f *fakeAdapter) Register(context.Context, []DeviceDeclaration) error { return nil }
func (f *fakeAdapter) Start(context.Context) error                         { return nil }
func (f *fakeAdapter) SetDeviceState(context.Context, corekey.DeviceKey, any) error {
	f.setCalls++
	return nil
}
func (f *fakeAdapter) RunAction(context.Context, any) error { return nil }

func TestUnknownIntegrationIsUserVisibleError(t *testing.T) {
	f := NewFacade()
	err := f.SetDeviceState(context.Background(), corekey.DeviceKey{IntegrationID: "nope", DeviceID: "x"}, nil)
	if !errors.Is(err, ErrUnknownIntegration) {
		t.Fatalf("err = %v, want ErrUnknownIntegration", err)
	}
}

func TestSetDeviceStateDispatchesToRegisteredAdapter(t *testing.T) {
	f := NewFacade()
	a := &fakeAdapter{}
	f.Add("hue", a)

	key := corekey.DeviceKey{IntegrationID: "hue", DeviceID: "lamp1"}
	if err := f.SetDeviceState(context.Background(), key, nil); err != nil {
		t.Fatalf("SetDeviceState: %v", err)
	}
	if a.setCalls != 1 {
		t.Fatalf("setCalls = %d, want 1", a.setCalls)
	}
}
