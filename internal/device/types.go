package device

import (
	"time"

	"github.com/homeforge/control-core/internal/corekey"
)

// ColorMode identifies which of the four color encodings a value is
// expressed in. Devices advertise the subset they accept as
// Capabilities; the reconciler converts between modes via color.go.
type ColorMode string

const (
	ColorModeXY  ColorMode = "xy"
	ColorModeHS  ColorMode = "hs"
	ColorModeRGB ColorMode = "rgb"
	ColorModeCT  ColorMode = "ct"
)

// Color is a tagged union over the four color encodings a Controllable
// may report or accept. Exactly one field group is populated, selected
// by Mode.
type Color struct {
	Mode ColorMode

	X, Y float64 // ColorModeXY

	HueDeg float64 // ColorModeHS
	Sat    float64 // ColorModeHS

	R, G, B float64 // ColorModeRGB, each 0..1

	Kelvin float64 // ColorModeCT
}

// DeepCopy returns an independent copy; Color has no reference fields so
// a value copy already suffices, but the method is kept for symmetry
// with every other domain type's DeepCopy contract.
func (c Color) DeepCopy() Color { return c }

// ManagedKind is the tag of the Managed union on ControllableState.
type ManagedKind string

const (
	ManagedFull    ManagedKind = "full"
	ManagedPartial ManagedKind = "partial"
	ManagedNone    ManagedKind = "none"
)

// Managed describes how much of a device's state the core owns.
type Managed struct {
	Kind ManagedKind
	// PrevChangeCommitted is only meaningful when Kind == ManagedPartial:
	// true once an observation has confirmed the last command took
	// effect, false while a command is outstanding.
	PrevChangeCommitted bool
}

func (m Managed) DeepCopy() Managed { return m }

// ControllableState is the state of a device the core can drive: a
// light, switch, or similar on/off-capable unit.
type ControllableState struct {
	Power        bool
	Brightness   *float64 // 0..1, nil if the device has no dimming capability reported
	Color        *Color
	TransitionMS *int
	Capabilities []ColorMode
	Managed      Managed
	SceneID      string // which scene produced this intended state, "" if none
}

// DeepCopy returns an independent copy of s.
func (s ControllableState) DeepCopy() ControllableState {
	out := s
	if s.Brightness != nil {
		b := *s.Brightness
		out.Brightness = &b
	}
	if s.Color != nil {
		c := s.Color.DeepCopy()
		out.Color = &c
	}
	if s.TransitionMS != nil {
		t := *s.TransitionMS
		out.TransitionMS = &t
	}
	if s.Capabilities != nil {
		out.Capabilities = append([]ColorMode(nil), s.Capabilities...)
	}
	return out
}

// SensorKind is the tag of the SensorState union.
type SensorKind string

const (
	SensorBoolean SensorKind = "boolean"
	SensorText    SensorKind = "text"
	SensorColor   SensorKind = "color"
)

// SensorState is the state of an event-source device: a button, a
// motion detector, a synthetic color-reading sensor.
type SensorState struct {
	Kind    SensorKind
	Bool    bool
	Text    string
	Color   *ControllableState // SensorColor: a color-like reading
}

func (s SensorState) DeepCopy() SensorState {
	out := s
	if s.Color != nil {
		c := s.Color.DeepCopy()
		out.Color = &c
	}
	return out
}

// DataKind is the tag of Record.Data.
type DataKind string

const (
	DataControllable DataKind = "controllable"
	DataSensor       DataKind = "sensor"
)

// Record is a device as known to the store: identity, display name, the
// tagged Controllable/Sensor state union, and the adapter's opaque raw
// payload.
type Record struct {
	Key           corekey.DeviceKey
	Name          string
	IntegrationID string

	DataKind     DataKind
	Controllable *ControllableState
	Sensor       *SensorState

	// Raw is the adapter's last payload, untouched by the core, but
	// compared structurally alongside Data to detect changes (I5: it
	// must round-trip identically through serialization).
	Raw map[string]any

	CreatedAt      time.Time
	StateUpdatedAt time.Time
}

// DeepCopy returns a Record with no shared mutable state with r.
func (r *Record) DeepCopy() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.Controllable != nil {
		c := r.Controllable.DeepCopy()
		out.Controllable = &c
	}
	if r.Sensor != nil {
		s := r.Sensor.DeepCopy()
		out.Sensor = &s
	}
	out.Raw = deepCopyMap(r.Raw)
	return &out
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

// EffectiveBrightness applies invariant I4: a powered-on Controllable
// always has a non-null brightness, defaulted to 1.0.
func (s *ControllableState) EffectiveBrightness() float64 {
	if s.Brightness != nil {
		return *s.Brightness
	}
	if s.Power {
		return 1.0
	}
	return 0.0
}

// NormalizeName lowercases and replaces spaces with underscores, matching
// the expression-context device-name normalization rule (§4.5).
func NormalizeName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		if r == ' ' {
			out = append(out, '_')
			continue
		}
		if r >= 'A' && r <= 'Z' {
			r = r - 'A' + 'a'
		}
		out = append(out, r)
	}
	return string(out)
}
