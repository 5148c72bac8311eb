package device

import "math"

// Color-space conversions used by the reconciler's convergence guard
// (§4.7) and by the wire broadcaster's canonical-HS representation
// (§6). Adapted from the teacher's KNX DPT color-conversion helpers
// (GetKNXFunctions's brightness/color-temperature scaling); generalized
// here from DPT-scaled integers to the spec's float color union and to
// the XYZ/HSV round-trip the spec calls for (McCamy's approximation for
// XY->CCT, a piecewise approximation for CCT->RGB).

// ToHS converts c to the canonical HS representation used for wire
// transport (§6 "Devices are converted to a canonical color
// representation (HS) for wire transport").
func ToHS(c Color) Color {
	switch c.Mode {
	case ColorModeHS:
		return c
	case ColorModeXY:
		r, g, b := xyToRGB(c.X, c.Y)
		h, s := rgbToHS(r, g, b)
		return Color{Mode: ColorModeHS, HueDeg: h, Sat: s}
	case ColorModeRGB:
		h, s := rgbToHS(c.R, c.G, c.B)
		return Color{Mode: ColorModeHS, HueDeg: h, Sat: s}
	case ColorModeCT:
		r, g, b := ctToRGB(c.Kelvin)
		h, s := rgbToHS(r, g, b)
		return Color{Mode: ColorModeHS, HueDeg: h, Sat: s}
	default:
		return c
	}
}

// ToMode converts c into the target mode, used by the reconciler to
// render the intended state into a device's preferred color mode before
// comparing against an observation (§4.7 convergence guard).
func ToMode(c Color, mode ColorMode) Color {
	if c.Mode == mode {
		return c
	}
	hs := ToHS(c)
	switch mode {
	case ColorModeHS:
		return hs
	case ColorModeXY:
		r, g, b := hsToRGB(hs.HueDeg, hs.Sat)
		x, y := rgbToXY(r, g, b)
		return Color{Mode: ColorModeXY, X: x, Y: y}
	case ColorModeRGB:
		r, g, b := hsToRGB(hs.HueDeg, hs.Sat)
		return Color{Mode: ColorModeRGB, R: r, G: g, B: b}
	case ColorModeCT:
		r, g, b := hsToRGB(hs.HueDeg, hs.Sat)
		x, y := rgbToXY(r, g, b)
		return Color{Mode: ColorModeCT, Kelvin: xyToCCT(x, y)}
	default:
		return c
	}
}

// Reconciliation tolerances (§4.7, §8 scenario 5).
const (
	HueToleranceDeg    = 1.0
	SatBrightTolerance = 0.01
	CTToleranceKelvin  = 10.0
)

func withinTolerance(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// ColorWithinTolerance compares two colors after normalizing both to the
// same mode (the caller picks the device's preferred mode), per the
// tolerances in §4.7/§8.
func ColorWithinTolerance(observed, intended Color, preferred ColorMode) bool {
	o := ToMode(observed, preferred)
	i := ToMode(intended, preferred)
	switch preferred {
	case ColorModeHS:
		return withinTolerance(o.HueDeg, i.HueDeg, HueToleranceDeg) &&
			withinTolerance(o.Sat, i.Sat, SatBrightTolerance)
	case ColorModeCT:
		return withinTolerance(o.Kelvin, i.Kelvin, CTToleranceKelvin)
	default:
		oh := ToHS(o)
		ih := ToHS(i)
		return withinTolerance(oh.HueDeg, ih.HueDeg, HueToleranceDeg) &&
			withinTolerance(oh.Sat, ih.Sat, SatBrightTolerance)
	}
}

// BrightnessWithinTolerance compares two brightness scalars per §8
// scenario 5 (0.01 tolerance).
func BrightnessWithinTolerance(a, b float64) bool {
	return withinTolerance(a, b, SatBrightTolerance)
}

func rgbToHS(r, g, b float64) (hueDeg, sat float64) {
	max := math.Max(r, math.Max(g, b))
	min := math.Min(r, math.Min(g, b))
	delta := max - min

	if delta == 0 {
		return 0, 0
	}
	if max > 0 {
		sat = delta / max
	}

	switch max {
	case r:
		hueDeg = 60 * math.Mod((g-b)/delta, 6)
	case g:
		hueDeg = 60 * ((b-r)/delta + 2)
	default:
		hueDeg = 60 * ((r-g)/delta + 4)
	}
	if hueDeg < 0 {
		hueDeg += 360
	}
	return hueDeg, sat
}

func hsToRGB(hueDeg, sat float64) (r, g, b float64) {
	c := sat // value fixed at 1 for a pure hue/saturation conversion
	x := c * (1 - math.Abs(math.Mod(hueDeg/60, 2)-1))
	m := 1 - c

	var r1, g1, b1 float64
	switch {
	case hueDeg < 60:
		r1, g1, b1 = c, x, 0
	case hueDeg < 120:
		r1, g1, b1 = x, c, 0
	case hueDeg < 180:
		r1, g1, b1 = 0, c, x
	case hueDeg < 240:
		r1, g1, b1 = 0, x, c
	case hueDeg < 300:
		r1, g1, b1 = x, 0, c
	default:
		r1, g1, b1 = c, 0, x
	}
	return r1 + m, g1 + m, b1 + m
}

func xyToRGB(x, y float64) (r, g, b float64) {
	if y == 0 {
		return 0, 0, 0
	}
	z := 1.0 - x - y
	Y := 1.0
	X := (Y / y) * x
	Z := (Y / y) * z

	r = X*1.656492 - Y*0.354851 - Z*0.255038
	g = -X*0.707196 + Y*1.655397 + Z*0.036152
	b = X*0.051713 - Y*0.121364 + Z*1.011530

	r, g, b = gammaCorrect(r), gammaCorrect(g), gammaCorrect(b)
	return clamp01(r), clamp01(g), clamp01(b)
}

func rgbToXY(r, g, b float64) (x, y float64) {
	r, g, b = invGamma(r), invGamma(g), invGamma(b)

	X := r*0.664511 + g*0.154324 + b*0.162028
	Y := r*0.283881 + g*0.668433 + b*0.047685
	Z := r*0.000088 + g*0.072310 + b*0.986039

	sum := X + Y + Z
	if sum == 0 {
		return 0, 0
	}
	return X / sum, Y / sum
}

func gammaCorrect(v float64) float64 {
	if v <= 0.0031308 {
		return 12.92 * v
	}
	return 1.055*math.Pow(v, 1.0/2.4) - 0.055
}

func invGamma(v float64) float64 {
	if v <= 0.04045 {
		return v / 12.92
	}
	return math.Pow((v+0.055)/1.055, 2.4)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// xyToCCT approximates correlated color temperature from CIE xy via
// McCamy's formula (named explicitly in §6).
func xyToCCT(x, y float64) float64 {
	n := (x - 0.3320) / (0.1858 - y)
	cct := 437*n*n*n + 3601*n*n + 6861*n + 5517
	if cct < 1000 {
		cct = 1000
	}
	if cct > 40000 {
		cct = 40000
	}
	return cct
}

// ctToRGB is a piecewise approximation of blackbody radiation color,
// valid over the 1000K-40000K range, after Tanner Helland's widely used
// fit (the "piecewise approximation for CCT->RGB" named in §6).
func ctToRGB(kelvin float64) (r, g, b float64) {
	temp := kelvin / 100

	if temp <= 66 {
		r = 255
	} else {
		r = 329.698727446 * math.Pow(temp-60, -0.1332047592)
	}

	if temp <= 66 {
		g = 99.4708025861*math.Log(temp) - 161.1195681661
	} else {
		g = 288.1221695283 * math.Pow(temp-60, -0.0755148492)
	}

	if temp >= 66 {
		b = 255
	} else if temp <= 19 {
		b = 0
	} else {
		b = 138.5177312231*math.Log(temp-10) - 305.0447927307
	}

	return clamp01(r / 255), clamp01(g / 255), clamp01(b / 255)
}
