package light

import (
	"context"
	"fmt"
	"maps"
)

// Domain is the entity domain of lights.
const Domain = "light"

// Descriptor fields read by Light.
const (
	KeyUniqueID            = "unique_id"
	KeyName                = "name"
	KeyIsOn                = "is_on"
	KeyBrightness          = "brightness"
	KeyColorTempKelvin     = "color_temp_kelvin"
	KeySupportedFeatures   = "supported_features"
	KeySupportedColorModes = "supported_color_modes"
	KeyColorMode           = "color_mode"
)

// Actions sent to the app.
const (
	ActionTurnOn  = "turn_on"
	ActionTurnOff = "turn_off"
)

// ColorMode is a light color mode as reported by the app.
type ColorMode string

// Known color modes.
const (
	ColorModeUnknown    ColorMode = "unknown"
	ColorModeOnOff      ColorMode = "onoff"
	ColorModeBrightness ColorMode = "brightness"
	ColorModeColorTemp  ColorMode = "color_temp"
	ColorModeHS         ColorMode = "hs"
	ColorModeXY         ColorMode = "xy"
	ColorModeRGB        ColorMode = "rgb"
	ColorModeRGBW       ColorMode = "rgbw"
	ColorModeRGBWW      ColorMode = "rgbww"
	ColorModeWhite      ColorMode = "white"
)

// Supported feature bits.
const (
	SupportEffect     = 4
	SupportFlash      = 8
	SupportTransition = 32
)

// Descriptor is read access to one light's reported fields.
type Descriptor interface {
	Get(key string) (any, bool)
}

// Light wraps one descriptor. It owns no state: every accessor reads the
// descriptor, and absent or mistyped fields read as defaults.
type Light struct {
	desc       Descriptor
	dispatcher Dispatcher
}

// New creates a light over desc. Actions go through d.
func New(desc Descriptor, d Dispatcher) *Light {
	return &Light{desc: desc, dispatcher: d}
}

// UniqueID returns the descriptor's unique_id, or "".
func (l *Light) UniqueID() string {
	v, _ := l.desc.Get(KeyUniqueID)
	s, _ := v.(string)
	return s
}

// Domain returns "light".
func (l *Light) Domain() string { return Domain }

// Name returns the descriptor's name, falling back to the unique id.
func (l *Light) Name() string {
	if v, ok := l.desc.Get(KeyName); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return l.UniqueID()
}

// IsOn reports the on state; false when absent.
func (l *Light) IsOn() bool {
	v, _ := l.desc.Get(KeyIsOn)
	on, _ := v.(bool)
	return on
}

// Brightness returns the reported brightness; ok is false when absent.
func (l *Light) Brightness() (float64, bool) {
	return l.number(KeyBrightness)
}

// ColorTempKelvin returns the reported color temperature; ok is false when absent.
func (l *Light) ColorTempKelvin() (float64, bool) {
	return l.number(KeyColorTempKelvin)
}

// SupportedFeatures returns the feature bitmask; 0 when absent.
func (l *Light) SupportedFeatures() int {
	v, _ := l.desc.Get(KeySupportedFeatures)
	n, _ := toInt(v)
	return n
}

// SupportedColorModes returns the reported modes in the app's order, or nil
// when absent.
func (l *Light) SupportedColorModes() []ColorMode {
	v, ok := l.desc.Get(KeySupportedColorModes)
	if !ok {
		return nil
	}
	list, ok := toStrings(v)
	if !ok {
		return nil
	}
	modes := make([]ColorMode, len(list))
	for i, s := range list {
		modes[i] = ColorMode(s)
	}
	return modes
}

// ColorMode returns the current color mode; ok is false when absent.
func (l *Light) ColorMode() (ColorMode, bool) {
	v, _ := l.desc.Get(KeyColorMode)
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	return ColorMode(s), true
}

func (l *Light) number(key string) (float64, bool) {
	v, ok := l.desc.Get(key)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// Attributes returns the light's state for the host. Optional readings are
// omitted when absent.
func (l *Light) Attributes() map[string]any {
	attrs := map[string]any{
		KeyIsOn:              l.IsOn(),
		KeySupportedFeatures: l.SupportedFeatures(),
	}
	if b, ok := l.Brightness(); ok {
		attrs[KeyBrightness] = b
	}
	if k, ok := l.ColorTempKelvin(); ok {
		attrs[KeyColorTempKelvin] = k
	}
	if modes := l.SupportedColorModes(); modes != nil {
		attrs[KeySupportedColorModes] = modes
	}
	if m, ok := l.ColorMode(); ok {
		attrs[KeyColorMode] = m
	}
	return attrs
}

// TurnOn asks the app to switch the light on with params such as
// brightness or color values.
func (l *Light) TurnOn(ctx context.Context, params map[string]any) error {
	return l.dispatch(ctx, ActionTurnOn, params)
}

// TurnOff asks the app to switch the light off. Params are forwarded as given.
func (l *Light) TurnOff(ctx context.Context, params map[string]any) error {
	return l.dispatch(ctx, ActionTurnOff, params)
}

func (l *Light) dispatch(ctx context.Context, action string, params map[string]any) error {
	if l.dispatcher == nil {
		return ErrNoDispatcher
	}
	if err := l.dispatcher.Dispatch(ctx, action, l.payload(params)); err != nil {
		return fmt.Errorf("light %s %s: %w", l.UniqueID(), action, err)
	}
	return nil
}

// payload is {unique_id, ...params}. The light's own unique_id always wins
// so an action can never be redirected to another device.
func (l *Light) payload(params map[string]any) map[string]any {
	p := make(map[string]any, len(params)+1)
	maps.Copy(p, params)
	p[KeyUniqueID] = l.UniqueID()
	return p
}
