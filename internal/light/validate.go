package light

import (
	"errors"
	"fmt"
)

// ValidateDescriptor reports every field of d with an unexpected type.
// A nil result means the descriptor is well formed. Reads never depend on
// this: a mistyped field still reads as its default.
func ValidateDescriptor(d Descriptor) error {
	var errs []error

	v, ok := d.Get(KeyUniqueID)
	if s, isStr := v.(string); !ok || !isStr || s == "" {
		errs = append(errs, ErrMissingUniqueID)
	}

	check := func(key, want string, valid func(any) bool) {
		v, ok := d.Get(key)
		if !ok || v == nil || valid(v) {
			return
		}
		errs = append(errs, fmt.Errorf("%w: %s is %T, want %s", ErrInvalidField, key, v, want))
	}

	isString := func(v any) bool { _, ok := v.(string); return ok }
	isNumber := func(v any) bool { _, ok := toFloat(v); return ok }

	check(KeyName, "string", isString)
	check(KeyIsOn, "bool", func(v any) bool { _, ok := v.(bool); return ok })
	check(KeyBrightness, "number", isNumber)
	check(KeyColorTempKelvin, "number", isNumber)
	check(KeySupportedFeatures, "integer", func(v any) bool { _, ok := toInt(v); return ok })
	check(KeySupportedColorModes, "list of strings", func(v any) bool { _, ok := toStrings(v); return ok })
	check(KeyColorMode, "string", isString)

	return errors.Join(errs...)
}
