package ltq

import (
	"time"

	"github.com/spf13/cast"
)

// Kwargs is the loosely typed keyword-argument bag carried on a Message
// (spec §3: "kwargs (mapping of string → serializable value)"). After a
// round trip through the broker, numeric values decode as json.Number
// rather than a concrete Go type (see base.DecodeMessage), so these
// accessors lean on spf13/cast to coerce whatever is actually stored into
// the type the caller asked for.
type Kwargs map[string]any

// String returns the value at key coerced to a string, or def if absent.
func (k Kwargs) String(key, def string) string {
	v, ok := k[key]
	if !ok {
		return def
	}
	return cast.ToString(v)
}

// Int returns the value at key coerced to an int, or def if absent or not
// coercible.
func (k Kwargs) Int(key string, def int) int {
	v, ok := k[key]
	if !ok {
		return def
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return n
}

// Float64 returns the value at key coerced to a float64, or def if absent
// or not coercible.
func (k Kwargs) Float64(key string, def float64) float64 {
	v, ok := k[key]
	if !ok {
		return def
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return def
	}
	return f
}

// Bool returns the value at key coerced to a bool, or def if absent or not
// coercible.
func (k Kwargs) Bool(key string, def bool) bool {
	v, ok := k[key]
	if !ok {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

// Duration returns the value at key coerced to a time.Duration, or def if
// absent or not coercible. Accepts durations stored as nanosecond counts
// or as duration strings (e.g. "1h30m").
func (k Kwargs) Duration(key string, def time.Duration) time.Duration {
	v, ok := k[key]
	if !ok {
		return def
	}
	d, err := cast.ToDurationE(v)
	if err != nil {
		return def
	}
	return d
}

// Ctx mirrors Kwargs's typed accessors for the per-attempt Message.Ctx map
// (spec §3: "ctx ... used by middleware to carry per-message state").
type Ctx map[string]any

func (c Ctx) Int(key string, def int) int {
	v, ok := c[key]
	if !ok {
		return def
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return n
}

func (c Ctx) Bool(key string, def bool) bool {
	v, ok := c[key]
	if !ok {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}
