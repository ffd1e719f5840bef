package ltq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tclesius/ltq/internal/base"
)

func TestKwargsRoundTripThroughJSON(t *testing.T) {
	msg := NewMessage("emails:send", []any{1, "x"}, map[string]any{"count": 7, "rate": 1.5})

	blob, err := base.EncodeMessage(msg)
	require.NoError(t, err)

	decoded, err := base.DecodeMessage(blob)
	require.NoError(t, err)

	kw := Kwargs(decoded.Kwargs)
	assert.Equal(t, 7, kw.Int("count", 0))
	assert.Equal(t, 1.5, kw.Float64("rate", 0))
	assert.Equal(t, "default", kw.String("missing", "default"))
}

func TestCtxAccessorsDefaultWhenAbsent(t *testing.T) {
	c := Ctx{}
	assert.Equal(t, 0, c.Int("tries", 0))
	assert.False(t, c.Bool("rate_limited", false))

	c["tries"] = 3
	assert.Equal(t, 3, c.Int("tries", 0))
}
