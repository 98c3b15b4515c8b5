package simnode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropertiesCoercion(t *testing.T) {
	props := NewProperties()

	require.NoError(t, props.Set("main_clock", "local_system_realtime"))
	require.NoError(t, props.Set("timeout", int64(5000000000)))
	require.NoError(t, props.Set("factor", 2.5))
	require.NoError(t, props.Set("enabled", true))

	assert.Equal(t, "local_system_realtime", props.GetString("main_clock", ""))
	assert.Equal(t, int64(5000000000), props.GetInt64("timeout", 0))
	assert.Equal(t, 2.5, props.GetFloat64("factor", 0))
	assert.True(t, props.GetBool("enabled", false))
}

func TestPropertiesDefaults(t *testing.T) {
	props := NewProperties()

	assert.Equal(t, "fallback", props.GetString("missing", "fallback"))
	assert.Equal(t, int64(42), props.GetInt64("missing", 42))
	assert.Equal(t, 1.0, props.GetFloat64("missing", 1.0))
	assert.True(t, props.GetBool("missing", true))

	// Non-coercible values fall back to the default.
	require.NoError(t, props.Set("not_a_number", "abc"))
	assert.Equal(t, int64(7), props.GetInt64("not_a_number", 7))
}
