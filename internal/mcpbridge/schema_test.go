package mcpbridge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResourceSchemaStaticURI(t *testing.T) {
	r, err := newResourceSchema("config", "static config", "file:///config.json", "")
	require.NoError(t, err)
	require.False(t, r.IsTemplate())

	resolved, err := r.resolve(nil)
	require.NoError(t, err)
	require.Equal(t, "file:///config.json", resolved)
}

func TestResourceSchemaTemplateSubstitution(t *testing.T) {
	r, err := newResourceSchema("forecast", "weather forecast", "", "weather://forecast/{city}")
	require.NoError(t, err)
	require.True(t, r.IsTemplate())
	require.Equal(t, []string{"city"}, r.Vars)

	resolved, err := r.resolve(map[string]interface{}{"city": "austin"})
	require.NoError(t, err)
	require.Equal(t, "weather://forecast/austin", resolved)
}

func TestResourceSchemaTemplateMissingVar(t *testing.T) {
	r, err := newResourceSchema("forecast", "weather forecast", "", "weather://forecast/{city}")
	require.NoError(t, err)

	_, err = r.resolve(map[string]interface{}{})
	require.Error(t, err)
}

func TestToolFilterAllowDeny(t *testing.T) {
	f := NewToolFilter([]string{"a", "b"}, []string{"b"})
	require.True(t, f.Allows("a"))
	require.False(t, f.Allows("b"), "explicit deny wins over allow")
	require.False(t, f.Allows("c"), "not in allow-list")

	all := NewToolFilter(nil, []string{"x"})
	require.True(t, all.Allows("a"))
	require.False(t, all.Allows("x"))
}
