package builtin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	t.Parallel()

	registry, err := NewRegistry(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"cel", "jsonpath", "template"}, registry.IDs())

	for _, id := range []string{"CEL", "jsonpath", "Template"} {
		engine, err := registry.Resolve(id)
		require.NoError(t, err, id)
		assert.NotNil(t, engine)
	}
}
