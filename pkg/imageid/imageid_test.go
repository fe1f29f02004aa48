package imageid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	id, err := Parse("alpine:3.18")
	require.NoError(t, err)
	assert.Equal(t, "alpine", id.Name())
	assert.Equal(t, "3.18", id.Tag())
	assert.Equal(t, "alpine:3.18", id.String())
}

func TestParse_NoTagDefaults(t *testing.T) {
	id, err := Parse("myapp")
	require.NoError(t, err)
	assert.Equal(t, "myapp", id.Name())
	assert.Equal(t, DefaultTag, id.Tag())
}

func TestParse_TrailingColonRejected(t *testing.T) {
	_, err := Parse("myapp:")
	require.Error(t, err)
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse("")
	require.Error(t, err)
}
