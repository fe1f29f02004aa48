package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMD5_Deterministic(t *testing.T) {
	a := MD5().Update("hello").Update(" ").Update("world").Finalize()
	b := MD5().Update("hello world").Finalize()
	assert.Equal(t, a, b)
}

func TestMD5_Sensitive(t *testing.T) {
	a := MD5().Update("hello").Finalize()
	b := MD5().Update("hellp").Finalize()
	assert.NotEqual(t, a, b)
}

func TestMD5_BytesAndStringEquivalent(t *testing.T) {
	a := MD5().Update([]byte("abc")).Finalize()
	b := MD5().Update("abc").Finalize()
	assert.Equal(t, a, b)
}
