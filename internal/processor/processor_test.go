package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBasisPoints(t *testing.T) {
	bps, ok := BasisPoints(20.0)
	assert.True(t, ok)
	assert.Equal(t, 2000, bps)

	bps, ok = BasisPoints(8.25)
	assert.True(t, ok)
	assert.Equal(t, 825, bps)

	bps, ok = BasisPoints(0)
	assert.True(t, ok)
	assert.Equal(t, 0, bps)

	// Rates with no exact basis-point representation are rejected.
	_, ok = BasisPoints(8.1234)
	assert.False(t, ok)
}
