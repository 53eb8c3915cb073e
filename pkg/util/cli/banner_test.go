package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGradientBanner_PlainWriter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, GradientBanner("flame\ntrace", &buf))
	assert.Equal(t, "flame\ntrace\n", buf.String())
	assert.False(t, IsTerminal(&buf))
}

func TestGradient(t *testing.T) {
	assert.Equal(t, uint8(0xff), gradient(startColor, endColor, 16, 0))
	assert.Equal(t, uint8(0xf6), gradient(startColor, endColor, 16, 1))
}
