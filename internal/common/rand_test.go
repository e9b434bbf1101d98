package common

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeRandHexString(t *testing.T) {
	s, err := MakeRandHexString(16)
	require.NoError(t, err)
	assert.Len(t, s, 32)
	_, err = hex.DecodeString(s)
	assert.NoError(t, err)

	s2, err := MakeRandHexString(16)
	require.NoError(t, err)
	assert.NotEqual(t, s, s2)
}

func TestWipeByteArray(t *testing.T) {
	b := []byte{1, 2, 3}
	WipeByteArray(b)
	assert.Equal(t, []byte{0, 0, 0}, b)

	assert.NotPanics(t, func() { WipeByteArray(nil) })
}
