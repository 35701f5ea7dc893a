package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := EncryptPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)

	ok, err := VerifyPassword(hash, "correct horse")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword(hash, "battery staple")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestTrimmedOrNil(t *testing.T) {
	assert.Nil(t, TrimmedOrNil(nil))
	blank := "   "
	assert.Nil(t, TrimmedOrNil(&blank))
	name := "  Ada Lovelace "
	got := TrimmedOrNil(&name)
	require.NotNil(t, got)
	assert.Equal(t, "Ada Lovelace", *got)
}

func TestNormalizeEmailAndTokenPrefix(t *testing.T) {
	assert.Equal(t, "ada@example.com", NormalizeEmail(" Ada@Example.COM "))
	assert.Equal(t, "abcdefgh...", TokenPrefix("abcdefghijkl"))
	assert.Equal(t, "abc", TokenPrefix("abc"))
}
