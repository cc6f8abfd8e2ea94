package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFallbackStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(t.TempDir())
	// Force the encrypted-file path so tests never touch a real keyring
	s.useKeyring = false
	return s
}

func TestSetGetRoundTrip(t *testing.T) {
	s := newFallbackStore(t)

	require.NoError(t, s.Set("SRC", "hunter2"))

	got, err := s.Get("SRC")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got)
}

func TestGetMissing(t *testing.T) {
	s := newFallbackStore(t)

	_, err := s.Get("NOPE")
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	s := newFallbackStore(t)

	require.NoError(t, s.Set("SRC", "hunter2"))
	require.NoError(t, s.Delete("SRC"))

	_, err := s.Get("SRC")
	assert.Error(t, err)
}

func TestEncryptionIsNotPlaintext(t *testing.T) {
	s := newFallbackStore(t)
	require.NoError(t, s.ensureMasterKey())

	ciphertext, err := s.encrypt("secret-value")
	require.NoError(t, err)
	assert.NotContains(t, ciphertext, "secret-value")

	plaintext, err := s.decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "secret-value", plaintext)
}

func TestMasterKeyIsStable(t *testing.T) {
	dir := t.TempDir()

	s1 := NewStore(dir)
	s1.useKeyring = false
	require.NoError(t, s1.Set("SRC", "hunter2"))

	// A fresh store over the same directory must decrypt existing secrets
	s2 := NewStore(dir)
	s2.useKeyring = false
	got, err := s2.Get("SRC")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got)
}
