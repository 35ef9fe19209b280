package vault

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const testKey = "n8n_bridge_secure_key_32_chars_!!"

func TestNew(t *testing.T) {
	t.Run("valid key", func(t *testing.T) {
		v, err := New(testKey)
		require.NoError(t, err)
		require.NotNil(t, v)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := New("")
		assert.ErrorIs(t, err, ErrMissingKey)
	})

	t.Run("short key", func(t *testing.T) {
		_, err := New("too-short")
		assert.ErrorIs(t, err, ErrKeyTooShort)
	})

	t.Run("long key is truncated", func(t *testing.T) {
		v1, err := New(testKey)
		require.NoError(t, err)
		v2, err := New(testKey + "extra-material-beyond-32-bytes")
		require.NoError(t, err)

		record, err := v1.Encrypt("secret")
		require.NoError(t, err)
		assert.Equal(t, "secret", v2.Decrypt(record))
	})
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v, err := New(testKey)
	require.NoError(t, err)

	rapid.Check(t, func(t *rapid.T) {
		plaintext := rapid.String().Draw(t, "plaintext")

		record, err := v.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("encrypt failed: %v", err)
		}
		if got := v.Decrypt(record); got != plaintext {
			t.Fatalf("round trip mismatch: %q != %q", got, plaintext)
		}
	})
}

func TestEncryptRecordFormat(t *testing.T) {
	v, err := New(testKey)
	require.NoError(t, err)

	record, err := v.Encrypt("n8n-api-key-value")
	require.NoError(t, err)

	parts := strings.Split(record, ":")
	require.Len(t, parts, 2)
	assert.Len(t, parts[0], 32) // 16-byte IV, hex encoded
	assert.Regexp(t, "^[0-9a-f]+$", parts[0])
	assert.Regexp(t, "^[0-9a-f]+$", parts[1])
}

func TestEncryptUsesFreshIV(t *testing.T) {
	v, err := New(testKey)
	require.NoError(t, err)

	first, err := v.Encrypt("same-plaintext")
	require.NoError(t, err)
	second, err := v.Encrypt("same-plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, "same-plaintext", v.Decrypt(first))
	assert.Equal(t, "same-plaintext", v.Decrypt(second))
}

func TestDecryptNeverFails(t *testing.T) {
	v, err := New(testKey)
	require.NoError(t, err)

	cases := []struct {
		name   string
		record string
	}{
		{"empty", ""},
		{"no delimiter", "deadbeef"},
		{"too many parts", "aa:bb:cc"},
		{"bad iv hex", "zz:deadbeef"},
		{"short iv", "dead:beefbeefbeefbeefbeefbeefbeefbeef"},
		{"bad ciphertext hex", strings.Repeat("ab", 16) + ":not-hex"},
		{"ciphertext not block aligned", strings.Repeat("ab", 16) + ":abcdef"},
		{"garbage blocks", strings.Repeat("ab", 16) + ":" + strings.Repeat("cd", 16)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, MaskedSecret, v.Decrypt(tc.record))
		})
	}
}

func TestDecryptForeignKey(t *testing.T) {
	v1, err := New(testKey)
	require.NoError(t, err)
	v2, err := New("a_completely_different_32b_key!!!")
	require.NoError(t, err)

	record, err := v1.Encrypt("secret-api-key")
	require.NoError(t, err)

	// Wrong key must mask, not leak or panic. A foreign key can, with
	// roughly 1/256 probability, produce bytes that happen to unpad
	// cleanly; in that case the output is garbage but still not the
	// original plaintext.
	got := v2.Decrypt(record)
	assert.NotEqual(t, "secret-api-key", got)
}
