package secret

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRef(t *testing.T) {
	t.Run("env reference", func(t *testing.T) {
		ref, err := ParseRef("${env:BRIDGED_ENCRYPTION_KEY}")
		require.NoError(t, err)
		assert.Equal(t, "env", ref.Type)
		assert.Equal(t, "BRIDGED_ENCRYPTION_KEY", ref.Name)
	})

	t.Run("keyring reference", func(t *testing.T) {
		ref, err := ParseRef("${keyring:encryption-key}")
		require.NoError(t, err)
		assert.Equal(t, "keyring", ref.Type)
		assert.Equal(t, "encryption-key", ref.Name)
	})

	t.Run("plain value is not a reference", func(t *testing.T) {
		assert.False(t, IsRef("just-a-plain-key"))
		_, err := ParseRef("just-a-plain-key")
		assert.Error(t, err)
	})
}

func TestResolveString(t *testing.T) {
	resolver := NewResolver()
	ctx := context.Background()

	t.Run("plain value passes through", func(t *testing.T) {
		value, err := resolver.ResolveString(ctx, "literal-key-material")
		require.NoError(t, err)
		assert.Equal(t, "literal-key-material", value)
	})

	t.Run("env reference resolves", func(t *testing.T) {
		t.Setenv("BRIDGED_TEST_SECRET", "from-env")
		value, err := resolver.ResolveString(ctx, "${env:BRIDGED_TEST_SECRET}")
		require.NoError(t, err)
		assert.Equal(t, "from-env", value)
	})

	t.Run("missing env variable errors", func(t *testing.T) {
		_, err := resolver.ResolveString(ctx, "${env:BRIDGED_DOES_NOT_EXIST}")
		assert.Error(t, err)
	})

	t.Run("unknown provider errors", func(t *testing.T) {
		_, err := resolver.ResolveString(ctx, "${op:some-item}")
		assert.Error(t, err)
	})
}

func TestMaskValue(t *testing.T) {
	assert.Equal(t, "***", MaskValue("short"))
	assert.Equal(t, "n8n***s_!!", MaskValue("n8n_bridge_secure_key_32_chars_!!"))
}
