package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	enc, err := NewEncryptor(key)
	require.NoError(t, err)

	a, err := enc.Encrypt("0a1b2c3d4e5f60718293")
	require.NoError(t, err)
	b, err := enc.Encrypt("0a1b2c3d4e5f60718293")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "nonce must differ per call")

	plain, err := enc.Decrypt(a)
	require.NoError(t, err)
	assert.Equal(t, "0a1b2c3d4e5f60718293", plain)
}

func TestDecryptRejectsTampering(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	enc, err := NewEncryptor(key)
	require.NoError(t, err)

	sealed, err := enc.Encrypt("secret")
	require.NoError(t, err)

	last := sealed[len(sealed)-1:]
	flipped := "0"
	if last == "0" {
		flipped = "1"
	}
	_, err = enc.Decrypt(sealed[:len(sealed)-1] + flipped)
	assert.Error(t, err)

	_, err = enc.Decrypt("abcd")
	assert.ErrorIs(t, err, ErrCiphertextTooShort)

	_, err = enc.Decrypt("zz")
	assert.Error(t, err)
}

func TestNewEncryptorValidatesKey(t *testing.T) {
	_, err := NewEncryptor("not-hex")
	assert.Error(t, err)

	_, err = NewEncryptor(strings.Repeat("ab", 16))
	assert.Error(t, err)
}

func TestNewCipherWithoutKeyIsPlaintext(t *testing.T) {
	c, err := NewCipher("")
	require.NoError(t, err)

	sealed, err := c.Encrypt("abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", sealed)

	key, err := GenerateKey()
	require.NoError(t, err)
	c, err = NewCipher(key)
	require.NoError(t, err)
	assert.IsType(t, &Encryptor{}, c)
}
