package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestEncryptor_RoundTrip(t *testing.T) {
	enc, err := NewEncryptorFromHex(testKey)
	require.NoError(t, err)

	plain := []byte("wheelchair access, second floor")
	a, err := enc.Encrypt(plain)
	require.NoError(t, err)
	b, err := enc.Encrypt(plain)
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "nonces must differ")

	got, err := enc.Decrypt(a)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestEncryptor_RejectsTampering(t *testing.T) {
	enc, err := NewEncryptorFromHex(testKey)
	require.NoError(t, err)

	sealed, err := enc.Encrypt([]byte("notes"))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xff

	_, err = enc.Decrypt(sealed)
	assert.ErrorIs(t, err, ErrDecryption)

	_, err = enc.Decrypt([]byte("short"))
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestNewEncryptor_KeyValidation(t *testing.T) {
	_, err := NewEncryptor([]byte("too short"))
	assert.ErrorIs(t, err, ErrInvalidKeySize)

	_, err = NewEncryptorFromHex("zz" + strings.Repeat("0", 62))
	assert.Error(t, err)
}
