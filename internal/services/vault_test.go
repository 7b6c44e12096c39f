package services

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront_app/internal/models"
)

const testPassphrase = "test-passphrase-that-is-long-enough-1234"

func newTestVault(t *testing.T) *CredentialVault {
	t.Helper()
	cipher, err := NewCredentialCipher(testPassphrase)
	require.NoError(t, err)
	return NewCredentialVault(cipher)
}

func TestCredentialCipherRoundTrip(t *testing.T) {
	cipher, err := NewCredentialCipher(testPassphrase)
	require.NoError(t, err)

	sealed, err := cipher.Seal("secret_xyz")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, "v1:"))
	assert.NotContains(t, sealed, "secret_xyz")

	again, err := cipher.Seal("secret_xyz")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ per seal")

	opened, err := cipher.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "secret_xyz", opened)
}

func TestCredentialCipherRejects(t *testing.T) {
	cipher, err := NewCredentialCipher(testPassphrase)
	require.NoError(t, err)
	other, err := NewCredentialCipher("another-passphrase-that-is-long-enough")
	require.NoError(t, err)

	sealed, err := cipher.Seal("secret_xyz")
	require.NoError(t, err)

	_, err = cipher.Open("secret_xyz")
	assert.ErrorIs(t, err, ErrUntaggedCredential)

	_, err = cipher.Open("legacy:iv:ciphertext")
	assert.ErrorIs(t, err, ErrUntaggedCredential)

	_, err = other.Open(sealed)
	assert.ErrorIs(t, err, ErrCredentialDecrypt)

	_, err = cipher.Open("v1:!!!not-base64")
	assert.ErrorIs(t, err, ErrCredentialDecrypt)

	_, err = cipher.Open("v1:" + base64.RawStdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrCredentialDecrypt)

	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(sealed, "v1:"))
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	_, err = cipher.Open("v1:" + base64.RawStdEncoding.EncodeToString(raw))
	assert.ErrorIs(t, err, ErrCredentialDecrypt)
}

func TestNewCredentialCipherShortPassphrase(t *testing.T) {
	_, err := NewCredentialCipher("too-short")
	assert.Error(t, err)
}

func TestCredentialVaultStoreAndOpen(t *testing.T) {
	vault := newTestVault(t)
	tenant := &models.Tenant{}

	require.NoError(t, vault.Store(tenant, "rzp_test_abc", "secret_xyz"))
	creds, err := vault.Credentials(tenant)
	require.NoError(t, err)
	assert.Equal(t, "rzp_test_abc", creds.KeyID)
	assert.Equal(t, "secret_xyz", creds.KeySecret)

	// rotating the key id alone keeps the stored secret
	require.NoError(t, vault.Store(tenant, "rzp_live_def", ""))
	creds, err = vault.Credentials(tenant)
	require.NoError(t, err)
	assert.Equal(t, "rzp_live_def", creds.KeyID)
	assert.Equal(t, "secret_xyz", creds.KeySecret)
}

func TestCredentialVaultFailsClosed(t *testing.T) {
	vault := newTestVault(t)

	_, err := vault.Credentials(&models.Tenant{})
	assert.ErrorIs(t, err, ErrCredentialsNotConfigured)

	plainID, plainSecret := "rzp_test_abc", "secret_xyz"
	_, err = vault.Credentials(&models.Tenant{GatewayKeyID: &plainID, GatewayKeySecret: &plainSecret})
	assert.ErrorIs(t, err, ErrUntaggedCredential)

	assert.ErrorIs(t, vault.Store(&models.Tenant{}, "key_abc", "secret_xyz"), ErrInvalidKeyID)
	assert.ErrorIs(t, vault.Store(&models.Tenant{}, "rzp_test_abc", ""), ErrCredentialsNotConfigured)

	// sealed but with a foreign prefix, e.g. written by an older admin tool
	cipher, err := NewCredentialCipher(testPassphrase)
	require.NoError(t, err)
	badID, err := cipher.Seal("key_abc")
	require.NoError(t, err)
	secret, err := cipher.Seal("secret_xyz")
	require.NoError(t, err)
	_, err = vault.Credentials(&models.Tenant{GatewayKeyID: &badID, GatewayKeySecret: &secret})
	assert.ErrorIs(t, err, ErrInvalidKeyID)
}
