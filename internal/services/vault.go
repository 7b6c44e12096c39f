package services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"storefront_app/internal/models"
)

// Sealed values are "v1:" + base64(nonce || ciphertext). Anything without the tag is rejected,
// there is no plaintext fallback.
const (
	credentialFormatV1 = "v1:"
	vaultKDFSalt       = "storefront-credential-vault"

	// GatewayKeyIDPrefix is the prefix every Razorpay key id carries
	GatewayKeyIDPrefix = "rzp_"
)

var (
	ErrCredentialsNotConfigured = errors.New("gateway credentials not configured")
	ErrUntaggedCredential       = errors.New("credential is not in a recognised sealed format")
	ErrCredentialDecrypt        = errors.New("credential could not be decrypted")
	ErrInvalidKeyID             = errors.New("gateway key id has an unrecognised prefix")
)

// CredentialCipher seals and opens credential strings with XChaCha20-Poly1305
type CredentialCipher struct {
	key []byte
}

// NewCredentialCipher derives the cipher key from a passphrase using HKDF-SHA256
func NewCredentialCipher(passphrase string) (*CredentialCipher, error) {
	if len(passphrase) < 32 {
		return nil, fmt.Errorf("encryption passphrase must be at least 32 characters")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(passphrase), []byte(vaultKDFSalt), []byte(credentialFormatV1))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return &CredentialCipher{key: key}, nil
}

// Seal encrypts plaintext into the tagged v1 format
func (c *CredentialCipher) Seal(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return credentialFormatV1 + base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a tagged value
func (c *CredentialCipher) Open(value string) (string, error) {
	if !strings.HasPrefix(value, credentialFormatV1) {
		return "", ErrUntaggedCredential
	}

	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(value, credentialFormatV1))
	if err != nil {
		return "", ErrCredentialDecrypt
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", ErrCredentialDecrypt
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrCredentialDecrypt
	}
	return string(plaintext), nil
}

// GatewayCredentials are a tenant's decrypted gateway keys
type GatewayCredentials struct {
	KeyID     string
	KeySecret string
}

// CredentialVault stores tenant gateway credentials sealed at rest
type CredentialVault struct {
	cipher *CredentialCipher
}

func NewCredentialVault(cipher *CredentialCipher) *CredentialVault {
	return &CredentialVault{cipher: cipher}
}

// Credentials opens a tenant's keys. Missing, untagged, undecryptable or malformed keys
// are all errors; callers must refuse to charge.
func (v *CredentialVault) Credentials(tenant *models.Tenant) (*GatewayCredentials, error) {
	if !tenant.HasGatewayCredentials() {
		return nil, ErrCredentialsNotConfigured
	}

	keyID, err := v.cipher.Open(*tenant.GatewayKeyID)
	if err != nil {
		return nil, fmt.Errorf("key id: %w", err)
	}
	keySecret, err := v.cipher.Open(*tenant.GatewayKeySecret)
	if err != nil {
		return nil, fmt.Errorf("key secret: %w", err)
	}

	if !strings.HasPrefix(keyID, GatewayKeyIDPrefix) {
		return nil, ErrInvalidKeyID
	}
	if keySecret == "" {
		return nil, ErrCredentialDecrypt
	}

	return &GatewayCredentials{KeyID: keyID, KeySecret: keySecret}, nil
}

// Store seals keyID and keySecret onto the tenant record. An empty keySecret keeps the sealed
// secret already stored.
func (v *CredentialVault) Store(tenant *models.Tenant, keyID, keySecret string) error {
	if !strings.HasPrefix(keyID, GatewayKeyIDPrefix) {
		return ErrInvalidKeyID
	}

	sealedID, err := v.cipher.Seal(keyID)
	if err != nil {
		return err
	}
	tenant.GatewayKeyID = &sealedID

	if keySecret != "" {
		sealedSecret, err := v.cipher.Seal(keySecret)
		if err != nil {
			return err
		}
		tenant.GatewayKeySecret = &sealedSecret
	}
	if tenant.GatewayKeySecret == nil || *tenant.GatewayKeySecret == "" {
		return ErrCredentialsNotConfigured
	}
	return nil
}
