package crypto

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "wss://eth-mainnet.example.org/v3/abc123def456"
	testPassword = "correct horse battery staple"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptSecret(testSecret, testPassword)
	require.NoError(t, err)

	var stored encryptedSecretJSON
	require.NoError(t, json.Unmarshal(blob, &stored))
	assert.Equal(t, 1, stored.Version)
	assert.NotEmpty(t, stored.Salt)
	assert.NotEmpty(t, stored.Nonce)
	assert.NotEmpty(t, stored.Ciphertext)

	got, err := DecryptSecret(blob, testPassword)
	require.NoError(t, err)
	assert.Equal(t, testSecret, got)
}

func TestEncryptSecretRandomizesSalt(t *testing.T) {
	a, err := EncryptSecret(testSecret, testPassword)
	require.NoError(t, err)
	b, err := EncryptSecret(testSecret, testPassword)
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "two encryptions of the same secret must differ")
}

func TestEncryptSecretValidation(t *testing.T) {
	_, err := EncryptSecret("", testPassword)
	assert.ErrorContains(t, err, "secret must not be empty")

	_, err = EncryptSecret(testSecret, "")
	assert.ErrorContains(t, err, "password must not be empty")
}

func TestDecryptSecretWrongPassword(t *testing.T) {
	blob, err := EncryptSecret(testSecret, testPassword)
	require.NoError(t, err)

	_, err = DecryptSecret(blob, "not the password")
	assert.ErrorContains(t, err, "decryption failed")
}

func TestDecryptSecretTamperedCiphertext(t *testing.T) {
	blob, err := EncryptSecret(testSecret, testPassword)
	require.NoError(t, err)

	var stored encryptedSecretJSON
	require.NoError(t, json.Unmarshal(blob, &stored))

	ct, err := base64.StdEncoding.DecodeString(stored.Ciphertext)
	require.NoError(t, err)
	ct[0] ^= 0xff
	stored.Ciphertext = base64.StdEncoding.EncodeToString(ct)

	tampered, err := json.Marshal(stored)
	require.NoError(t, err)

	_, err = DecryptSecret(tampered, testPassword)
	assert.ErrorContains(t, err, "decryption failed")
}

func TestDecryptSecretUnsupportedVersion(t *testing.T) {
	blob := []byte(`{"version":9,"salt":"","nonce":"","ciphertext":""}`)

	_, err := DecryptSecret(blob, testPassword)
	assert.ErrorContains(t, err, "unsupported version 9")
}

func TestLoadSecretRawWins(t *testing.T) {
	// EncryptedPath points nowhere; a raw value must short-circuit before
	// any file access.
	got, err := LoadSecret(SecretConfig{
		Raw:           "https://rpc.example.org",
		EncryptedPath: "/does/not/exist.json",
		Password:      "ignored",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://rpc.example.org", got)
}

func TestLoadSecretFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rpc.enc.json")
	require.NoError(t, WriteSecretFile(path, testSecret, testPassword))

	got, err := LoadSecret(SecretConfig{
		EncryptedPath: path,
		Password:      testPassword,
	})
	require.NoError(t, err)
	assert.Equal(t, testSecret, got)
}

func TestLoadSecretMissingFile(t *testing.T) {
	_, err := LoadSecret(SecretConfig{
		EncryptedPath: filepath.Join(t.TempDir(), "nope.json"),
		Password:      testPassword,
	})
	assert.ErrorContains(t, err, "reading encrypted secret file")
}

func TestLoadSecretNoSource(t *testing.T) {
	_, err := LoadSecret(SecretConfig{})
	assert.ErrorContains(t, err, "no secret source configured")
}

func TestWriteSecretFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.enc.json")
	require.NoError(t, WriteSecretFile(path, "tg-bot-token", testPassword))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
