package secretutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerifyRoundTrip(t *testing.T) {
	payload := []byte(`{"event":"form.submitted"}`)
	header := SignatureHeader(payload, "top-secret")
	assert.True(t, Verify(payload, header, "top-secret"))
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	payload := []byte(`{"event":"form.submitted"}`)
	header := SignatureHeader(payload, "top-secret")
	assert.False(t, Verify(payload, header, "wrong-secret"))
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	payload := []byte(`{"event":"form.submitted"}`)
	header := SignatureHeader(payload, "top-secret")
	assert.False(t, Verify([]byte(`{"event":"form.deleted"}`), header, "top-secret"))
}

func TestVerifyNeverPanicsOnMalformedHeader(t *testing.T) {
	tests := []string{"", "not-a-signature", "sha256=", "sha256=zz", "md5=abcd"}
	for _, h := range tests {
		t.Run(h, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.False(t, Verify([]byte("x"), h, "secret"))
			})
		})
	}
}

func TestGenerateSecretFormat(t *testing.T) {
	s, err := GenerateSecret()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s, secretPrefix))
	assert.Greater(t, len(s), len(secretPrefix)+32)

	other, err := GenerateSecret()
	require.NoError(t, err)
	assert.NotEqual(t, s, other)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	masterKey := []byte("0123456789abcdef0123456789abcdef")
	subject := []byte("webhook-123")

	ciphertext, err := Encrypt(masterKey, subject, "webhook-secret", []byte("whsec_abc123"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ciphertext, envelopeVersionPrefix))

	plaintext, err := Decrypt(masterKey, subject, "webhook-secret", ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "whsec_abc123", string(plaintext))
}

func TestDecryptFailsOnWrongSubject(t *testing.T) {
	masterKey := []byte("0123456789abcdef0123456789abcdef")
	ciphertext, err := Encrypt(masterKey, []byte("webhook-123"), "webhook-secret", []byte("whsec_abc123"))
	require.NoError(t, err)

	_, err = Decrypt(masterKey, []byte("webhook-456"), "webhook-secret", ciphertext)
	assert.Error(t, err)
}

func TestEncryptEmptyPlaintextIsEmptyCiphertext(t *testing.T) {
	masterKey := []byte("0123456789abcdef0123456789abcdef")
	ciphertext, err := Encrypt(masterKey, []byte("subject"), "info", nil)
	require.NoError(t, err)
	assert.Empty(t, ciphertext)

	plaintext, err := Decrypt(masterKey, []byte("subject"), "info", "")
	require.NoError(t, err)
	assert.Empty(t, plaintext)
}

func TestEncryptRequiresMasterKey(t *testing.T) {
	_, err := Encrypt(nil, []byte("subject"), "info", []byte("secret"))
	assert.Error(t, err)
}
