// Package secretutil implements the Signature & Secret Utilities of
// spec.md §4.B: constant-time HMAC-SHA256 signing/verification, webhook
// secret generation, and an authenticated envelope encrypt/decrypt facade.
// The envelope scheme is grounded on infrastructure/crypto/envelope.go's
// HMAC-derived-key AES-256-GCM construction, with the key derivation
// upgraded to HKDF per SPEC_FULL.md's domain-stack wiring.
package secretutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// Sign computes the lowercase hex HMAC-SHA256 of payload under secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether header (e.g. "sha256=<hex>", whitespace and case
// tolerated) is a valid HMAC-SHA256 signature of payload under secret. It
// never panics: any malformed header returns false (§4.B).
func Verify(payload []byte, header, secret string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	h := strings.ToLower(strings.TrimSpace(header))
	if !strings.HasPrefix(h, "sha256=") {
		return false
	}
	given, err := hex.DecodeString(strings.TrimPrefix(h, "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	want := mac.Sum(nil)
	if len(given) != len(want) {
		return false
	}
	return subtle.ConstantTimeCompare(given, want) == 1
}

// SignatureHeader formats a signature the way outbound deliveries and
// inbound verification both expect: "sha256=<hex>".
func SignatureHeader(payload []byte, secret string) string {
	return "sha256=" + Sign(payload, secret)
}

const secretPrefix = "whsec_"

// GenerateSecret returns a new webhook secret: "whsec_" + >=32 URL-safe
// base64 characters from a CSPRNG (§4.B).
func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return secretPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

const envelopeVersionPrefix = "v1:"

func deriveKey(masterKey, subject []byte, info string) ([]byte, error) {
	if len(masterKey) == 0 {
		return nil, fmt.Errorf("master key must not be empty")
	}
	key := make([]byte, 32)
	if _, err := hkdf.New(sha256.New, masterKey, subject, []byte(info)).Read(key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

func aad(subject []byte, info string) []byte {
	buf := make([]byte, 0, len(info)+1+len(subject))
	buf = append(buf, info...)
	buf = append(buf, 0)
	buf = append(buf, subject...)
	return buf
}

// Encrypt seals plaintext under a key derived from masterKey, subject
// (e.g. a webhook id, binding ciphertext to its owner) and info (a purpose
// string). Output is ASCII-safe: "v1:" + base64url(nonce || ciphertext).
func Encrypt(masterKey, subject []byte, info string, plaintext []byte) (string, error) {
	if len(plaintext) == 0 {
		return "", nil
	}
	key, err := deriveKey(masterKey, subject, info)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("new gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, plaintext, aad(subject, info))
	buf := append(nonce, sealed...)
	return envelopeVersionPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// Decrypt reverses Encrypt. Tampered ciphertext fails authentication and
// returns an error (§4.B round-trip law).
func Decrypt(masterKey, subject []byte, info string, ciphertext string) ([]byte, error) {
	if ciphertext == "" {
		return nil, nil
	}
	encoded := strings.TrimPrefix(strings.TrimSpace(ciphertext), envelopeVersionPrefix)
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	key, err := deriveKey(masterKey, subject, info)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	if len(raw) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, body := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, body, aad(subject, info))
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}
