package security

import (
	"context"
	"strings"
	"testing"
)

func TestAppKeySecretProvider_RoundTrip(t *testing.T) {
	ctx := context.Background()
	provider, err := NewAppKeySecretProviderFromString("0123456789abcdef0123456789abcdef", WithKeyID("primary"), WithVersion(2))
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	ciphertext, err := provider.Encrypt(ctx, []byte("refresh-token-value"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if strings.Contains(string(ciphertext), "refresh-token-value") {
		t.Fatalf("ciphertext leaked plaintext")
	}
	if !strings.HasPrefix(string(ciphertext), envelopePrefix) {
		t.Fatalf("expected envelope prefix, got %q", ciphertext)
	}

	meta, err := ParseEnvelopeMetadata(ciphertext)
	if err != nil {
		t.Fatalf("parse metadata: %v", err)
	}
	if meta.KeyID != "primary" || meta.Version != 2 {
		t.Fatalf("unexpected metadata %+v", meta)
	}

	plaintext, err := provider.Decrypt(ctx, ciphertext)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(plaintext) != "refresh-token-value" {
		t.Fatalf("unexpected plaintext %q", plaintext)
	}
}

func TestAppKeySecretProvider_NonceIsRandom(t *testing.T) {
	ctx := context.Background()
	provider, err := NewAppKeySecretProviderFromString("short-key")
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	first, err := provider.Encrypt(ctx, []byte("same"))
	if err != nil {
		t.Fatalf("encrypt first: %v", err)
	}
	second, err := provider.Encrypt(ctx, []byte("same"))
	if err != nil {
		t.Fatalf("encrypt second: %v", err)
	}
	if string(first) == string(second) {
		t.Fatalf("expected distinct ciphertexts for repeated plaintext")
	}
}

func TestAppKeySecretProvider_RejectsWrongKey(t *testing.T) {
	ctx := context.Background()
	writer, err := NewAppKeySecretProviderFromString("key-one")
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	reader, err := NewAppKeySecretProviderFromString("key-two")
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	ciphertext, err := writer.Encrypt(ctx, []byte("secret"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := reader.Decrypt(ctx, ciphertext); err == nil {
		t.Fatalf("expected decrypt with a different key to fail")
	}
}

func TestAppKeySecretProvider_RejectsRelabelledEnvelope(t *testing.T) {
	ctx := context.Background()
	v1, err := NewAppKeySecretProviderFromString("shared", WithVersion(1))
	if err != nil {
		t.Fatalf("new v1: %v", err)
	}
	v2, err := NewAppKeySecretProviderFromString("shared", WithVersion(2))
	if err != nil {
		t.Fatalf("new v2: %v", err)
	}
	ciphertext, err := v1.Encrypt(ctx, []byte("secret"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	relabelled := strings.Replace(string(ciphertext), `"ver":1`, `"ver":2`, 1)
	if _, err := v2.Decrypt(ctx, []byte(relabelled)); err == nil {
		t.Fatalf("expected relabelled envelope to fail authentication")
	}
}

func TestAppKeySecretProvider_RejectsEmptyInput(t *testing.T) {
	if _, err := NewAppKeySecretProvider(nil); err == nil {
		t.Fatalf("expected empty key material to fail")
	}
	provider, err := NewAppKeySecretProviderFromString("key")
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if _, err := provider.Encrypt(context.Background(), nil); err == nil {
		t.Fatalf("expected empty plaintext to fail")
	}
	if _, err := provider.Decrypt(context.Background(), []byte("plain-text")); err == nil {
		t.Fatalf("expected missing envelope prefix to fail")
	}
}
