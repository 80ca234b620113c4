package core

import (
	"context"
	"fmt"
	"strings"
)

// SecretTokenCodec encrypts token strings through a SecretProvider. It is the
// only place tokens cross the plaintext boundary.
type SecretTokenCodec struct {
	Provider SecretProvider
}

func NewSecretTokenCodec(provider SecretProvider) SecretTokenCodec {
	return SecretTokenCodec{Provider: provider}
}

func (c SecretTokenCodec) Encrypt(ctx context.Context, plaintext string) (string, error) {
	if c.Provider == nil {
		return "", NewCodecError(nil, "token codec has no secret provider")
	}
	if plaintext == "" {
		return "", NewCodecError(nil, "token plaintext is empty")
	}
	ciphertext, err := c.Provider.Encrypt(ctx, []byte(plaintext))
	if err != nil {
		return "", NewCodecError(err, "encrypt token")
	}
	return string(ciphertext), nil
}

func (c SecretTokenCodec) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	if c.Provider == nil {
		return "", NewCodecError(nil, "token codec has no secret provider")
	}
	if strings.TrimSpace(ciphertext) == "" {
		return "", NewCodecError(nil, "token ciphertext is empty")
	}
	plaintext, err := c.Provider.Decrypt(ctx, []byte(ciphertext))
	if err != nil {
		return "", NewCodecError(err, "decrypt token")
	}
	if len(plaintext) == 0 {
		return "", NewCodecError(fmt.Errorf("core: decrypted token is empty"), "decrypt token")
	}
	return string(plaintext), nil
}

// ActiveKeyID reports the key new ciphertext is sealed with, when the
// provider exposes one.
func (c SecretTokenCodec) ActiveKeyID() string {
	if source, ok := c.Provider.(interface{ ActiveKeyID() string }); ok {
		return source.ActiveKeyID()
	}
	return ""
}

// EncryptRecordTokens returns a copy of record with both tokens encrypted.
// Store implementations share it so they apply the codec the same way.
func EncryptRecordTokens(ctx context.Context, codec TokenCodec, record ConnectionRecord) (ConnectionRecord, error) {
	if codec == nil {
		return ConnectionRecord{}, NewCodecError(nil, "token codec is not configured")
	}
	out := cloneConnectionRecord(record)
	var err error
	if out.AccessToken, err = codec.Encrypt(ctx, record.AccessToken); err != nil {
		return ConnectionRecord{}, err
	}
	if out.RefreshToken, err = codec.Encrypt(ctx, record.RefreshToken); err != nil {
		return ConnectionRecord{}, err
	}
	return out, nil
}

func DecryptRecordTokens(ctx context.Context, codec TokenCodec, record ConnectionRecord) (ConnectionRecord, error) {
	if codec == nil {
		return ConnectionRecord{}, NewCodecError(nil, "token codec is not configured")
	}
	out := cloneConnectionRecord(record)
	var err error
	if out.AccessToken, err = codec.Decrypt(ctx, record.AccessToken); err != nil {
		return ConnectionRecord{}, err
	}
	if out.RefreshToken, err = codec.Decrypt(ctx, record.RefreshToken); err != nil {
		return ConnectionRecord{}, err
	}
	return out, nil
}

var _ TokenCodec = SecretTokenCodec{}
