package security

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-quickbooks/core"
)

// Keyring encrypts with the active key and decrypts with whichever known
// key sealed the envelope. Retired keys stay readable until every stored
// token has been rewritten by a refresh.
type Keyring struct {
	active  *AppKeySecretProvider
	retired map[string]*AppKeySecretProvider
}

func NewKeyring(active *AppKeySecretProvider, retired ...*AppKeySecretProvider) (*Keyring, error) {
	if active == nil {
		return nil, fmt.Errorf("security: active key is required")
	}
	ring := &Keyring{
		active:  active,
		retired: map[string]*AppKeySecretProvider{},
	}
	for _, provider := range retired {
		if provider == nil {
			continue
		}
		id := keyringID(provider.KeyID(), provider.Version())
		if id == keyringID(active.KeyID(), active.Version()) {
			return nil, fmt.Errorf("security: retired key %q collides with the active key", id)
		}
		ring.retired[id] = provider
	}
	return ring, nil
}

// ParseKeyring builds a keyring from "kid:version:secret" specs. A bare
// secret becomes key "app-key" version 1.
func ParseKeyring(active string, retired []string) (*Keyring, error) {
	activeProvider, err := parseKeySpec(active)
	if err != nil {
		return nil, err
	}
	providers := make([]*AppKeySecretProvider, 0, len(retired))
	for _, spec := range retired {
		if strings.TrimSpace(spec) == "" {
			continue
		}
		provider, err := parseKeySpec(spec)
		if err != nil {
			return nil, err
		}
		providers = append(providers, provider)
	}
	return NewKeyring(activeProvider, providers...)
}

func parseKeySpec(spec string) (*AppKeySecretProvider, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("security: encryption key is required")
	}
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) < 3 {
		return NewAppKeySecretProviderFromString(spec)
	}
	version, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || version < 1 {
		return NewAppKeySecretProviderFromString(spec)
	}
	return NewAppKeySecretProviderFromString(parts[2], WithKeyID(parts[0]), WithVersion(version))
}

func (k *Keyring) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	if k == nil || k.active == nil {
		return nil, fmt.Errorf("security: keyring is not configured")
	}
	return k.active.Encrypt(ctx, plaintext)
}

func (k *Keyring) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if k == nil || k.active == nil {
		return nil, fmt.Errorf("security: keyring is not configured")
	}
	meta, err := ParseEnvelopeMetadata(ciphertext)
	if err != nil {
		return nil, err
	}
	id := keyringID(meta.KeyID, meta.Version)
	if id == keyringID(k.active.KeyID(), k.active.Version()) {
		return k.active.Decrypt(ctx, ciphertext)
	}
	if provider, ok := k.retired[id]; ok {
		return provider.Decrypt(ctx, ciphertext)
	}
	return nil, fmt.Errorf("security: unknown key %q", id)
}

// ActiveKeyID is stored next to each row so operators can see which rows
// still depend on a retired key.
func (k *Keyring) ActiveKeyID() string {
	if k == nil || k.active == nil {
		return ""
	}
	return keyringID(k.active.KeyID(), k.active.Version())
}

func keyringID(keyID string, version int) string {
	return strings.TrimSpace(keyID) + "@" + strconv.Itoa(version)
}

var _ core.SecretProvider = (*Keyring)(nil)
