// Package secrets seals the device and web API tokens kept in larsen.toml.
//
// A sealed token is written as ENC[<base64 age ciphertext>] in the [env]
// table. The CLI opens it with the operator's age identity when the token is
// looked up, so PLUGIN_TOKEN and LARSEN_API_TOKEN never sit in the file in
// the clear.
package secrets

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"

	"github.com/larsen-farm/plugintools/internal/env"
)

const (
	// DefaultKeyFilename is the identity file under ~/.config/larsen.
	DefaultKeyFilename = "age.key"

	// EnvAgeKey holds a raw AGE-SECRET-KEY-1... string.
	EnvAgeKey = "LARSEN_AGE_KEY"

	// EnvAgeKeyFile holds a path to an age identity file.
	EnvAgeKeyFile = "LARSEN_AGE_KEY_FILE"
)

// ErrNoIdentity is returned when a sealed token is opened by an empty
// keyring.
var ErrNoIdentity = errors.New("no age identity configured")

// IsEncrypted reports whether value is a sealed token.
func IsEncrypted(value string) bool {
	_, ok := envelope(value)
	return ok
}

// envelope returns the base64 payload of ENC[...].
func envelope(value string) (string, bool) {
	inner, ok := strings.CutPrefix(value, "ENC[")
	if !ok {
		return "", false
	}
	inner, ok = strings.CutSuffix(inner, "]")
	return inner, ok && inner != ""
}

// Seal encrypts token for recipients.
func Seal(token string, recipients ...age.Recipient) (string, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipients...)
	if err != nil {
		return "", fmt.Errorf("create age encryptor: %w", err)
	}
	if _, err := io.WriteString(w, token); err != nil {
		return "", fmt.Errorf("write token: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize encryption: %w", err)
	}
	return "ENC[" + base64.StdEncoding.EncodeToString(buf.Bytes()) + "]", nil
}

// SealFor encrypts token for an age1... public key.
func SealFor(token, publicKey string) (string, error) {
	r, err := age.ParseX25519Recipient(strings.TrimSpace(publicKey))
	if err != nil {
		return "", fmt.Errorf("parse recipient: %w", err)
	}
	return Seal(token, r)
}

// NewKey generates an X25519 identity for sealing farm tokens.
func NewKey() (*age.X25519Identity, error) {
	return age.GenerateX25519Identity()
}

// Keyring holds the identities that open sealed tokens.
type Keyring struct {
	identities []age.Identity
}

// NewKeyring returns a keyring over identities.
func NewKeyring(identities ...age.Identity) *Keyring {
	return &Keyring{identities: identities}
}

// LoadKeyring finds the operator's identity, looking at LARSEN_AGE_KEY,
// then LARSEN_AGE_KEY_FILE, then keyFile (secrets.identity in larsen.toml),
// then ~/.config/larsen/age.key. No identity anywhere gives an empty
// keyring, not an error.
func LoadKeyring(src env.Source, keyFile string) (*Keyring, error) {
	if raw, ok := src.Lookup(EnvAgeKey); ok && raw != "" {
		id, err := age.ParseX25519Identity(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", EnvAgeKey, err)
		}
		return NewKeyring(id), nil
	}
	for _, path := range []string{lookup(src, EnvAgeKeyFile), keyFile} {
		if path != "" {
			return loadFile(expandHome(path))
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return NewKeyring(), nil
	}
	path := filepath.Join(home, ".config", "larsen", DefaultKeyFilename)
	if _, err := os.Stat(path); err != nil {
		return NewKeyring(), nil
	}
	return loadFile(path)
}

func lookup(src env.Source, key string) string {
	v, _ := src.Lookup(key)
	return v
}

func loadFile(path string) (*Keyring, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open identity file: %w", err)
	}
	defer f.Close()
	ids, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("parse identity file %s: %w", path, err)
	}
	return NewKeyring(ids...), nil
}

// Empty reports whether no identity is loaded.
func (k *Keyring) Empty() bool { return len(k.identities) == 0 }

// Recipient is the public key of the first X25519 identity, used to seal
// new tokens for the same operator.
func (k *Keyring) Recipient() (age.Recipient, error) {
	for _, id := range k.identities {
		if x, ok := id.(*age.X25519Identity); ok {
			return x.Recipient(), nil
		}
	}
	return nil, errors.New("keyring holds no X25519 identity")
}

// Open returns the plaintext of a sealed token. Values that are not sealed
// come back unchanged.
func (k *Keyring) Open(value string) (string, error) {
	payload, ok := envelope(value)
	if !ok {
		return value, nil
	}
	if k.Empty() {
		return "", ErrNoIdentity
	}
	ciphertext, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("decode base64: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(ciphertext), k.identities...)
	if err != nil {
		return "", fmt.Errorf("age decrypt: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read decrypted token: %w", err)
	}
	return string(plaintext), nil
}

// Source opens sealed values of an underlying env.Source on lookup.
type Source struct {
	src     env.Source
	keys    *Keyring
	onError func(key string, err error)
}

// Source wraps src. A value that cannot be opened is reported to onError,
// if set, and looks unset to the caller, so a client without the key sees
// no transport rather than a garbage token.
func (k *Keyring) Source(src env.Source, onError func(key string, err error)) *Source {
	return &Source{src: src, keys: k, onError: onError}
}

func (s *Source) Lookup(key string) (string, bool) {
	v, ok := s.src.Lookup(key)
	if !ok {
		return "", false
	}
	plaintext, err := s.keys.Open(v)
	if err != nil {
		if s.onError != nil {
			s.onError(key, err)
		}
		return "", false
	}
	return plaintext, true
}

func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~")
	if !ok {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}
