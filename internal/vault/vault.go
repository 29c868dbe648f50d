// Package vault stores the bot's secrets encrypted at rest.
package vault

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/edouard/botwire/internal/platform"
)

// Well-known entry names.
const (
	KeyBotToken      = "bot_token"
	KeyWebhookSecret = "webhook_secret"
)

// Sentinel errors.
var (
	ErrKeyNotFound     = errors.New("vault: key not found")
	ErrDecrypt         = errors.New("vault: decryption failed")
	ErrWrongPassphrase = errors.New("vault: wrong passphrase")
	ErrInvalidBotToken = errors.New("vault: malformed bot token")
	ErrUnsupportedFile = errors.New("vault: unsupported file version")
)

var (
	botTokenPattern      = regexp.MustCompile(`^[0-9]{1,20}:[A-Za-z0-9_-]{30,}$`)
	webhookSecretPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,256}$`)
	checkPlaintext       = []byte("botwire")
)

const (
	fileVersion = 1
	// checkEntry is the additional data of the passphrase check value.
	checkEntry = ""
)

// vaultFilePerm is the file permission for vault files (owner read/write only).
const vaultFilePerm = 0600

// Replaceable for testing error paths.
var (
	atomicWrite       = platform.AtomicWrite
	jsonMarshalIndent = func(v any, prefix, indent string) ([]byte, error) { return json.MarshalIndent(v, prefix, indent) }
)

// vaultFile is the on-disk JSON representation of the vault. Check is a
// known value sealed with the key, used to reject a wrong passphrase before
// any entry is touched.
type vaultFile struct {
	Version int               `json:"version"`
	Salt    string            `json:"salt"`
	Check   string            `json:"check"`
	Entries map[string]string `json:"entries"`
}

// Vault holds encrypted secrets in memory and persists them to disk.
// It is safe for concurrent use.
type Vault struct {
	mu      sync.RWMutex
	s       *sealer
	path    string
	salt    []byte
	check   []byte
	entries map[string][]byte
}

// Create writes a new empty vault protected by passphrase.
func Create(passphrase, path string) (*Vault, error) {
	salt, err := GenerateSalt()
	if err != nil {
		return nil, err
	}
	s, err := newSealer(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("vault: create: %w", err)
	}
	v := &Vault{
		s:       s,
		path:    path,
		salt:    salt,
		check:   s.seal(checkEntry, checkPlaintext),
		entries: make(map[string][]byte),
	}
	if err := v.save(); err != nil {
		return nil, fmt.Errorf("vault: create: %w", err)
	}
	log.Info().Str("component", "vault").Str("operation", "create").Str("path", path).Msg("vault created")
	return v, nil
}

// Open unlocks an existing vault. A wrong passphrase yields ErrWrongPassphrase.
func Open(passphrase, path string) (*Vault, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vault: open: %w", err)
	}
	var f vaultFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("vault: open: unmarshal: %w", err)
	}
	if f.Version != fileVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFile, f.Version)
	}
	salt, err := base64.StdEncoding.DecodeString(f.Salt)
	if err != nil {
		return nil, fmt.Errorf("vault: open: decode salt: %w", err)
	}
	check, err := base64.StdEncoding.DecodeString(f.Check)
	if err != nil {
		return nil, fmt.Errorf("vault: open: decode check: %w", err)
	}

	s, err := newSealer(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("vault: open: %w", err)
	}
	if _, err := s.open(checkEntry, check); err != nil {
		return nil, ErrWrongPassphrase
	}

	v := &Vault{s: s, path: path, salt: salt, check: check, entries: make(map[string][]byte, len(f.Entries))}
	for k, encoded := range f.Entries {
		ct, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("vault: open: decode entry %q: %w", k, err)
		}
		v.entries[k] = ct
	}
	log.Info().Str("component", "vault").Str("operation", "open").Str("path", path).Int("entries", len(v.entries)).Msg("vault loaded")
	return v, nil
}

// OpenOrCreate opens the vault at path, creating it when the file does not exist.
func OpenOrCreate(passphrase, path string) (*Vault, error) {
	v, err := Open(passphrase, path)
	if errors.Is(err, os.ErrNotExist) {
		return Create(passphrase, path)
	}
	return v, err
}

// Get decrypts and returns the value for the given key.
func (v *Vault) Get(key string) (string, error) {
	v.mu.RLock()
	ciphertext, ok := v.entries[key]
	v.mu.RUnlock()
	if !ok {
		return "", ErrKeyNotFound
	}
	plaintext, err := v.s.open(key, ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecrypt, err)
	}
	return string(plaintext), nil
}

// Set validates and encrypts value under key, then saves atomically.
// Bot tokens and webhook secrets are checked against the formats the Bot
// API accepts.
func (v *Vault) Set(key, value string) error {
	if err := validate(key, value); err != nil {
		return err
	}
	ciphertext := v.s.seal(key, []byte(value))

	v.mu.Lock()
	defer v.mu.Unlock()
	prev, existed := v.entries[key]
	v.entries[key] = ciphertext
	if err := v.save(); err != nil {
		if existed {
			v.entries[key] = prev
		} else {
			delete(v.entries, key)
		}
		return fmt.Errorf("vault: set: %w", err)
	}
	log.Info().Str("component", "vault").Str("operation", "set").Str("key", key).Msg("secret stored")
	return nil
}

// Delete removes the key from the vault and saves atomically.
func (v *Vault) Delete(key string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	ciphertext, ok := v.entries[key]
	if !ok {
		return ErrKeyNotFound
	}
	delete(v.entries, key)
	if err := v.save(); err != nil {
		v.entries[key] = ciphertext
		return fmt.Errorf("vault: delete: %w", err)
	}
	log.Info().Str("component", "vault").Str("operation", "delete").Str("key", key).Msg("secret deleted")
	return nil
}

// List returns sorted key names from the vault. No decryption is performed.
func (v *Vault) List() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	keys := make([]string, 0, len(v.entries))
	for k := range v.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Secret resolves a secret from the environment variable env when set,
// otherwise from v. v may be nil.
func Secret(v *Vault, key, env string) (string, error) {
	if val, ok := os.LookupEnv(env); ok && val != "" {
		return val, nil
	}
	if v == nil {
		return "", fmt.Errorf("%w: %s (set %s or store it in the vault)", ErrKeyNotFound, key, env)
	}
	return v.Get(key)
}

// ValidateBotToken reports whether token looks like "123456:ABC-DEF...".
func ValidateBotToken(token string) error {
	if !botTokenPattern.MatchString(token) {
		return ErrInvalidBotToken
	}
	return nil
}

func validate(key, value string) error {
	switch key {
	case checkEntry:
		return errors.New("vault: empty key name")
	case KeyBotToken:
		return ValidateBotToken(value)
	case KeyWebhookSecret:
		if !webhookSecretPattern.MatchString(value) {
			return fmt.Errorf("vault: %s must be 1-256 characters of A-Z, a-z, 0-9, _ and -", key)
		}
	}
	return nil
}

// save serializes the vault to JSON and writes it atomically. Callers hold mu.
func (v *Vault) save() error {
	f := vaultFile{
		Version: fileVersion,
		Salt:    base64.StdEncoding.EncodeToString(v.salt),
		Check:   base64.StdEncoding.EncodeToString(v.check),
		Entries: make(map[string]string, len(v.entries)),
	}
	for k, ct := range v.entries {
		f.Entries[k] = base64.StdEncoding.EncodeToString(ct)
	}
	data, err := jsonMarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("vault: save: marshal: %w", err)
	}
	return atomicWrite(v.path, data, vaultFilePerm)
}
