// Package securestore implements session.Store on the local filesystem with
// encryption at rest.
//
// Each key lives in its own file sealed with XChaCha20-Poly1305. The sealing
// key is derived from a caller-supplied passphrase (typically a device-bound
// secret) with Argon2id over a random per-directory salt. The store key is
// bound to the ciphertext as associated data so files cannot be swapped
// between keys.
package securestore

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ggoodman/moviecatalog-go/session"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	saltFile    = "salt"
	saltSize    = 16
	fileVersion = 1
)

// KDFParams are the Argon2id cost parameters.
type KDFParams struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

// DefaultKDFParams follow the RFC 9106 second recommended option.
var DefaultKDFParams = KDFParams{Time: 3, Memory: 64 * 1024, Threads: 4}

// Store is an encrypted, file-backed session.Store.
type Store struct {
	dir  string
	aead cipher.AEAD
	log  *slog.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

var _ session.Store = (*Store)(nil)

// Option customizes a Store.
type Option func(*options)

type options struct {
	kdf KDFParams
	log *slog.Logger
}

// WithKDFParams overrides the Argon2id cost parameters.
func WithKDFParams(p KDFParams) Option {
	return func(o *options) { o.kdf = p }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// Open prepares dir (creating it with 0700 if needed) and derives the sealing
// key from passphrase. Opening the same directory with a different
// passphrase succeeds, but every Get then fails with a *session.StorageError.
func Open(dir string, passphrase []byte, opts ...Option) (*Store, error) {
	if len(passphrase) == 0 {
		return nil, errors.New("securestore: passphrase is required")
	}
	o := options{kdf: DefaultKDFParams, log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("securestore: create dir: %w", err)
	}
	salt, err := loadSalt(dir)
	if err != nil {
		return nil, err
	}
	key := argon2.IDKey(passphrase, salt, o.kdf.Time, o.kdf.Memory, o.kdf.Threads, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("securestore: init cipher: %w", err)
	}

	return &Store{
		dir:   dir,
		aead:  aead,
		log:   o.log,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

func loadSalt(dir string) ([]byte, error) {
	p := filepath.Join(dir, saltFile)
	salt, err := os.ReadFile(p)
	if err == nil {
		if len(salt) != saltSize {
			return nil, fmt.Errorf("securestore: salt file has %d bytes, want %d", len(salt), saltSize)
		}
		return salt, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("securestore: read salt: %w", err)
	}
	salt = make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("securestore: generate salt: %w", err)
	}
	if err := writeAtomic(dir, p, salt); err != nil {
		return nil, fmt.Errorf("securestore: write salt: %w", err)
	}
	return salt, nil
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	unlock := s.lock(key)
	defer unlock()

	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &session.StorageError{Op: "get", Key: key, Err: err}
	}
	plain, err := s.open(key, data)
	if err != nil {
		return "", false, &session.StorageError{Op: "get", Key: key, Err: err}
	}
	return string(plain), true, nil
}

// Set replaces the value stored under key. The write is atomic: readers see
// either the old or the new value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	unlock := s.lock(key)
	defer unlock()

	sealed, err := s.seal(key, []byte(value))
	if err != nil {
		return &session.StorageError{Op: "set", Key: key, Err: err}
	}
	if err := writeAtomic(s.dir, s.path(key), sealed); err != nil {
		return &session.StorageError{Op: "set", Key: key, Err: err}
	}
	return nil
}

// Delete removes key. Removing a missing key succeeds.
func (s *Store) Delete(ctx context.Context, key string) error {
	unlock := s.lock(key)
	defer unlock()

	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &session.StorageError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

// path maps a key to its file. Keys are hashed so arbitrary key strings are
// safe as file names and do not leak into directory listings.
func (s *Store) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:16])+".bin")
}

func (s *Store) lock(key string) func() {
	s.locksMu.Lock()
	mu, ok := s.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[key] = mu
	}
	s.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

func (s *Store) seal(key string, plain []byte) ([]byte, error) {
	ns := s.aead.NonceSize()
	out := make([]byte, 1+ns, 1+ns+len(plain)+s.aead.Overhead())
	out[0] = fileVersion
	nonce := out[1 : 1+ns]
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return s.aead.Seal(out, nonce, plain, []byte(key)), nil
}

func (s *Store) open(key string, data []byte) ([]byte, error) {
	ns := s.aead.NonceSize()
	if len(data) < 1+ns+s.aead.Overhead() {
		return nil, errors.New("sealed value is truncated")
	}
	if data[0] != fileVersion {
		return nil, fmt.Errorf("unsupported sealed value version %d", data[0])
	}
	nonce, ciphertext := data[1:1+ns], data[1+ns:]
	plain, err := s.aead.Open(nil, nonce, ciphertext, []byte(key))
	if err != nil {
		return nil, errors.New("sealed value failed authentication")
	}
	return plain, nil
}

func writeAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
