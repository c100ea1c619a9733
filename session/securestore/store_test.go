package securestore

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/moviecatalog-go/session"
)

// Cheap parameters keep the tests fast; production uses DefaultKDFParams.
var testKDF = WithKDFParams(KDFParams{Time: 1, Memory: 8 * 1024, Threads: 1})

func openStore(t *testing.T, dir, pass string) *Store {
	t.Helper()
	s, err := Open(dir, []byte(pass), testKDF)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openStore(t, dir, "device-secret")

	if _, ok, err := s.Get(ctx, session.TokenKey); ok || err != nil {
		t.Fatalf("expected empty store, got ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, session.TokenKey, "tok"); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := s.Get(ctx, session.TokenKey)
	if err != nil || !ok || v != "tok" {
		t.Fatalf("get = %q, %v, %v", v, ok, err)
	}

	// A second handle with the same passphrase reads the same value.
	other := openStore(t, dir, "device-secret")
	if v, ok, _ := other.Get(ctx, session.TokenKey); !ok || v != "tok" {
		t.Fatalf("reopened store got %q, %v", v, ok)
	}

	if err := s.Delete(ctx, session.TokenKey); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, session.TokenKey); err != nil {
		t.Fatalf("delete of missing key: %v", err)
	}
	if _, ok, _ := s.Get(ctx, session.TokenKey); ok {
		t.Fatal("value survived delete")
	}
}

func TestStoreEncryptsAtRest(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openStore(t, dir, "device-secret")
	secret := "super-secret-bearer-token"
	if err := s.Set(ctx, session.TokenKey, secret); err != nil {
		t.Fatalf("set: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	for _, e := range entries {
		if bytes.Contains([]byte(e.Name()), []byte(session.TokenKey)) {
			t.Fatalf("key name leaked into file name %q", e.Name())
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if bytes.Contains(data, []byte(secret)) {
			t.Fatalf("plaintext found in %s", e.Name())
		}
		info, _ := e.Info()
		if perm := info.Mode().Perm(); perm&0o077 != 0 {
			t.Fatalf("%s has permissions %v", e.Name(), perm)
		}
	}
}

func TestStoreWrongPassphrase(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	if err := openStore(t, dir, "right").Set(ctx, session.TokenKey, "tok"); err != nil {
		t.Fatalf("set: %v", err)
	}

	_, ok, err := openStore(t, dir, "wrong").Get(ctx, session.TokenKey)
	var serr *session.StorageError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if ok {
		t.Fatal("wrong passphrase must not yield a value")
	}

	// The session manager maps the failure to a signed-out start.
	m := session.NewManager(openStore(t, dir, "wrong"), nil)
	if _, ok := m.Bootstrap(ctx).(session.Unauthenticated); !ok {
		t.Fatalf("state = %v, want unauthenticated", m.State())
	}
}

func TestStoreKeysAreBound(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openStore(t, dir, "pass")
	if err := s.Set(ctx, "a", "value-a"); err != nil {
		t.Fatalf("set: %v", err)
	}

	// Move a's ciphertext into b's slot: authentication must fail.
	data, err := os.ReadFile(s.path("a"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := os.WriteFile(s.path("b"), data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := s.Get(ctx, "b"); err == nil {
		t.Fatal("expected swapped ciphertext to be rejected")
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, t.TempDir(), "pass")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = s.Set(ctx, session.TokenKey, "tok")
			} else {
				_ = s.Delete(ctx, session.TokenKey)
			}
			if _, _, err := s.Get(ctx, session.TokenKey); err != nil {
				t.Errorf("get observed a torn write: %v", err)
			}
		}(i)
	}
	wg.Wait()
}

func TestOpenRequiresPassphrase(t *testing.T) {
	if _, err := Open(t.TempDir(), nil); err == nil {
		t.Fatal("expected error for empty passphrase")
	}
}

func TestWatchSeesExternalRemoval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := openStore(t, t.TempDir(), "pass")
	if err := s.Set(ctx, session.TokenKey, "tok"); err != nil {
		t.Fatalf("set: %v", err)
	}

	fired := make(chan struct{}, 8)
	if err := s.Watch(ctx, session.TokenKey, func(context.Context) {
		select {
		case fired <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Skipf("fsnotify unavailable: %v", err)
	}

	if err := os.Remove(s.path(session.TokenKey)); err != nil {
		t.Fatalf("remove: %v", err)
	}
	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("watch callback did not fire")
	}
}
