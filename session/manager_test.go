package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// testStore is an in-memory Store whose operations can be made to fail or block.
type testStore struct {
	mu      sync.Mutex
	values  map[string]string
	getErr  error
	setErr  error
	delErr  error
	deletes int

	// When non-nil, Set signals setEntered and waits for releaseSet.
	setEntered chan struct{}
	releaseSet chan struct{}
}

func newTestStore() *testStore {
	return &testStore{values: make(map[string]string)}
}

func (s *testStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return "", false, s.getErr
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *testStore) Set(ctx context.Context, key, value string) error {
	if s.setEntered != nil {
		s.setEntered <- struct{}{}
		<-s.releaseSet
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.values[key] = value
	return nil
}

func (s *testStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	if s.delErr != nil {
		return s.delErr
	}
	delete(s.values, key)
	return nil
}

func (s *testStore) value(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

type countingCache struct {
	clears atomic.Int32
	err    error
}

func (c *countingCache) Clear(context.Context) error {
	c.clears.Add(1)
	return c.err
}

func TestSignInSignOutRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	cache := &countingCache{}
	m := NewManager(store, cache)
	m.Bootstrap(ctx)

	if err := m.SignIn(ctx, "tok"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if v, ok := store.value(TokenKey); !ok || v != "tok" {
		t.Fatalf("store holds %q (present=%v), want tok", v, ok)
	}
	if s, ok := m.State().(Authenticated); !ok || s.Token != "tok" {
		t.Fatalf("state = %v, want authenticated", m.State())
	}
	if tok, ok := m.Token(); !ok || tok != "tok" {
		t.Fatalf("token = %q, %v", tok, ok)
	}

	m.SignOut(ctx)
	if _, ok := store.value(TokenKey); ok {
		t.Fatal("token still stored after sign out")
	}
	if _, ok := m.State().(Unauthenticated); !ok {
		t.Fatalf("state = %v, want unauthenticated", m.State())
	}
	if n := cache.clears.Load(); n != 1 {
		t.Fatalf("cache cleared %d times, want 1", n)
	}
	if _, ok := m.Token(); ok {
		t.Fatal("token still available after sign out")
	}
}

func TestSignInReplacingSessionClearsCache(t *testing.T) {
	ctx := context.Background()
	cache := &countingCache{}
	m := NewManager(newTestStore(), cache)

	// Before Bootstrap the cache may hold entries left by another process.
	if err := m.SignIn(ctx, "tok-alice"); err != nil {
		t.Fatal(err)
	}
	if n := cache.clears.Load(); n != 1 {
		t.Fatalf("sign in while initializing cleared %d times, want 1", n)
	}

	if err := m.SignIn(ctx, "tok-bob"); err != nil {
		t.Fatal(err)
	}
	if n := cache.clears.Load(); n != 2 {
		t.Fatalf("sign in over a live session cleared %d times, want 2", n)
	}

	m.SignOut(ctx)
	if err := m.SignIn(ctx, "tok-carol"); err != nil {
		t.Fatal(err)
	}
	if n := cache.clears.Load(); n != 3 {
		t.Fatalf("sign in after sign out cleared %d times, want 3", n)
	}
}

func TestSignOutTwice(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newTestStore(), &countingCache{})
	m.Bootstrap(ctx)

	for i := 0; i < 2; i++ {
		m.SignOut(ctx)
		if _, ok := m.State().(Unauthenticated); !ok {
			t.Fatalf("sign out %d: state = %v", i, m.State())
		}
	}
}

func TestSignInEmptyToken(t *testing.T) {
	m := NewManager(newTestStore(), nil)
	if err := m.SignIn(context.Background(), ""); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("expected ErrEmptyToken, got %v", err)
	}
}

func TestSignInPersistenceFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	boom := errors.New("keychain locked")
	store.setErr = boom
	m := NewManager(store, nil)
	m.Bootstrap(ctx)

	err := m.SignIn(ctx, "tok")
	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatal("PersistenceError must wrap the store error")
	}
	if _, ok := m.State().(Unauthenticated); !ok {
		t.Fatalf("state = %v, want unauthenticated", m.State())
	}
	if _, ok := m.Token(); ok {
		t.Fatal("token exposed after failed sign in")
	}
}

func TestSignOutDeleteFailureStillSignsOut(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	cache := &countingCache{err: errors.New("cache unavailable")}
	m := NewManager(store, cache)
	m.Bootstrap(ctx)
	if err := m.SignIn(ctx, "tok"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	store.delErr = errors.New("disk full")
	m.SignOut(ctx)

	if _, ok := m.State().(Unauthenticated); !ok {
		t.Fatalf("state = %v, want unauthenticated", m.State())
	}
	if store.deletes != 1 {
		t.Fatalf("delete attempted %d times, want 1", store.deletes)
	}
	if cache.clears.Load() != 1 {
		t.Fatal("cache clear not attempted")
	}
}

func TestBootstrap(t *testing.T) {
	ctx := context.Background()

	t.Run("StoredToken", func(t *testing.T) {
		store := newTestStore()
		store.values[TokenKey] = "abc"
		m := NewManager(store, nil)
		if _, ok := m.State().(Initializing); !ok {
			t.Fatalf("initial state = %v", m.State())
		}
		if _, ok := m.Token(); ok {
			t.Fatal("no token may be attached while initializing")
		}
		s := m.Bootstrap(ctx)
		if a, ok := s.(Authenticated); !ok || a.Token != "abc" {
			t.Fatalf("state = %v, want authenticated", s)
		}
	})

	t.Run("EmptyStore", func(t *testing.T) {
		s := NewManager(newTestStore(), nil).Bootstrap(ctx)
		if _, ok := s.(Unauthenticated); !ok {
			t.Fatalf("state = %v, want unauthenticated", s)
		}
	})

	t.Run("StoreFailure", func(t *testing.T) {
		store := newTestStore()
		store.getErr = &StorageError{Op: "get", Key: TokenKey, Err: errors.New("corrupt")}
		s := NewManager(store, nil).Bootstrap(ctx)
		if _, ok := s.(Unauthenticated); !ok {
			t.Fatalf("state = %v, want unauthenticated", s)
		}
	})

	t.Run("ExpiredJWT", func(t *testing.T) {
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		store := newTestStore()
		store.values[TokenKey] = signedToken(t, now.Add(-time.Minute))
		m := NewManager(store, nil, WithClock(func() time.Time { return now }))
		if _, ok := m.Bootstrap(ctx).(Unauthenticated); !ok {
			t.Fatalf("state = %v, want unauthenticated", m.State())
		}
		if _, ok := store.value(TokenKey); ok {
			t.Fatal("expired token was not removed")
		}
	})

	t.Run("LiveJWT", func(t *testing.T) {
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		store := newTestStore()
		store.values[TokenKey] = signedToken(t, now.Add(time.Hour))
		m := NewManager(store, nil, WithClock(func() time.Time { return now }))
		if !IsAuthenticated(m.Bootstrap(ctx)) {
			t.Fatalf("state = %v, want authenticated", m.State())
		}
	})

	t.Run("RunsOnce", func(t *testing.T) {
		store := newTestStore()
		m := NewManager(store, nil)
		m.Bootstrap(ctx)
		store.values[TokenKey] = "late"
		if _, ok := m.Bootstrap(ctx).(Unauthenticated); !ok {
			t.Fatalf("second bootstrap changed state to %v", m.State())
		}
	})

	t.Run("AfterSignIn", func(t *testing.T) {
		m := NewManager(newTestStore(), nil)
		if err := m.SignIn(ctx, "early"); err != nil {
			t.Fatalf("sign in: %v", err)
		}
		if tok, _ := m.Token(); tok != "early" {
			t.Fatalf("token = %q", tok)
		}
		if a, ok := m.Bootstrap(ctx).(Authenticated); !ok || a.Token != "early" {
			t.Fatalf("bootstrap overrode sign in: %v", m.State())
		}
	})
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

// assertConsistent checks that memory and durable state agree.
func assertConsistent(t *testing.T, m *Manager, store *testStore) {
	t.Helper()
	stored, present := store.value(TokenKey)
	switch s := m.State().(type) {
	case Authenticated:
		if !present || stored != s.Token {
			t.Fatalf("authenticated with %q but store holds %q (present=%v)", s.Token, stored, present)
		}
	case Unauthenticated:
		if present {
			t.Fatalf("unauthenticated but store holds %q", stored)
		}
	default:
		t.Fatalf("unexpected state %v", s)
	}
}

func TestUnauthorizedDuringPendingSignIn(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	cache := &countingCache{}
	m := NewManager(store, cache)
	m.Bootstrap(ctx)

	store.setEntered = make(chan struct{})
	store.releaseSet = make(chan struct{})

	signedIn := make(chan error, 1)
	go func() { signedIn <- m.SignIn(ctx, "new-token") }()
	<-store.setEntered

	signedOut := make(chan struct{})
	go func() {
		_ = m.HandleUnauthorized(ctx)
		close(signedOut)
	}()

	// The sign out is queued behind the sign in and must not run yet.
	time.Sleep(20 * time.Millisecond)
	if cache.clears.Load() != 0 {
		t.Fatal("sign out ran while sign in was still in progress")
	}

	close(store.releaseSet)
	if err := <-signedIn; err != nil {
		t.Fatalf("sign in: %v", err)
	}
	<-signedOut

	if _, ok := m.State().(Unauthenticated); !ok {
		t.Fatalf("state = %v, want unauthenticated (sign out completed last)", m.State())
	}
	assertConsistent(t, m, store)
}

func TestConcurrentTransitionsStayConsistent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	m := NewManager(store, &countingCache{})
	m.Bootstrap(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = m.SignIn(ctx, "tok")
		}()
		go func() {
			defer wg.Done()
			m.SignOut(ctx)
		}()
	}
	wg.Wait()
	assertConsistent(t, m, store)
}

func TestEpochAdvancesOnTransitions(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newTestStore(), nil)
	e0 := m.Epoch()
	m.Bootstrap(ctx)
	e1 := m.Epoch()
	_ = m.SignIn(ctx, "tok")
	e2 := m.Epoch()
	m.SignOut(ctx)
	e3 := m.Epoch()
	if !(e0 < e1 && e1 < e2 && e2 < e3) {
		t.Fatalf("epochs not increasing: %d %d %d %d", e0, e1, e2, e3)
	}
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newTestStore(), nil)
	ch, cancel := m.Subscribe()
	defer cancel()

	m.Bootstrap(ctx)
	if s := <-ch; s.String() != "unauthenticated" {
		t.Fatalf("got %v", s)
	}

	_ = m.SignIn(ctx, "a")
	m.SignOut(ctx)
	// Only the latest state is kept for a slow reader.
	if s := <-ch; s.String() != "unauthenticated" {
		t.Fatalf("got %v, want latest state", s)
	}

	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after cancel")
	}
}

func TestRevalidate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	cache := &countingCache{}
	m := NewManager(store, cache)
	m.Bootstrap(ctx)
	_ = m.SignIn(ctx, "tok")

	if !IsAuthenticated(m.Revalidate(ctx)) {
		t.Fatal("revalidate signed out with the token still stored")
	}

	store.mu.Lock()
	delete(store.values, TokenKey)
	store.mu.Unlock()

	if _, ok := m.Revalidate(ctx).(Unauthenticated); !ok {
		t.Fatalf("state = %v, want unauthenticated", m.State())
	}
	if cache.clears.Load() != 1 {
		t.Fatalf("cache cleared %d times, want 1", cache.clears.Load())
	}
	if store.deletes != 0 {
		t.Fatal("revalidate must not write to the store")
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if _, ok, _ := s.Get(ctx, TokenKey); ok {
		t.Fatal("expected empty store")
	}
	_ = s.Set(ctx, TokenKey, "v")
	if v, ok, _ := s.Get(ctx, TokenKey); !ok || v != "v" {
		t.Fatalf("got %q, %v", v, ok)
	}
	if err := s.Delete(ctx, TokenKey); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, TokenKey); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}
