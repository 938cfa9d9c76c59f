package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": sub, "exp": exp.Unix()}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestSupplierOpaqueToken(t *testing.T) {
	s := NewSupplier("opaque-token", nil)

	token, ok := s.Credential(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "opaque-token", token)
}

func TestSupplierEmptyToken(t *testing.T) {
	s := NewSupplier("", nil)

	_, ok := s.Credential(context.Background())
	assert.False(t, ok)
}

func TestSupplierExpiredJWT(t *testing.T) {
	token := signedToken(t, "user-1", time.Now().Add(-time.Minute))
	s := NewSupplier(token, nil)

	_, ok := s.Credential(context.Background())
	assert.False(t, ok, "expired token should be reported as absent")
}

func TestSupplierValidJWT(t *testing.T) {
	token := signedToken(t, "user-1", time.Now().Add(time.Hour))
	s := NewSupplier(token, nil)

	got, ok := s.Credential(context.Background())
	assert.True(t, ok)
	assert.Equal(t, token, got)
	assert.Equal(t, "user-1", Subject(token))
}

func TestSupplierExpiresWithClock(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	s := NewSupplier(signedToken(t, "u", exp), nil)
	s.now = func() time.Time { return exp.Add(time.Second) }

	_, ok := s.Credential(context.Background())
	assert.False(t, ok)
}

func TestSupplierNotifications(t *testing.T) {
	s := NewSupplier("", nil)

	type event struct {
		token string
		ok    bool
	}
	var events []event
	unsubscribe := s.Subscribe(func(token string, ok bool) {
		events = append(events, event{token, ok})
	})

	s.SignIn("tok-1")
	s.SignIn("tok-1")
	s.SignOut()
	s.SignOut()
	unsubscribe()
	s.SignIn("tok-2")

	require.Len(t, events, 2)
	assert.Equal(t, event{"tok-1", true}, events[0])
	assert.Equal(t, event{"", false}, events[1])
}

func TestSupplierIdentityChangeSignsOutFirst(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	alice := signedToken(t, "alice", exp)
	s := NewSupplier(alice, nil)

	var oks []bool
	defer s.Subscribe(func(_ string, ok bool) { oks = append(oks, ok) })()

	s.SignIn(signedToken(t, "bob", exp))
	assert.Equal(t, []bool{false, true}, oks)
}

func TestSupplierSameSubjectRefresh(t *testing.T) {
	s := NewSupplier(signedToken(t, "alice", time.Now().Add(time.Hour)), nil)

	var oks []bool
	defer s.Subscribe(func(_ string, ok bool) { oks = append(oks, ok) })()

	s.SignIn(signedToken(t, "alice", time.Now().Add(2*time.Hour)))
	assert.Equal(t, []bool{true}, oks)
}

func TestExpiryNonJWT(t *testing.T) {
	_, err := Expiry("not-a-jwt")
	assert.ErrorIs(t, err, ErrNoExpiry)
}

func TestReadTokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("  abc \n"), 0o600))

	assert.Equal(t, "abc", ReadTokenFile(path))
	assert.Equal(t, "", ReadTokenFile(filepath.Join(t.TempDir(), "missing")))
	assert.Equal(t, "", ReadTokenFile(""))
}

func TestWriteAndRemoveTokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token")

	require.NoError(t, WriteTokenFile(path, " tok-1 "))
	assert.Equal(t, "tok-1", ReadTokenFile(path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, RemoveTokenFile(path))
	assert.Equal(t, "", ReadTokenFile(path))
	assert.NoError(t, RemoveTokenFile(path))
}

func TestDefaultTokenPathXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	assert.Equal(t, filepath.Join("/tmp/xdg", "aletheia", "token"), DefaultTokenPath())
}

func TestWatchFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	s := NewSupplier("", nil)

	changes := make(chan bool, 4)
	defer s.Subscribe(func(_ string, ok bool) { changes <- ok })()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.WatchFile(ctx, path, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("file-token"), 0o600))
	select {
	case ok := <-changes:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sign-in")
	}

	require.NoError(t, os.Remove(path))
	select {
	case ok := <-changes:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sign-out")
	}
}
