package auth_test

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/glorpus-work/wheelhouse/pkg/auth"
	"github.com/glorpus-work/wheelhouse/pkg/errutils"
)

func TestBasicAuth(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		expected string
	}{
		{
			name:     "valid credentials",
			username: "user",
			password: "pass",
			expected: "Basic dXNlcjpwYXNz", // base64("user:pass")
		},
		{
			name:     "empty credentials",
			username: "",
			password: "",
			expected: "Basic Og==", // base64(":")
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
			basicAuth := auth.BasicAuth{Username: tt.username, Password: tt.password}

			require.NoError(t, basicAuth.Apply(req))
			assert.Equal(t, tt.expected, req.Header.Get("Authorization"))

			got, ok := auth.FromRequest(req)
			require.True(t, ok)
			assert.Equal(t, basicAuth, got)
		})
	}

	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	_, ok := auth.FromRequest(req)
	assert.False(t, ok)
}

func TestParseRole(t *testing.T) {
	r, err := auth.ParseRole("admin")
	require.NoError(t, err)
	assert.True(t, r.IsAdmin())

	r, err = auth.ParseRole("user")
	require.NoError(t, err)
	assert.False(t, r.IsAdmin())

	_, err = auth.ParseRole("root")
	assert.ErrorIs(t, err, errutils.ErrInvalidRole)
}

func newStore(t *testing.T) *auth.FileStore {
	t.Helper()
	s, err := auth.NewFileStore(filepath.Join(t.TempDir(), "conf", "users.yaml"))
	require.NoError(t, err)
	s.Cost = bcrypt.MinCost
	return s
}

func TestFileStore_Authenticate(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Add("alice", "s3cret", auth.RoleAdmin))
	require.NoError(t, s.Add("bob", "hunter2", auth.DefaultRole))

	role, err := s.Authenticate(ctx, "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, role)

	role, err = s.Authenticate(ctx, "bob", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleUser, role)

	_, err = s.Authenticate(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, errutils.ErrInvalidCredentials)

	_, err = s.Authenticate(ctx, "mallory", "s3cret")
	assert.ErrorIs(t, err, errutils.ErrInvalidCredentials)
}

func TestFileStore_Persistence(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Add("alice", "s3cret", auth.RoleAdmin))

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "username: alice")
	assert.Contains(t, string(data), "role: admin")
	assert.NotContains(t, string(data), "s3cret")

	reopened, err := auth.NewFileStore(s.Path())
	require.NoError(t, err)
	role, err := reopened.Authenticate(context.Background(), "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, role)
}

func TestFileStore_SeesExternalChanges(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Add("alice", "s3cret", auth.RoleAdmin))

	// A second store on the same file, as the CLI would open while a server runs.
	other, err := auth.NewFileStore(s.Path())
	require.NoError(t, err)
	other.Cost = bcrypt.MinCost
	require.NoError(t, other.Add("carol", "pw", auth.RoleUser))

	users, err := s.List()
	require.NoError(t, err)
	require.Len(t, users, 2)

	require.NoError(t, s.Remove("carol"))
	_, err = other.Authenticate(context.Background(), "carol", "pw")
	assert.ErrorIs(t, err, errutils.ErrInvalidCredentials)
}

func TestFileStore_Management(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Add("alice", "s3cret", auth.RoleUser))

	assert.ErrorIs(t, s.Add("alice", "again", auth.RoleUser), errutils.ErrUserExists)
	assert.ErrorIs(t, s.Add("", "pw", auth.RoleUser), errutils.ErrValidation)
	assert.ErrorIs(t, s.Add("dave", "pw", "root"), errutils.ErrInvalidRole)

	require.NoError(t, s.SetRole("alice", auth.RoleAdmin))
	role, err := s.Authenticate(ctx, "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, role)

	require.NoError(t, s.SetPassword("alice", "n3w"))
	_, err = s.Authenticate(ctx, "alice", "s3cret")
	assert.ErrorIs(t, err, errutils.ErrInvalidCredentials)
	_, err = s.Authenticate(ctx, "alice", "n3w")
	assert.NoError(t, err)

	assert.ErrorIs(t, s.SetRole("ghost", auth.RoleUser), errutils.ErrUserNotFound)
	assert.ErrorIs(t, s.SetPassword("ghost", "pw"), errutils.ErrUserNotFound)
	assert.ErrorIs(t, s.Remove("ghost"), errutils.ErrUserNotFound)

	require.NoError(t, s.Add("bob", "pw", auth.RoleUser))
	users, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []auth.User{{Username: "alice", Role: auth.RoleAdmin}, {Username: "bob", Role: auth.RoleUser}}, users)

	require.NoError(t, s.Remove("bob"))
	users, err = s.List()
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestNewFileStore_Errors(t *testing.T) {
	_, err := auth.NewFileStore("")
	assert.ErrorIs(t, err, errutils.ErrInvalidPath)

	bad := filepath.Join(t.TempDir(), "users.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("users: [\n"), 0o600))
	_, err = auth.NewFileStore(bad)
	assert.Error(t, err)
}
