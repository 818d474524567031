package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/glorpus-work/wheelhouse/internal/logger"
	"github.com/glorpus-work/wheelhouse/pkg/auth"
	"github.com/glorpus-work/wheelhouse/pkg/config"
	"github.com/glorpus-work/wheelhouse/pkg/errutils"
	"github.com/glorpus-work/wheelhouse/pkg/server"
	"github.com/glorpus-work/wheelhouse/test/testutil"
)

func TestMain(m *testing.M) {
	logger.SetTestOutput(io.Discard)
	lookupEnv = func(string) (string, bool) { return "", false }
	os.Exit(m.Run())
}

type workspace struct {
	dir      string
	config   string
	store    string
	hooksDir string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	dir := t.TempDir()
	w := &workspace{
		dir:      dir,
		config:   filepath.Join(dir, "config.yaml"),
		store:    filepath.Join(dir, "store"),
		hooksDir: filepath.Join(dir, "hooks"),
	}
	require.NoError(t, os.MkdirAll(w.store, 0o755))
	cfg := fmt.Sprintf(`store:
  transport: local
  root: %s
  index_tool: builtin
  hooks_dir: %s
server:
  users_file: %s
`, w.store, w.hooksDir, filepath.Join(dir, "users.yaml"))
	require.NoError(t, os.WriteFile(w.config, []byte(cfg), 0o600))
	return w
}

func (w *workspace) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", w.config, "--env-file", filepath.Join(w.dir, "none.env")}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (w *workspace) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := w.run(t, "", args...)
	require.NoError(t, err, out)
	return out
}

func TestPackageLifecycle(t *testing.T) {
	w := newWorkspace(t)
	dist := t.TempDir()
	foo := testutil.BuildWheel(t, dist, testutil.WheelOptions{Name: "foo", Version: "1.2.0"})
	bar := testutil.BuildWheel(t, dist, testutil.WheelOptions{Name: "bar", Version: "1.0.0", Requires: []string{"foo>=1.0"}})
	qux := testutil.BuildWheel(t, dist, testutil.WheelOptions{Name: "qux", Version: "1.0.0", Requires: []string{"baz>=1.0"}})

	out := w.mustRun(t, "list")
	assert.Contains(t, out, "No packages stored")

	out, err := w.run(t, "", "check", bar)
	require.Error(t, err)
	assert.Equal(t, ExitDependencyUnsatisfied, ExitCode(err))
	assert.Contains(t, out, "foo (required foo>=1.0, package absent)")

	out = w.mustRun(t, "upload", foo, bar)
	assert.Contains(t, out, "Package foo-1.2.0-py3-none-any.whl uploaded and indexed!")
	assert.Contains(t, out, "Package bar-1.0.0-py3-none-any.whl uploaded and indexed!")

	out, err = w.run(t, "", "upload", qux)
	require.Error(t, err)
	assert.Equal(t, ExitDependencyUnsatisfied, ExitCode(err))
	assert.Contains(t, out, "baz (required baz>=1.0, package absent)")
	assert.NoFileExists(t, filepath.Join(w.store, filepath.Base(qux)))

	out = w.mustRun(t, "check", bar)
	assert.Contains(t, out, "All dependencies satisfied")
	assert.Contains(t, out, "foo>=1.0")

	out = w.mustRun(t, "list")
	assert.Contains(t, out, "foo-1.2.0-py3-none-any.whl")
	assert.Contains(t, out, "bar-1.0.0-py3-none-any.whl")

	out = w.mustRun(t, "--output", "json", "search", "FOO")
	var found []string
	require.NoError(t, json.Unmarshal([]byte(out), &found), out)
	assert.Equal(t, []string{"foo-1.2.0-py3-none-any.whl"}, found)

	out = w.mustRun(t, "search", "nothing-like-this")
	assert.Contains(t, out, "No packages found")

	out = w.mustRun(t, "delete", "foo")
	assert.Contains(t, out, "removed foo-1.2.0-py3-none-any.whl")
	assert.Contains(t, out, "Package foo deleted!")
	assert.NoFileExists(t, filepath.Join(w.store, "foo-1.2.0-py3-none-any.whl"))
	assert.FileExists(t, filepath.Join(w.store, "bar-1.0.0-py3-none-any.whl"))

	out = w.mustRun(t, "delete", "foo")
	assert.Contains(t, out, "Package foo deleted!")

	out = w.mustRun(t, "reindex")
	assert.Contains(t, out, "Index rebuilt")

	out = w.mustRun(t, "--verbose", "delete", "bar")
	assert.Contains(t, out, "removed: ")
	assert.Contains(t, out, "indexed: ")
}

func TestUpload_RenameAndValidation(t *testing.T) {
	w := newWorkspace(t)
	dist := t.TempDir()
	foo := testutil.BuildWheelAs(t, dist, "upload.bin", testutil.WheelOptions{Name: "foo", Version: "1.0"})

	out, err := w.run(t, "", "upload", foo)
	require.Error(t, err)
	assert.Equal(t, ExitInvalidArtifact, ExitCode(err))

	out = w.mustRun(t, "upload", "--name", "foo-1.0-py3-none-any.whl", foo)
	assert.Contains(t, out, "uploaded and indexed")
	assert.FileExists(t, filepath.Join(w.store, "foo-1.0-py3-none-any.whl"))

	_, err = w.run(t, "", "upload", "--name", "x-1.0.whl", foo, foo)
	assert.ErrorIs(t, err, errutils.ErrValidation)
}

func TestUpload_VetoedByHook(t *testing.T) {
	w := newWorkspace(t)
	require.NoError(t, os.MkdirAll(w.hooksDir, 0o755))
	script := `err := ""
if packageName == "blocked" {
	err = "package " + packageName + " is not allowed"
}
`
	require.NoError(t, os.WriteFile(filepath.Join(w.hooksDir, "pre-upload.tengo"), []byte(script), 0o644))

	dist := t.TempDir()
	blocked := testutil.BuildWheel(t, dist, testutil.WheelOptions{Name: "blocked", Version: "1.0"})
	allowed := testutil.BuildWheel(t, dist, testutil.WheelOptions{Name: "allowed", Version: "1.0"})

	_, err := w.run(t, "", "upload", blocked)
	require.Error(t, err)
	assert.Equal(t, ExitInvalidArtifact, ExitCode(err))
	assert.Contains(t, err.Error(), "is not allowed")
	assert.NoFileExists(t, filepath.Join(w.store, filepath.Base(blocked)))

	w.mustRun(t, "upload", allowed)
	assert.FileExists(t, filepath.Join(w.store, filepath.Base(allowed)))

	out := w.mustRun(t, "hook", "list")
	assert.Contains(t, out, "pre-upload")
}

func TestUserCommands(t *testing.T) {
	w := newWorkspace(t)
	usersFile := filepath.Join(w.dir, "users.yaml")

	w.mustRun(t, "user", "add", "admin", "--password", "adminpw", "--role", "admin")
	_, err := w.run(t, "bobpw\n", "user", "add", "bob", "--password-stdin")
	require.NoError(t, err)

	out := w.mustRun(t, "user", "list")
	assert.Contains(t, out, "admin")
	assert.Contains(t, out, "bob")

	store, err := auth.NewFileStore(usersFile)
	require.NoError(t, err)
	role, err := store.Authenticate(context.Background(), "bob", "bobpw")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleUser, role)

	w.mustRun(t, "user", "role", "bob", "admin")
	_, err = w.run(t, "newpw\n", "user", "passwd", "bob", "--password-stdin")
	require.NoError(t, err)

	role, err = store.Authenticate(context.Background(), "bob", "newpw")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, role)

	w.mustRun(t, "user", "remove", "bob")
	_, err = w.run(t, "", "user", "remove", "bob")
	assert.ErrorIs(t, err, errutils.ErrUserNotFound)

	_, err = w.run(t, "", "user", "add", "admin", "--password", "x")
	assert.ErrorIs(t, err, errutils.ErrUserExists)

	_, err = w.run(t, "", "user", "add", "carol")
	assert.ErrorIs(t, err, errutils.ErrValidation)

	_, err = w.run(t, "", "user", "role", "admin", "root")
	assert.ErrorIs(t, err, errutils.ErrInvalidRole)
}

func TestConfigCommands(t *testing.T) {
	w := newWorkspace(t)

	out := w.mustRun(t, "config", "get", "store.root")
	assert.Equal(t, w.store, strings.TrimSpace(out))

	out = w.mustRun(t, "config", "show")
	assert.Contains(t, out, "store.index_tool")
	assert.Contains(t, out, "builtin")

	_, err := w.run(t, "", "config", "init")
	assert.ErrorIs(t, err, errutils.ErrConfigFileExists)

	w.mustRun(t, "config", "init", "--force")
	out = w.mustRun(t, "config", "get", "store.index_tool")
	assert.Equal(t, "dir2pi", strings.TrimSpace(out))

	_, err = w.run(t, "", "config", "get", "store.nope")
	assert.ErrorIs(t, err, errutils.ErrUnknownConfigKey)
}

func TestHookCommands(t *testing.T) {
	w := newWorkspace(t)

	out := w.mustRun(t, "hook", "template", "pre-delete")
	assert.Contains(t, out, "err")

	_, err := w.run(t, "", "hook", "template", "on-install")
	assert.Error(t, err)

	w.mustRun(t, "hook", "init", "post-upload")
	assert.FileExists(t, filepath.Join(w.hooksDir, "post-upload.tengo"))

	_, err = w.run(t, "", "hook", "init", "post-upload")
	assert.ErrorIs(t, err, errutils.ErrAlreadyExists)

	out = w.mustRun(t, "--output", "json", "hook", "list")
	assert.JSONEq(t, `["post-upload"]`, out)
}

func TestVersion(t *testing.T) {
	w := newWorkspace(t)
	out := w.mustRun(t, "version")
	assert.Contains(t, out, "wheelhouse version "+Version)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{errors.New("boom"), ExitFailure},
		{errutils.NewInvalidArtifactError("bad name", nil), ExitInvalidArtifact},
		{errutils.NewMetadataError("x.whl", errutils.ErrMetadataNotFound), ExitInvalidArtifact},
		{fmt.Errorf("failed to upload: %w", errutils.NewDependencyError([]string{"a"})), ExitDependencyUnsatisfied},
		{errutils.NewIndexRebuildError("rebuild-index", "dir2pi failed", nil), ExitIndexStale},
		{errutils.NewTransportError("place", "disk full", nil), ExitTransport},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ExitCode(tt.err), fmt.Sprint(tt.err))
	}
}

func TestRemoteCommands(t *testing.T) {
	w := newWorkspace(t)
	usersFile := filepath.Join(w.dir, "users.yaml")
	users, err := auth.NewFileStore(usersFile)
	require.NoError(t, err)
	users.Cost = bcrypt.MinCost
	require.NoError(t, users.Add("admin", "adminpw", auth.RoleAdmin))
	require.NoError(t, users.Add("bob", "bobpw", auth.RoleUser))

	cfg, err := config.Load(w.config, lookupEnv)
	require.NoError(t, err)
	eng, err := newEngine(cfg)
	require.NoError(t, err)
	s := server.New(cfg.Server, server.Deps{Packages: eng.sync, Catalog: eng.catalog, Auth: users, Users: users})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	dist := t.TempDir()
	foo := testutil.BuildWheel(t, dist, testutil.WheelOptions{Name: "foo", Version: "2.0"})
	qux := testutil.BuildWheel(t, dist, testutil.WheelOptions{Name: "qux", Version: "1.0", Requires: []string{"baz>=1.0"}})

	admin := []string{"remote", "--url", ts.URL, "--user", "admin", "--password", "adminpw"}
	remote := func(args ...string) []string { return append(append([]string{}, admin...), args...) }

	out := w.mustRun(t, remote("login")...)
	assert.Contains(t, out, "Logged in with role admin")

	out = w.mustRun(t, remote("upload", foo)...)
	assert.Contains(t, out, "Package foo-2.0-py3-none-any.whl uploaded and indexed!")
	assert.FileExists(t, filepath.Join(w.store, "foo-2.0-py3-none-any.whl"))

	out, err = w.run(t, "", remote("upload", qux)...)
	require.Error(t, err)
	assert.Equal(t, ExitDependencyUnsatisfied, ExitCode(err))
	assert.Contains(t, out, "baz (required baz>=1.0, package absent)")

	out = w.mustRun(t, "remote", "--url", ts.URL, "list")
	assert.Contains(t, out, "foo-2.0-py3-none-any.whl")

	out = w.mustRun(t, "remote", "--url", ts.URL, "search", "FOO")
	assert.Contains(t, out, "foo-2.0-py3-none-any.whl")

	_, err = w.run(t, "", "remote", "--url", ts.URL, "--user", "bob", "--password", "bobpw", "delete", "foo")
	assert.ErrorIs(t, err, errutils.ErrForbidden)

	_, err = w.run(t, "", "remote", "--url", ts.URL, "--user", "admin", "--password", "wrong", "reindex")
	assert.ErrorIs(t, err, errutils.ErrInvalidCredentials)

	out = w.mustRun(t, remote("delete", "foo")...)
	assert.Contains(t, out, "removed foo-2.0-py3-none-any.whl")
	assert.NoFileExists(t, filepath.Join(w.store, "foo-2.0-py3-none-any.whl"))

	out = w.mustRun(t, remote("reindex")...)
	assert.Contains(t, out, "Index rebuilt")

	_, err = w.run(t, "", "remote", "list")
	assert.ErrorIs(t, err, errutils.ErrServerURLEmpty)
}
