package transport

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/glorpus-work/wheelhouse/pkg/config"
	"github.com/glorpus-work/wheelhouse/pkg/errutils"
	"github.com/glorpus-work/wheelhouse/test/testutil"
)

const testPassword = "secret"

// sshServer runs commands it receives through `sh -c` on this machine,
// standing in for the store host.
type sshServer struct {
	addr    string
	hostKey ssh.PublicKey
}

func startSSHServer(t *testing.T) *sshServer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(_ ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if string(pass) == testPassword {
				return nil, nil
			}
			return nil, errors.New("access denied")
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveConn(conn, cfg)
		}
	}()
	return &sshServer{addr: ln.Addr().String(), hostKey: signer.PublicKey()}
}

func serveConn(conn net.Conn, cfg *ssh.ServerConfig) {
	_, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		_ = conn.Close()
		return
	}
	go ssh.DiscardRequests(reqs)
	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		ch, requests, err := newCh.Accept()
		if err != nil {
			continue
		}
		go serveSession(ch, requests)
	}
}

func serveSession(ch ssh.Channel, requests <-chan *ssh.Request) {
	defer ch.Close()
	for req := range requests {
		if req.Type != "exec" {
			_ = req.Reply(false, nil)
			continue
		}
		var payload struct{ Command string }
		if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
			_ = req.Reply(false, nil)
			continue
		}
		_ = req.Reply(true, nil)
		go ssh.DiscardRequests(requests)

		cmd := exec.Command("sh", "-c", payload.Command)
		cmd.Stdin = ch
		cmd.Stdout = ch
		cmd.Stderr = ch.Stderr()
		var status uint32
		if err := cmd.Run(); err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				status = uint32(exitErr.ExitCode())
			} else {
				status = 255
			}
		}
		_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
		return
	}
}

func remoteConfig(t *testing.T, srv *sshServer, indexTool string) *config.Config {
	t.Helper()
	host, portStr, err := net.SplitHostPort(srv.addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	knownHosts := filepath.Join(t.TempDir(), "known_hosts")
	line := knownhosts.Line([]string{knownhosts.Normalize(srv.addr)}, srv.hostKey)
	require.NoError(t, os.WriteFile(knownHosts, []byte(line+"\n"), 0o600))

	cfg := config.DefaultConfig()
	cfg.Store.Transport = config.TransportRemote
	cfg.Store.Root = filepath.Join(t.TempDir(), "packages")
	cfg.Store.IndexTool = indexTool
	cfg.Store.CommandTimeout = 10 * time.Second
	cfg.Remote.Host = host
	cfg.Remote.Port = port
	cfg.Remote.User = "deploy"
	cfg.Remote.Password = testPassword
	cfg.Remote.KnownHostsFile = knownHosts
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestRemote_Lifecycle(t *testing.T) {
	srv := startSSHServer(t)
	tool := writeScript(t, `mkdir -p "$1/simple/foo" && cp "$1"/foo-*.whl "$1/simple/foo/" && touch "$1/simple/foo/index.html"`)
	cfg := remoteConfig(t, srv, tool)
	r, err := NewRemote(cfg)
	require.NoError(t, err)
	ctx := context.Background()

	src := testutil.WriteFile(t, t.TempDir(), "upload.bin", "remote wheel")
	require.NoError(t, r.Place(ctx, src, "foo-1.2.0.whl"))
	testutil.WriteFile(t, cfg.Store.Root, "foobar-1.0.whl", "x")

	data, err := os.ReadFile(filepath.Join(cfg.Store.Root, "foo-1.2.0.whl"))
	require.NoError(t, err)
	assert.Equal(t, "remote wheel", string(data))

	files, err := r.ListArtifacts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"foo-1.2.0.whl", "foobar-1.0.whl"}, files)

	require.NoError(t, r.RebuildIndex(ctx))

	names, err := r.ListNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"foo-1.2.0.whl"}, names)

	removed, err := r.Remove(ctx, "foo")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"foo-1.2.0.whl", "simple/foo"}, removed)
	assert.FileExists(t, filepath.Join(cfg.Store.Root, "foobar-1.0.whl"))

	names, err = r.ListNames(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	removed, err = r.Remove(ctx, "foo")
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestRemote_ListOnMissingStore(t *testing.T) {
	srv := startSSHServer(t)
	r, err := NewRemote(remoteConfig(t, srv, "dir2pi"))
	require.NoError(t, err)

	files, err := r.ListArtifacts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, files)

	names, err := r.ListNames(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestRemote_RebuildIndexFailure(t *testing.T) {
	srv := startSSHServer(t)
	tool := writeScript(t, `echo "dir2pi: permission denied" >&2; exit 1`)
	r, err := NewRemote(remoteConfig(t, srv, tool))
	require.NoError(t, err)

	err = r.RebuildIndex(context.Background())
	e, ok := errutils.AsError(err)
	require.True(t, ok)
	assert.Equal(t, errutils.KindIndexRebuild, e.Kind)
	assert.Equal(t, "dir2pi: permission denied", e.Message)
}

func TestRemote_RebuildIndexArguments(t *testing.T) {
	srv := startSSHServer(t)
	tool := writeScript(t, `test "$1" = "--quiet" && mkdir -p "$2/simple/foo"`) + " --quiet"
	cfg := remoteConfig(t, srv, tool)
	cfg.Store.Root = filepath.Join(t.TempDir(), "my packages")
	r, err := NewRemote(cfg)
	require.NoError(t, err)

	require.NoError(t, r.RebuildIndex(context.Background()))
	assert.DirExists(t, filepath.Join(cfg.Store.Root, "simple", "foo"))
}

func TestRemoteCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "plain",
			args: []string{"dir2pi", "/srv/packages"},
			want: "dir2pi /srv/packages",
		},
		{
			name: "root with space",
			args: []string{"/opt/venv/bin/dir2pi", "-S", "/srv/my packages"},
			want: "/opt/venv/bin/dir2pi -S '/srv/my packages'",
		},
		{
			name: "home program",
			args: []string{"~/venv/bin/dir2pi", "/srv/packages"},
			want: `"$HOME"/venv/bin/dir2pi /srv/packages`,
		},
		{
			name: "shell metacharacters",
			args: []string{"dir2pi;reboot", "/srv/packages"},
			want: "'dir2pi;reboot' /srv/packages",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, remoteCommand(tt.args))
		})
	}
}

func TestRemote_Timeout(t *testing.T) {
	srv := startSSHServer(t)
	cfg := remoteConfig(t, srv, writeScript(t, `exec sleep 2`))
	cfg.Store.CommandTimeout = 200 * time.Millisecond
	r, err := NewRemote(cfg)
	require.NoError(t, err)

	err = r.RebuildIndex(context.Background())
	e, ok := errutils.AsError(err)
	require.True(t, ok)
	assert.Equal(t, "timed out", e.Message)
}

func TestRemote_AuthFailures(t *testing.T) {
	srv := startSSHServer(t)

	tests := []struct {
		name   string
		mutate func(t *testing.T, cfg *config.Config)
	}{
		{
			name: "wrong password",
			mutate: func(_ *testing.T, cfg *config.Config) {
				cfg.Remote.Password = "wrong"
			},
		},
		{
			name: "unknown host key",
			mutate: func(t *testing.T, cfg *config.Config) {
				empty := filepath.Join(t.TempDir(), "known_hosts")
				require.NoError(t, os.WriteFile(empty, nil, 0o600))
				cfg.Remote.KnownHostsFile = empty
			},
		},
		{
			name: "missing key file",
			mutate: func(t *testing.T, cfg *config.Config) {
				cfg.Remote.KeyFile = filepath.Join(t.TempDir(), "id_ed25519")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := remoteConfig(t, srv, "dir2pi")
			tt.mutate(t, cfg)
			r, err := NewRemote(cfg)
			require.NoError(t, err)

			_, err = r.ListArtifacts(context.Background())
			require.Error(t, err)
			assert.Equal(t, errutils.KindTransport, errutils.KindOf(err))
		})
	}
}

func TestRemote_PlaceRejectsBadName(t *testing.T) {
	srv := startSSHServer(t)
	r, err := NewRemote(remoteConfig(t, srv, "dir2pi"))
	require.NoError(t, err)

	err = r.Place(context.Background(), "/dev/null", "../../etc/passwd-1.0.whl")
	assert.Equal(t, errutils.KindTransport, errutils.KindOf(err))
}

func TestParseNamesListing(t *testing.T) {
	out := "./foo\n./bar\n--\n./foo/index.html\n./foo/foo-1.0.whl\n./bar/index.html\n"
	assert.Equal(t, []string{"bar", "foo-1.0.whl"}, parseNamesListing(out))
	assert.Empty(t, parseNamesListing(""))
}
