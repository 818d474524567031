package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alessio/shellescape"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/glorpus-work/wheelhouse/internal/logger"
	"github.com/glorpus-work/wheelhouse/pkg/config"
	"github.com/glorpus-work/wheelhouse/pkg/errutils"
	"github.com/glorpus-work/wheelhouse/pkg/fsutil"
	"github.com/glorpus-work/wheelhouse/pkg/model"
)

// Remote is the transport for a store on another host. Every call opens
// its own authenticated SSH connection and closes it when done.
type Remote struct {
	addr        string
	root        string
	simpleDir   string
	indexTool   string
	timeout     time.Duration
	dialTimeout time.Duration
	sshConfig   func() (*ssh.ClientConfig, func(), error)
}

// NewRemote creates a Remote transport from cfg. Credentials are checked
// lazily on each connection.
func NewRemote(cfg *config.Config) (*Remote, error) {
	r := cfg.Remote
	if r.Host == "" {
		return nil, errutils.ErrRemoteHostEmpty
	}
	if r.User == "" {
		return nil, errutils.ErrRemoteUserEmpty
	}
	if !path.IsAbs(cfg.Store.Root) {
		return nil, fmt.Errorf("%w: %q", errutils.ErrRemoteRootRelative, cfg.Store.Root)
	}
	simple := cfg.Store.SimpleDir
	if !path.IsAbs(simple) {
		simple = path.Join(cfg.Store.Root, simple)
	}
	port := r.Port
	if port == 0 {
		port = config.DefaultSSHPort
	}
	return &Remote{
		addr:        net.JoinHostPort(r.Host, strconv.Itoa(port)),
		root:        cfg.Store.Root,
		simpleDir:   simple,
		indexTool:   cfg.Store.IndexTool,
		timeout:     cfg.Store.CommandTimeout,
		dialTimeout: r.ConnectTimeout,
		sshConfig:   func() (*ssh.ClientConfig, func(), error) { return clientConfig(r) },
	}, nil
}

// Addr returns host:port of the store host.
func (r *Remote) Addr() string {
	return r.addr
}

// Place streams the file into a hidden temp file on the remote host and
// renames it onto the final name in the same command.
func (r *Remote) Place(ctx context.Context, localSourcePath, destinationName string) error {
	if err := validateDestination(destinationName); err != nil {
		return err
	}
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	src, err := os.Open(localSourcePath)
	if err != nil {
		return callError(ctx, OpPlace, fmt.Sprintf("cannot open %s", localSourcePath), err)
	}
	defer src.Close()

	tmp := shellescape.Quote(path.Join(r.root, fsutil.TempName()))
	dest := shellescape.Quote(path.Join(r.root, destinationName))
	cmd := fmt.Sprintf("mkdir -p %s && cat > %s && mv -f %s %s || { rc=$?; rm -f %s; exit $rc; }",
		shellescape.Quote(r.root), tmp, tmp, dest, tmp)

	if _, err := r.run(ctx, OpPlace, cmd, src); err != nil {
		return err
	}
	logger.Debug("Placed artifact", logger.Fields{"host": r.addr, "dest": path.Join(r.root, destinationName)})
	return nil
}

// Remove lists the store over the connection, then deletes the exact
// matches with a single rm.
func (r *Remote) Remove(ctx context.Context, packageName string) ([]string, error) {
	normalized := model.NormalizeName(packageName)
	if normalized == "" {
		return nil, errutils.NewTransportError(OpRemove, "empty package name", errutils.ErrValidation)
	}
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	client, err := r.connect(ctx)
	if err != nil {
		return nil, callError(ctx, OpRemove, err.Error(), err)
	}
	defer client.Close()

	rootOut, err := r.exec(ctx, client, OpRemove, listFilesCommand(r.root), nil)
	if err != nil {
		return nil, err
	}
	simpleOut, err := r.exec(ctx, client, OpRemove, listDirsCommand(r.simpleDir), nil)
	if err != nil {
		return nil, err
	}

	var removed, targets []string
	for _, f := range matchArtifacts(splitLines(rootOut), normalized) {
		removed = append(removed, f)
		targets = append(targets, shellescape.Quote(path.Join(r.root, f)))
	}
	for _, d := range matchProjects(splitLines(simpleOut), normalized) {
		removed = append(removed, path.Join(path.Base(r.simpleDir), d))
		targets = append(targets, shellescape.Quote(path.Join(r.simpleDir, d)))
	}
	if len(targets) == 0 {
		return nil, nil
	}

	if _, err := r.exec(ctx, client, OpRemove, "rm -rf -- "+strings.Join(targets, " "), nil); err != nil {
		return nil, err
	}
	return removed, nil
}

// RebuildIndex runs `<index_tool> <root>` on the remote host, each word
// quoted for the remote shell.
func (r *Remote) RebuildIndex(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	args := indexCommand(r.indexTool, r.root)
	if args == nil {
		return errutils.NewIndexRebuildError(OpRebuildIndex, "no index tool configured", errutils.ErrValidation)
	}

	client, err := r.connect(ctx)
	if err != nil {
		return indexError(ctx, err.Error(), err)
	}
	defer client.Close()

	cmd := remoteCommand(args)
	var stdout, stderr bytes.Buffer
	if err := r.session(ctx, client, cmd, nil, &stdout, &stderr); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return indexError(ctx, msg, err)
	}
	return nil
}

// ListNames lists the simple index entries on the remote host.
func (r *Remote) ListNames(ctx context.Context) ([]string, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	dir := shellescape.Quote(r.simpleDir)
	cmd := fmt.Sprintf("if [ -d %s ]; then cd %s && find . -mindepth 1 -maxdepth 1 -type d && echo -- && find . -mindepth 2 -maxdepth 2 ! -type d; fi", dir, dir)
	out, err := r.run(ctx, OpListNames, cmd, nil)
	if err != nil {
		return nil, err
	}
	return parseNamesListing(out), nil
}

// ListArtifacts lists the artifact filenames at the remote store root.
func (r *Remote) ListArtifacts(ctx context.Context) ([]string, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	out, err := r.run(ctx, OpListArtifacts, listFilesCommand(r.root), nil)
	if err != nil {
		return nil, err
	}
	return artifactsOnly(splitLines(out)), nil
}

// run executes one command on a fresh connection.
func (r *Remote) run(ctx context.Context, op, cmd string, stdin io.Reader) (string, error) {
	client, err := r.connect(ctx)
	if err != nil {
		return "", callError(ctx, op, err.Error(), err)
	}
	defer client.Close()
	return r.exec(ctx, client, op, cmd, stdin)
}

// exec runs cmd in a new session of client and maps failures to TransportError.
func (r *Remote) exec(ctx context.Context, client *ssh.Client, op, cmd string, stdin io.Reader) (string, error) {
	var stdout, stderr bytes.Buffer
	if err := r.session(ctx, client, cmd, stdin, &stdout, &stderr); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", callError(ctx, op, msg, err)
	}
	return stdout.String(), nil
}

func (r *Remote) session(ctx context.Context, client *ssh.Client, cmd string, stdin io.Reader, stdout, stderr io.Writer) error {
	sess, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer sess.Close()

	sess.Stdin = stdin
	sess.Stdout = stdout
	sess.Stderr = stderr

	logger.Debug("Running remote command", logger.Fields{"host": r.addr, "command": cmd})
	done := make(chan error, 1)
	go func() { done <- sess.Run(cmd) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		_ = client.Close()
		<-done
		return ctx.Err()
	}
}

// connect dials the store host and performs the SSH handshake within ctx.
func (r *Remote) connect(ctx context.Context) (*ssh.Client, error) {
	cfg, release, err := r.sshConfig()
	if err != nil {
		return nil, err
	}
	defer release()

	dialCtx := ctx
	if r.dialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, r.dialTimeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", r.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", r.addr, err)
	}
	if deadline, ok := dialCtx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, r.addr, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", r.addr, err)
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(c, chans, reqs), nil
}

// clientConfig assembles authentication and host key checking. The
// returned release function closes the agent connection, if any.
func clientConfig(r config.RemoteConfig) (*ssh.ClientConfig, func(), error) {
	release := func() {}
	var methods []ssh.AuthMethod

	if r.KeyFile != "" {
		key, err := os.ReadFile(expandHome(r.KeyFile))
		if err != nil {
			return nil, release, fmt.Errorf("failed to read key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, release, fmt.Errorf("failed to parse key file: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if r.UseAgent {
		if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
			conn, err := net.Dial("unix", sock)
			if err != nil {
				return nil, release, fmt.Errorf("failed to reach ssh agent: %w", err)
			}
			release = func() { _ = conn.Close() }
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}
	if r.Password != "" {
		methods = append(methods, ssh.Password(r.Password))
	}
	if len(methods) == 0 {
		release()
		return nil, func() {}, errutils.ErrRemoteNoAuth
	}

	hostKeys, err := hostKeyCallback(r)
	if err != nil {
		release()
		return nil, func() {}, err
	}

	return &ssh.ClientConfig{
		User:            r.User,
		Auth:            methods,
		HostKeyCallback: hostKeys,
		Timeout:         r.ConnectTimeout,
	}, release, nil
}

func hostKeyCallback(r config.RemoteConfig) (ssh.HostKeyCallback, error) {
	if r.InsecureHost {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	file := r.KnownHostsFile
	if file == "" {
		file = "~/.ssh/known_hosts"
	}
	cb, err := knownhosts.New(expandHome(file))
	if err != nil {
		return nil, fmt.Errorf("failed to load known hosts: %w", err)
	}
	return cb, nil
}

func listFilesCommand(dir string) string {
	q := shellescape.Quote(dir)
	return fmt.Sprintf("if [ -d %s ]; then cd %s && find . -mindepth 1 -maxdepth 1 ! -type d; fi", q, q)
}

func listDirsCommand(dir string) string {
	q := shellescape.Quote(dir)
	return fmt.Sprintf("if [ -d %s ]; then cd %s && find . -mindepth 1 -maxdepth 1 -type d; fi", q, q)
}

// splitLines parses find output ("./name" per line) into bare names.
func splitLines(out string) []string {
	var names []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimPrefix(strings.TrimSpace(line), "./")
		if line != "" {
			names = append(names, line)
		}
	}
	return names
}

// parseNamesListing reads the two-part output of the ListNames command:
// project directories, a "--" separator, then "project/file" entries.
func parseNamesListing(out string) []string {
	var projects []string
	files := make(map[string][]string)
	inFiles := false
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "--" {
			inFiles = true
			continue
		}
		line = strings.TrimPrefix(line, "./")
		if line == "" {
			continue
		}
		if !inFiles {
			projects = append(projects, line)
			continue
		}
		if dir, file, ok := strings.Cut(line, "/"); ok {
			files[dir] = append(files[dir], file)
		}
	}
	sort.Strings(projects)
	return collectNames(projects, files)
}

// remoteCommand quotes args for the remote shell. A program path under
// "~/" keeps its home prefix expandable.
func remoteCommand(args []string) string {
	prog := args[0]
	if strings.HasPrefix(prog, "~/") {
		return `"$HOME"/` + shellescape.Quote(strings.TrimPrefix(prog, "~/")) + " " + shellescape.QuoteCommand(args[1:])
	}
	return shellescape.QuoteCommand(args)
}
