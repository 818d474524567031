package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/glorpus-work/wheelhouse/internal/logger"
	"github.com/glorpus-work/wheelhouse/pkg/config"
	"github.com/glorpus-work/wheelhouse/pkg/errutils"
	"github.com/glorpus-work/wheelhouse/pkg/fsutil"
	"github.com/glorpus-work/wheelhouse/pkg/index"
	"github.com/glorpus-work/wheelhouse/pkg/model"
)

// Local is the transport for a store on this machine.
type Local struct {
	root      string
	simpleDir string
	indexTool string
	timeout   time.Duration
}

// NewLocal creates a Local transport from cfg.
func NewLocal(cfg *config.Config) *Local {
	return &Local{
		root:      expandHome(cfg.Store.Root),
		simpleDir: expandHome(cfg.SimplePath()),
		indexTool: cfg.Store.IndexTool,
		timeout:   cfg.Store.CommandTimeout,
	}
}

// Root returns the store directory.
func (l *Local) Root() string {
	return l.root
}

// Place copies the file into the store through a hidden temp file that is
// synced and renamed onto the final name.
func (l *Local) Place(ctx context.Context, localSourcePath, destinationName string) error {
	if err := validateDestination(destinationName); err != nil {
		return err
	}
	ctx, cancel := withTimeout(ctx, l.timeout)
	defer cancel()

	src, err := os.Open(localSourcePath)
	if err != nil {
		return callError(ctx, OpPlace, fmt.Sprintf("cannot open %s", localSourcePath), err)
	}
	defer src.Close()

	if err := fsutil.EnsureDir(l.root); err != nil {
		return callError(ctx, OpPlace, fmt.Sprintf("cannot create store root %s", l.root), err)
	}

	dest := filepath.Join(l.root, destinationName)
	err = fsutil.AtomicWrite(dest, fsutil.FileModeDefault, func(w io.Writer) error {
		_, err := io.Copy(w, &contextReader{ctx: ctx, r: src})
		return err
	})
	if err != nil {
		return callError(ctx, OpPlace, err.Error(), err)
	}

	logger.Debug("Placed artifact", logger.Fields{"dest": dest})
	return nil
}

// Remove deletes the artifacts of packageName and its index directory.
func (l *Local) Remove(ctx context.Context, packageName string) ([]string, error) {
	normalized := model.NormalizeName(packageName)
	if normalized == "" {
		return nil, errutils.NewTransportError(OpRemove, "empty package name", errutils.ErrValidation)
	}
	ctx, cancel := withTimeout(ctx, l.timeout)
	defer cancel()

	rootEntries, err := readFileNames(l.root)
	if err != nil {
		return nil, callError(ctx, OpRemove, err.Error(), err)
	}
	projects, err := index.ProjectNames(l.simpleDir)
	if err != nil {
		return nil, callError(ctx, OpRemove, err.Error(), err)
	}

	var removed []string
	for _, f := range matchArtifacts(rootEntries, normalized) {
		if err := ctx.Err(); err != nil {
			return removed, callError(ctx, OpRemove, "", err)
		}
		if err := os.Remove(filepath.Join(l.root, f)); err != nil && !os.IsNotExist(err) {
			return removed, callError(ctx, OpRemove, err.Error(), err)
		}
		removed = append(removed, f)
	}
	for _, d := range matchProjects(projects, normalized) {
		if err := os.RemoveAll(filepath.Join(l.simpleDir, d)); err != nil {
			return removed, callError(ctx, OpRemove, err.Error(), err)
		}
		removed = append(removed, filepath.ToSlash(filepath.Join(filepath.Base(l.simpleDir), d)))
	}
	return removed, nil
}

// RebuildIndex runs the index tool against the store root. With the
// builtin tool the index is generated in process.
func (l *Local) RebuildIndex(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, l.timeout)
	defer cancel()

	if l.indexTool == config.IndexToolBuiltin {
		if err := index.NewGenerator(l.root, l.simpleDir).Generate(ctx); err != nil {
			return indexError(ctx, err.Error(), err)
		}
		return nil
	}

	args := indexCommand(l.indexTool, l.root)
	if args == nil {
		return errutils.NewIndexRebuildError(OpRebuildIndex, "no index tool configured", errutils.ErrValidation)
	}
	cmd := exec.CommandContext(ctx, expandHome(args[0]), args[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = io.Discard
	cmd.WaitDelay = time.Second

	logger.Debug("Running index tool", logger.Fields{"command": strings.Join(args, " ")})
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return indexError(ctx, msg, err)
	}
	return nil
}

// ListNames lists the simple index entries.
func (l *Local) ListNames(ctx context.Context) ([]string, error) {
	ctx, cancel := withTimeout(ctx, l.timeout)
	defer cancel()

	projects, err := index.ProjectNames(l.simpleDir)
	if err != nil {
		return nil, callError(ctx, OpListNames, err.Error(), err)
	}
	files := make(map[string][]string, len(projects))
	for _, p := range projects {
		names, err := readFileNames(filepath.Join(l.simpleDir, p))
		if err != nil {
			return nil, callError(ctx, OpListNames, err.Error(), err)
		}
		files[p] = names
	}
	return collectNames(projects, files), nil
}

// ListArtifacts lists the artifact filenames at the store root.
func (l *Local) ListArtifacts(ctx context.Context) ([]string, error) {
	ctx, cancel := withTimeout(ctx, l.timeout)
	defer cancel()

	entries, err := readFileNames(l.root)
	if err != nil {
		return nil, callError(ctx, OpListArtifacts, err.Error(), err)
	}
	return artifactsOnly(entries), nil
}

// readFileNames lists the non-directories of dir. A missing directory is
// empty.
func readFileNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
