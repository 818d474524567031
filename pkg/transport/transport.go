// Package transport performs every read and write against the package
// store. Two variants implement the same interface: Local works on a
// directory of this machine, Remote drives a store on another host over
// SSH. Exactly one is constructed at startup from configuration.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/glorpus-work/wheelhouse/pkg/config"
	"github.com/glorpus-work/wheelhouse/pkg/errutils"
	"github.com/glorpus-work/wheelhouse/pkg/fsutil"
	"github.com/glorpus-work/wheelhouse/pkg/model"
)

//go:generate mockgen -destination=./mocks/transport.go . Transport

// Transport is the store access used by the synchronizer and the catalog.
type Transport interface {
	// Place copies the local file at localSourcePath into the store root
	// under destinationName. It is all-or-nothing.
	Place(ctx context.Context, localSourcePath, destinationName string) error
	// Remove deletes every artifact of packageName (compared by normalized
	// name) and its simple-index directory, returning the removed entries.
	// Nothing to remove is not an error.
	Remove(ctx context.Context, packageName string) ([]string, error)
	// RebuildIndex regenerates the simple index from the store contents.
	RebuildIndex(ctx context.Context) error
	// ListNames lists the entries of the simple index.
	ListNames(ctx context.Context) ([]string, error)
	// ListArtifacts lists the artifact filenames at the store root.
	ListArtifacts(ctx context.Context) ([]string, error)
}

// Operation names used in errors and logs.
const (
	OpPlace         = "place"
	OpRemove        = "remove"
	OpRebuildIndex  = "rebuild-index"
	OpListNames     = "list-names"
	OpListArtifacts = "list-artifacts"
)

// New constructs the transport selected by cfg.Store.Transport.
func New(cfg *config.Config) (Transport, error) {
	switch cfg.Store.Transport {
	case config.TransportLocal, "":
		return NewLocal(cfg), nil
	case config.TransportRemote:
		return NewRemote(cfg)
	default:
		return nil, errutils.ErrUnknownTransportWithName(cfg.Store.Transport)
	}
}

// withTimeout bounds one transport call. A zero timeout leaves ctx unchanged.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// callError builds the TransportError of op, naming timeouts explicitly.
func callError(ctx context.Context, op, message string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errutils.NewTransportError(op, "timed out", ctx.Err())
	}
	if ctx.Err() != nil {
		return errutils.NewTransportError(op, "canceled", ctx.Err())
	}
	return errutils.NewTransportError(op, message, err)
}

// indexError is the IndexRebuildError counterpart of callError.
func indexError(ctx context.Context, message string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errutils.NewIndexRebuildError(OpRebuildIndex, "timed out", ctx.Err())
	}
	return errutils.NewIndexRebuildError(OpRebuildIndex, message, err)
}

// validateDestination rejects names that would escape the store root or
// do not follow the artifact naming scheme.
func validateDestination(name string) error {
	if _, err := model.ParseArtifactFilename(name); err != nil {
		return errutils.NewTransportError(OpPlace, fmt.Sprintf("refusing destination %q", name), err)
	}
	return nil
}

// matchArtifacts returns the artifact filenames whose normalized name
// equals normalized.
func matchArtifacts(filenames []string, normalized string) []string {
	var out []string
	for _, f := range filenames {
		af, err := model.ParseArtifactFilename(f)
		if err != nil {
			continue
		}
		if af.NormalizedName() == normalized {
			out = append(out, f)
		}
	}
	return out
}

// matchProjects returns the simple-index directories belonging to normalized.
func matchProjects(dirs []string, normalized string) []string {
	var out []string
	for _, d := range dirs {
		if model.NormalizeName(d) == normalized {
			out = append(out, d)
		}
	}
	return out
}

// artifactsOnly filters a store root listing down to artifact filenames.
func artifactsOnly(entries []string) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if model.IsArtifactFilename(e) {
			out = append(out, e)
		}
	}
	sort.Strings(out)
	return out
}

// collectNames turns the simple-index layout into listing entries: the
// files inside each project directory, or the directory name itself when
// it holds no artifact files.
func collectNames(projects []string, files map[string][]string) []string {
	names := make([]string, 0, len(projects))
	for _, p := range projects {
		if strings.HasPrefix(p, ".") {
			continue
		}
		var found []string
		for _, f := range files[p] {
			if f == "index.html" || strings.HasPrefix(f, ".") || strings.HasPrefix(f, fsutil.TempPrefix) {
				continue
			}
			found = append(found, f)
		}
		if len(found) == 0 {
			names = append(names, p)
			continue
		}
		sort.Strings(found)
		names = append(names, found...)
	}
	return names
}

// indexCommand splits the index tool on whitespace into a program and its
// leading arguments, then appends root. Arguments cannot contain spaces;
// root can.
func indexCommand(tool, root string) []string {
	args := strings.Fields(tool)
	if len(args) == 0 {
		return nil
	}
	return append(args, root)
}
