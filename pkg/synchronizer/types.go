//go:generate mockgen -destination=./mocks/synchronizer.go . MetadataReader,DependencyChecker,Store,HookRunner

package synchronizer

import (
	"context"
	"sync"

	"github.com/glorpus-work/wheelhouse/pkg/hooks"
	"github.com/glorpus-work/wheelhouse/pkg/metadata"
	"github.com/glorpus-work/wheelhouse/pkg/model"
	"github.com/glorpus-work/wheelhouse/pkg/satisfier"
)

// MetadataReader is the subset of the metadata reader used by the synchronizer.
type MetadataReader interface {
	Read(ctx context.Context, artifactPath string) (*metadata.Metadata, error)
}

// DependencyChecker is the subset of the satisfier used by the synchronizer.
type DependencyChecker interface {
	Check(ctx context.Context, deps []model.DependencySpec) (satisfier.Result, error)
}

// Store is the subset of the store transport used by the synchronizer.
type Store interface {
	Place(ctx context.Context, localSourcePath, destinationName string) error
	Remove(ctx context.Context, packageName string) ([]string, error)
	RebuildIndex(ctx context.Context) error
}

// HookRunner runs lifecycle scripts.
type HookRunner interface {
	Execute(ctx context.Context, hookType hooks.HookType, hc hooks.HookContext) error
}

// Synchronizer is the sole writer of the store. It gates uploads on the
// dependency check, mutates the store through Store and keeps the index in
// step with it.
type Synchronizer struct {
	Reader    MetadataReader
	Satisfier DependencyChecker
	Store     Store
	Scripts   HookRunner // optional lifecycle scripts
	Hooks     Hooks      // Hooks for progress and event notifications

	// StoreRoot is passed to hook scripts.
	StoreRoot string
	// StrictMetadata rejects artifacts without readable metadata instead of
	// treating them as having no dependencies.
	StrictMetadata bool

	names keyedMutex
	// storeMu is held shared by Place and Remove and exclusively by index
	// rebuilds, so a rebuild never sees the store change under it.
	storeMu sync.RWMutex
}

// Event represents a simple progress notification.
type Event struct {
	Phase string // received|metadata|dependencies|placed|removed|indexed|done|error
	Name  string // normalized package name
	Msg   string
}

// Hooks carries callbacks for progress events.
type Hooks struct {
	OnEvent func(Event)
}

// Event phases.
const (
	PhaseReceived     = "received"
	PhaseMetadata     = "metadata"
	PhaseDependencies = "dependencies"
	PhasePlaced       = "placed"
	PhaseRemoved      = "removed"
	PhaseIndexed      = "indexed"
	PhaseDone         = "done"
	PhaseError        = "error"
)

// UploadResult describes an accepted artifact.
type UploadResult struct {
	Filename     string                 `json:"filename"`
	Name         string                 `json:"name"`
	Version      string                 `json:"version"`
	Dependencies []model.DependencySpec `json:"dependencies"`
}

// DeleteResult lists what a delete removed from the store.
type DeleteResult struct {
	Name    string   `json:"name"`
	Removed []string `json:"removed"`
}

// CheckResult is the outcome of a dry-run upload.
type CheckResult struct {
	Filename     string                 `json:"filename"`
	Name         string                 `json:"name"`
	Version      string                 `json:"version"`
	Dependencies []model.DependencySpec `json:"dependencies"`
	// MetadataError is set when the metadata could not be read.
	MetadataError string `json:"metadata_error,omitempty"`
	satisfier.Result
}
