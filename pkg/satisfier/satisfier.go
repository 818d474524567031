// Package satisfier decides whether the dependencies declared by an artifact
// are met by the artifacts already present in the store.
package satisfier

import (
	"context"
	"fmt"

	"github.com/glorpus-work/wheelhouse/internal/logger"
	"github.com/glorpus-work/wheelhouse/pkg/model"
	"github.com/glorpus-work/wheelhouse/pkg/requirement"
)

// ArtifactLister lists the artifact filenames at the store root.
type ArtifactLister interface {
	ListArtifacts(ctx context.Context) ([]string, error)
}

// Result is the outcome of a dependency check.
type Result struct {
	Satisfied bool     `json:"satisfied"`
	Missing   []string `json:"missing,omitempty"`
}

// Satisfier checks dependency specs against the store. It holds no state
// between calls: every Check lists the store afresh.
type Satisfier struct {
	store ArtifactLister
}

// New creates a Satisfier reading the store through lister.
func New(lister ArtifactLister) *Satisfier {
	return &Satisfier{store: lister}
}

// Check evaluates every spec and reports all unmet ones. A failure to list
// the store is returned unchanged.
func (s *Satisfier) Check(ctx context.Context, deps []model.DependencySpec) (Result, error) {
	if len(deps) == 0 {
		return Result{Satisfied: true}, nil
	}

	filenames, err := s.store.ListArtifacts(ctx)
	if err != nil {
		return Result{}, err
	}
	installed := newestByName(filenames)

	var missing []string
	for _, dep := range deps {
		if reason, ok := evaluate(dep, installed); !ok {
			missing = append(missing, reason)
		}
	}

	logger.Debug("Checked dependencies", logger.Fields{
		"dependencies": len(deps),
		"artifacts":    len(filenames),
		"missing":      len(missing),
	})
	return Result{Satisfied: len(missing) == 0, Missing: missing}, nil
}

func evaluate(dep model.DependencySpec, installed map[string]*model.ArtifactFile) (string, bool) {
	if dep.Invalid != "" {
		return fmt.Sprintf("%s (required %s, invalid requirement: %s)", dep.Raw, dep.Raw, dep.Invalid), false
	}

	artifact, ok := installed[dep.NormalizedName()]
	if !ok {
		return fmt.Sprintf("%s (required %s, package absent)", dep.Name, dep.Raw), false
	}

	spec, err := requirement.ParseSpecifier(dep.Specifier)
	if err != nil {
		return fmt.Sprintf("%s (required %s, invalid requirement: %s)", dep.Raw, dep.Raw, err), false
	}
	if !spec.Contains(artifact.Version) {
		return fmt.Sprintf("%s (required %s, installed %s)", dep.Name, dep.Raw, artifact.Version), false
	}
	return "", true
}

// newestByName picks one artifact per normalized name: the highest parseable
// version, or the lexically greatest filename when no version parses.
func newestByName(filenames []string) map[string]*model.ArtifactFile {
	best := make(map[string]*model.ArtifactFile)
	for _, filename := range filenames {
		af, err := model.ParseArtifactFilename(filename)
		if err != nil {
			continue
		}
		name := af.NormalizedName()
		current, ok := best[name]
		if !ok || newer(af, current) {
			best[name] = af
		}
	}
	return best
}

func newer(a, b *model.ArtifactFile) bool {
	va, vb := a.GetVersion(), b.GetVersion()
	switch {
	case va != nil && vb != nil:
		if va.Equal(vb) {
			return a.Filename > b.Filename
		}
		return va.GreaterThan(vb)
	case va != nil:
		return true
	case vb != nil:
		return false
	default:
		return a.Filename > b.Filename
	}
}
