// Package synchronizer orchestrates uploads and deletes against the package
// store. It owns the consistency contract between the stored artifacts, the
// dependency precondition and the derived index.
package synchronizer

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/glorpus-work/wheelhouse/internal/logger"
	"github.com/glorpus-work/wheelhouse/pkg/errutils"
	"github.com/glorpus-work/wheelhouse/pkg/hooks"
	"github.com/glorpus-work/wheelhouse/pkg/metadata"
	"github.com/glorpus-work/wheelhouse/pkg/model"
)

// OpReindex names index rebuild failures not already tagged by the store.
const OpReindex = "rebuild-index"

func emit(h Hooks, e Event) {
	logger.Debug("Synchronizer event", logger.Fields{"phase": e.Phase, "package": e.Name, "msg": e.Msg})
	if h.OnEvent != nil {
		h.OnEvent(e)
	}
}

// Upload validates the artifact at artifactPath, checks its dependencies
// against the store and, when they are met, places it under filename and
// rebuilds the index.
//
// A failed dependency check returns a KindDependencyUnsatisfied error and
// leaves the store untouched. A failed rebuild after a successful place
// returns a KindIndexRebuild error: the artifact is stored but may be
// missing from the index. Cancelling ctx has no effect once placing began.
func (s *Synchronizer) Upload(ctx context.Context, artifactPath, filename string) (*UploadResult, error) {
	af, err := model.ParseArtifactFilename(filename)
	if err != nil {
		return nil, errutils.NewInvalidArtifactError(fmt.Sprintf("unrecognized artifact filename %q", filename), err)
	}
	name := af.NormalizedName()

	unlock := s.names.Lock(name)
	defer unlock()

	emit(s.Hooks, Event{Phase: PhaseReceived, Name: name, Msg: filename})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	deps, err := s.dependencies(ctx, artifactPath)
	if err != nil {
		return nil, s.fail(name, err)
	}
	emit(s.Hooks, Event{Phase: PhaseMetadata, Name: name, Msg: fmt.Sprintf("%d dependencies", len(deps))})

	res, err := s.Satisfier.Check(ctx, deps)
	if err != nil {
		return nil, s.fail(name, err)
	}
	if !res.Satisfied {
		return nil, s.fail(name, errutils.NewDependencyError(res.Missing))
	}
	emit(s.Hooks, Event{Phase: PhaseDependencies, Name: name, Msg: "satisfied"})

	hc := hooks.HookContext{
		PackageName:    af.Name,
		PackageVersion: af.Version,
		ArtifactPath:   artifactPath,
		StoreRoot:      s.StoreRoot,
		Dependencies:   rawDependencies(deps),
	}
	if err := s.runHook(ctx, hooks.PreUpload, hc); err != nil {
		return nil, s.fail(name, errutils.NewInvalidArtifactError("rejected by pre-upload hook", err))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// From here on the store is mutated; run to completion under the
	// transport's own timeout.
	mctx := context.WithoutCancel(ctx)
	if err := s.place(mctx, artifactPath, filename); err != nil {
		return nil, s.fail(name, err)
	}
	emit(s.Hooks, Event{Phase: PhasePlaced, Name: name, Msg: filename})

	if err := s.rebuild(mctx); err != nil {
		return nil, s.fail(name, err)
	}
	emit(s.Hooks, Event{Phase: PhaseIndexed, Name: name})

	s.runPostHook(mctx, hooks.PostUpload, hc)
	emit(s.Hooks, Event{Phase: PhaseDone, Name: name, Msg: filename})
	logger.Info("Uploaded package", logger.Fields{"package": name, "filename": filename, "dependencies": len(deps)})

	return &UploadResult{Filename: filename, Name: af.Name, Version: af.Version, Dependencies: deps}, nil
}

// Delete removes every artifact of packageName and its index directory,
// then rebuilds the index. Deleting an absent package succeeds.
func (s *Synchronizer) Delete(ctx context.Context, packageName string) (*DeleteResult, error) {
	name := model.NormalizeName(packageName)
	if name == "" {
		return nil, errutils.NewInvalidArtifactError("package name cannot be empty", errutils.ErrValidation)
	}

	unlock := s.names.Lock(name)
	defer unlock()

	emit(s.Hooks, Event{Phase: PhaseReceived, Name: name, Msg: packageName})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hc := hooks.HookContext{PackageName: packageName, StoreRoot: s.StoreRoot}
	if err := s.runHook(ctx, hooks.PreDelete, hc); err != nil {
		return nil, s.fail(name, errutils.NewInvalidArtifactError("rejected by pre-delete hook", err))
	}

	mctx := context.WithoutCancel(ctx)
	removed, err := s.remove(mctx, packageName)
	if err != nil {
		return nil, s.fail(name, err)
	}
	emit(s.Hooks, Event{Phase: PhaseRemoved, Name: name, Msg: fmt.Sprintf("%d entries", len(removed))})

	if err := s.rebuild(mctx); err != nil {
		return nil, s.fail(name, err)
	}
	emit(s.Hooks, Event{Phase: PhaseIndexed, Name: name})

	s.runPostHook(mctx, hooks.PostDelete, hc)
	emit(s.Hooks, Event{Phase: PhaseDone, Name: name})
	logger.Info("Deleted package", logger.Fields{"package": name, "removed": len(removed)})

	if removed == nil {
		removed = []string{}
	}
	return &DeleteResult{Name: packageName, Removed: removed}, nil
}

// Check runs the metadata and dependency steps of Upload without touching
// the store. An empty filename defaults to the base name of artifactPath.
func (s *Synchronizer) Check(ctx context.Context, artifactPath, filename string) (*CheckResult, error) {
	if filename == "" {
		filename = filepath.Base(artifactPath)
	}
	af, err := model.ParseArtifactFilename(filename)
	if err != nil {
		return nil, errutils.NewInvalidArtifactError(fmt.Sprintf("unrecognized artifact filename %q", filename), err)
	}

	out := &CheckResult{Filename: filename, Name: af.Name, Version: af.Version}
	md, err := s.Reader.Read(ctx, artifactPath)
	switch {
	case err == nil:
		out.Dependencies = metadata.Dependencies(md)
	case errutils.KindOf(err) == errutils.KindMetadataUnreadable:
		out.MetadataError = err.Error()
		out.Dependencies = []model.DependencySpec{}
	default:
		return nil, err
	}

	res, err := s.Satisfier.Check(ctx, out.Dependencies)
	if err != nil {
		return nil, err
	}
	out.Result = res
	return out, nil
}

// Reindex rebuilds the index from the current store contents.
func (s *Synchronizer) Reindex(ctx context.Context) error {
	if err := s.rebuild(ctx); err != nil {
		return err
	}
	logger.Info("Rebuilt index")
	return nil
}

// dependencies reads the unconditional dependencies of the artifact.
// Unreadable metadata counts as no dependencies unless StrictMetadata is set.
func (s *Synchronizer) dependencies(ctx context.Context, artifactPath string) ([]model.DependencySpec, error) {
	md, err := s.Reader.Read(ctx, artifactPath)
	if err == nil {
		return metadata.Dependencies(md), nil
	}
	if errutils.KindOf(err) != errutils.KindMetadataUnreadable {
		return nil, err
	}
	if s.StrictMetadata {
		return nil, errutils.NewInvalidArtifactError("artifact metadata unreadable", err)
	}
	logger.Warn("Artifact metadata unreadable, assuming no dependencies", logger.Fields{
		"artifact": artifactPath,
		"error":    err.Error(),
	})
	return nil, nil
}

func (s *Synchronizer) place(ctx context.Context, artifactPath, filename string) error {
	s.storeMu.RLock()
	defer s.storeMu.RUnlock()
	return s.Store.Place(ctx, artifactPath, filename)
}

func (s *Synchronizer) remove(ctx context.Context, packageName string) ([]string, error) {
	s.storeMu.RLock()
	defer s.storeMu.RUnlock()
	return s.Store.Remove(ctx, packageName)
}

// rebuild runs one index rebuild at a time, with no Place or Remove in
// flight. Any failure is reported as a KindIndexRebuild error since the
// store may already differ from the index.
func (s *Synchronizer) rebuild(ctx context.Context) error {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	err := s.Store.RebuildIndex(ctx)
	if err == nil {
		return nil
	}
	if errutils.KindOf(err) == errutils.KindIndexRebuild {
		return err
	}
	msg := err.Error()
	if e, ok := errutils.AsError(err); ok && e.Message != "" {
		msg = e.Message
	}
	return errutils.NewIndexRebuildError(OpReindex, msg, err)
}

func (s *Synchronizer) runHook(ctx context.Context, hookType hooks.HookType, hc hooks.HookContext) error {
	if s.Scripts == nil {
		return nil
	}
	return s.Scripts.Execute(ctx, hookType, hc)
}

func (s *Synchronizer) runPostHook(ctx context.Context, hookType hooks.HookType, hc hooks.HookContext) {
	if err := s.runHook(ctx, hookType, hc); err != nil {
		logger.Warn("Hook failed", logger.Fields{"hook": string(hookType), "package": hc.PackageName, "error": err.Error()})
	}
}

func (s *Synchronizer) fail(name string, err error) error {
	emit(s.Hooks, Event{Phase: PhaseError, Name: name, Msg: err.Error()})
	return err
}

func rawDependencies(deps []model.DependencySpec) []string {
	out := make([]string, 0, len(deps))
	for _, d := range deps {
		out = append(out, d.Raw)
	}
	return out
}
