// Package metadata reads the core metadata (METADATA or PKG-INFO) of a
// package artifact and extracts the dependencies it declares.
package metadata

import (
	"bufio"
	"bytes"
	"context"
	"path"
	"sort"
	"strings"

	"github.com/glorpus-work/wheelhouse/internal/logger"
	"github.com/glorpus-work/wheelhouse/pkg/archive"
	"github.com/glorpus-work/wheelhouse/pkg/errutils"
	"github.com/glorpus-work/wheelhouse/pkg/model"
	"github.com/glorpus-work/wheelhouse/pkg/requirement"
)

// Metadata holds the fields of an artifact's core metadata that wheelhouse uses.
type Metadata struct {
	Name           string
	Version        string
	Summary        string
	RequiresPython string
	// RequiresDist holds every Requires-Dist line, markers included.
	RequiresDist []string
	// Source is the path of the metadata entry inside the archive.
	Source string
}

// Reader extracts metadata from artifacts on the local filesystem.
type Reader struct {
	archives *archive.Manager
}

// NewReader creates a Reader.
func NewReader() *Reader {
	return &Reader{archives: archive.NewManager()}
}

// Read opens the artifact and parses its metadata headers. Any failure is a
// KindMetadataUnreadable error.
func (r *Reader) Read(ctx context.Context, artifactPath string) (*Metadata, error) {
	candidates, err := r.archives.Find(ctx, artifactPath, isMetadataEntry)
	if err != nil {
		return nil, errutils.NewMetadataError(artifactPath, err)
	}
	entry, ok := pickMetadataEntry(candidates)
	if !ok {
		return nil, errutils.NewMetadataError(artifactPath, errutils.ErrMetadataNotFound)
	}

	data, err := r.archives.ReadFile(ctx, artifactPath, entry)
	if err != nil {
		return nil, errutils.NewMetadataError(artifactPath, err)
	}

	md := Parse(data)
	md.Source = entry
	logger.Debug("Read artifact metadata", logger.Fields{
		"artifact": path.Base(artifactPath),
		"entry":    entry,
		"requires": len(md.RequiresDist),
	})
	return md, nil
}

// ExtractDependencies returns the unconditional dependencies declared by the
// artifact. Requires-Dist lines carrying an environment marker are skipped.
// Lines that fail to parse are returned with Invalid set so that callers can
// report them.
func (r *Reader) ExtractDependencies(ctx context.Context, artifactPath string) ([]model.DependencySpec, error) {
	md, err := r.Read(ctx, artifactPath)
	if err != nil {
		return nil, err
	}
	return Dependencies(md), nil
}

// Dependencies converts the Requires-Dist lines of md into dependency specs.
func Dependencies(md *Metadata) []model.DependencySpec {
	deps := make([]model.DependencySpec, 0, len(md.RequiresDist))
	for _, line := range md.RequiresDist {
		if strings.Contains(line, ";") {
			continue
		}
		spec, err := requirement.Parse(line)
		if err != nil {
			spec = model.DependencySpec{Name: strings.TrimSpace(line), Raw: strings.TrimSpace(line), Invalid: err.Error()}
		}
		deps = append(deps, spec)
	}
	return deps
}

// Parse parses RFC 822 style metadata headers up to the first blank line.
// Continuation lines are folded into the previous header.
func Parse(data []byte) *Metadata {
	md := &Metadata{}
	var key, value string
	flush := func() {
		if key == "" {
			return
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(key) {
		case "name":
			md.Name = value
		case "version":
			md.Version = value
		case "summary":
			md.Summary = value
		case "requires-python":
			md.RequiresPython = value
		case "requires-dist":
			md.RequiresDist = append(md.RequiresDist, value)
		}
		key, value = "", ""
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			break
		}
		if line[0] == ' ' || line[0] == '\t' {
			if key != "" {
				value += " " + strings.TrimSpace(line)
			}
			continue
		}
		flush()
		if i := strings.Index(line, ":"); i > 0 {
			key = strings.TrimSpace(line[:i])
			value = line[i+1:]
		}
	}
	flush()
	return md
}

func isMetadataEntry(p string) bool {
	base := path.Base(p)
	return base == "METADATA" || base == "PKG-INFO"
}

// pickMetadataEntry prefers a wheel's *.dist-info/METADATA, then the
// shallowest PKG-INFO or METADATA entry.
func pickMetadataEntry(candidates []string) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	for _, c := range candidates {
		if path.Base(c) == "METADATA" && strings.HasSuffix(path.Dir(c), ".dist-info") {
			return c, true
		}
	}
	sorted := append([]string(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return strings.Count(sorted[i], "/") < strings.Count(sorted[j], "/")
	})
	return sorted[0], true
}
