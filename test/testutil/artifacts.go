// Package testutil builds package artifacts for tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glorpus-work/wheelhouse/pkg/archive"
)

// WheelOptions describes the metadata written into a test artifact.
type WheelOptions struct {
	Name           string
	Version        string
	RequiresPython string
	Requires       []string
}

// MetadataText renders core metadata headers for opts.
func MetadataText(opts WheelOptions) string {
	var b strings.Builder
	b.WriteString("Metadata-Version: 2.1\n")
	fmt.Fprintf(&b, "Name: %s\n", opts.Name)
	fmt.Fprintf(&b, "Version: %s\n", opts.Version)
	b.WriteString("Summary: test package\n")
	if opts.RequiresPython != "" {
		fmt.Fprintf(&b, "Requires-Python: %s\n", opts.RequiresPython)
	}
	for _, r := range opts.Requires {
		fmt.Fprintf(&b, "Requires-Dist: %s\n", r)
	}
	b.WriteString("\nLong description.\n")
	return b.String()
}

// WheelFilename returns the canonical file name for opts.
func WheelFilename(opts WheelOptions) string {
	return fmt.Sprintf("%s-%s-py3-none-any.whl", strings.ReplaceAll(opts.Name, "-", "_"), opts.Version)
}

// BuildWheel writes a minimal wheel for opts into dir and returns its path.
func BuildWheel(t *testing.T, dir string, opts WheelOptions) string {
	t.Helper()
	return BuildWheelAs(t, dir, WheelFilename(opts), opts)
}

// BuildWheelAs is like BuildWheel with an explicit file name.
func BuildWheelAs(t *testing.T, dir, filename string, opts WheelOptions) string {
	t.Helper()
	distInfo := fmt.Sprintf("%s-%s.dist-info", strings.ReplaceAll(opts.Name, "-", "_"), opts.Version)
	return build(t, dir, filename, map[string]string{
		filepath.Join(distInfo, "METADATA"): MetadataText(opts),
		filepath.Join(distInfo, "WHEEL"):    "Wheel-Version: 1.0\n",
		filepath.Join(strings.ReplaceAll(opts.Name, "-", "_"), "__init__.py"): "",
	})
}

// BuildSdist writes a minimal .tar.gz source distribution into dir.
func BuildSdist(t *testing.T, dir string, opts WheelOptions) string {
	t.Helper()
	root := fmt.Sprintf("%s-%s", opts.Name, opts.Version)
	return build(t, dir, root+".tar.gz", map[string]string{
		filepath.Join(root, "PKG-INFO"): MetadataText(opts),
		filepath.Join(root, "setup.py"): "",
	})
}

// WriteFile writes content to dir/filename and returns the path.
func WriteFile(t *testing.T, dir, filename, content string) string {
	t.Helper()
	p := filepath.Join(dir, filename)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(p), err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func build(t *testing.T, dir, filename string, files map[string]string) string {
	t.Helper()
	src := t.TempDir()
	for name, content := range files {
		WriteFile(t, src, name, content)
	}
	out := filepath.Join(dir, filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	if err := archive.NewManager().Create(context.Background(), src, out); err != nil {
		t.Fatalf("build %s: %v", filename, err)
	}
	return out
}
