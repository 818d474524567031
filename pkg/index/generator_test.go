package index

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/wheelhouse/pkg/errutils"
	"github.com/glorpus-work/wheelhouse/test/testutil"
)

func readFile(t *testing.T, p string) string {
	t.Helper()
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	return string(data)
}

func TestGenerator_Generate(t *testing.T) {
	root := t.TempDir()
	simple := filepath.Join(root, "simple")

	wheel := testutil.BuildWheel(t, root, testutil.WheelOptions{Name: "foo", Version: "1.2.0", RequiresPython: ">=3.9"})
	testutil.BuildSdist(t, root, testutil.WheelOptions{Name: "Zope.Interface", Version: "6.1"})
	testutil.WriteFile(t, root, "README.txt", "not an artifact")

	// Leftovers from a previous run.
	testutil.WriteFile(t, simple, "gone/gone-0.1.whl", "x")
	testutil.WriteFile(t, simple, "foo/foo-0.9.whl", "x")

	g := NewGenerator(root, simple)
	require.NoError(t, g.Generate(context.Background()))

	rootIndex := readFile(t, filepath.Join(simple, IndexFile))
	assert.Contains(t, rootIndex, `<a href="foo/">foo</a>`)
	assert.Contains(t, rootIndex, `<a href="zope-interface/">zope-interface</a>`)
	assert.NotContains(t, rootIndex, "gone")

	data, err := os.ReadFile(wheel)
	require.NoError(t, err)
	sum := fmt.Sprintf("%x", sha256.Sum256(data))

	fooIndex := readFile(t, filepath.Join(simple, "foo", IndexFile))
	assert.Contains(t, fooIndex, "../../foo-1.2.0-py3-none-any.whl#sha256="+sum)
	assert.Contains(t, fooIndex, `data-requires-python="&gt;=3.9"`)
	assert.Contains(t, fooIndex, ">foo-1.2.0-py3-none-any.whl</a>")

	assert.FileExists(t, filepath.Join(simple, "foo", "foo-1.2.0-py3-none-any.whl"))
	assert.NoFileExists(t, filepath.Join(simple, "foo", "foo-0.9.whl"))
	assert.NoDirExists(t, filepath.Join(simple, "gone"))
	assert.FileExists(t, filepath.Join(simple, "zope-interface", "Zope.Interface-6.1.tar.gz"))

	names, err := ProjectNames(simple)
	require.NoError(t, err)
	assert.Equal(t, []string{"foo", "zope-interface"}, names)
}

func TestGenerator_EmptyStore(t *testing.T) {
	root := t.TempDir()
	simple := filepath.Join(root, "simple")

	require.NoError(t, NewGenerator(root, simple).Generate(context.Background()))

	names, err := ProjectNames(simple)
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.FileExists(t, filepath.Join(simple, IndexFile))
}

func TestGenerator_Validate(t *testing.T) {
	tests := []struct {
		name string
		gen  *Generator
	}{
		{name: "no root", gen: &Generator{SimpleDir: "x"}},
		{name: "no simple dir", gen: &Generator{Root: t.TempDir()}},
		{name: "missing root", gen: &Generator{Root: filepath.Join(t.TempDir(), "missing"), SimpleDir: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.gen.Validate(), errutils.ErrInvalidPath)
		})
	}
}

func TestProjectNames_MissingDir(t *testing.T) {
	names, err := ProjectNames(filepath.Join(t.TempDir(), "simple"))
	require.NoError(t, err)
	assert.NotNil(t, names)
	assert.Empty(t, names)
}
