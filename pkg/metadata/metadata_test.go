package metadata

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/wheelhouse/pkg/errutils"
	"github.com/glorpus-work/wheelhouse/test/testutil"
)

func TestParse(t *testing.T) {
	data := []byte("Metadata-Version: 2.1\r\n" +
		"Name: foo\r\n" +
		"Version: 1.2.0\r\n" +
		"Summary: A package\r\n" +
		"  spanning two lines\r\n" +
		"Requires-Python: >=3.8\r\n" +
		"Requires-Dist: bar>=1.0\r\n" +
		"Requires-Dist: baz; extra == \"test\"\r\n" +
		"\r\n" +
		"Requires-Dist: not-a-header\r\n")

	md := Parse(data)
	assert.Equal(t, "foo", md.Name)
	assert.Equal(t, "1.2.0", md.Version)
	assert.Equal(t, "A package spanning two lines", md.Summary)
	assert.Equal(t, ">=3.8", md.RequiresPython)
	assert.Equal(t, []string{"bar>=1.0", `baz; extra == "test"`}, md.RequiresDist)
}

func TestDependencies_SkipsMarkersAndKeepsInvalid(t *testing.T) {
	md := &Metadata{RequiresDist: []string{
		"bar>=1.0",
		`colorama; sys_platform == "win32"`,
		"baz (>=1.0,<2)",
		"??? broken",
	}}

	deps := Dependencies(md)
	require.Len(t, deps, 3)
	assert.Equal(t, "bar", deps[0].Name)
	assert.Equal(t, ">=1.0", deps[0].Specifier)
	assert.Equal(t, "baz", deps[1].Name)
	assert.Equal(t, ">=1.0,<2", deps[1].Specifier)
	assert.Equal(t, "??? broken", deps[2].Raw)
	assert.NotEmpty(t, deps[2].Invalid)
}

func TestReader_Wheel(t *testing.T) {
	dir := t.TempDir()
	wheel := testutil.BuildWheel(t, dir, testutil.WheelOptions{
		Name:           "bar",
		Version:        "1.0.0",
		RequiresPython: ">=3.9",
		Requires:       []string{"foo>=2.0", `pytest; extra == "test"`},
	})

	r := NewReader()
	md, err := r.Read(context.Background(), wheel)
	require.NoError(t, err)
	assert.Equal(t, "bar", md.Name)
	assert.Equal(t, "1.0.0", md.Version)
	assert.Equal(t, ">=3.9", md.RequiresPython)
	assert.Equal(t, "bar-1.0.0.dist-info/METADATA", md.Source)

	deps, err := r.ExtractDependencies(context.Background(), wheel)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, "foo>=2.0", deps[0].Raw)
}

func TestReader_Sdist(t *testing.T) {
	dir := t.TempDir()
	sdist := testutil.BuildSdist(t, dir, testutil.WheelOptions{
		Name:     "qux",
		Version:  "0.3",
		Requires: []string{"bar"},
	})

	deps, err := NewReader().ExtractDependencies(context.Background(), sdist)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, "bar", deps[0].Name)
	assert.Empty(t, deps[0].Specifier)
}

func TestReader_Unreadable(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"missing file":   filepath.Join(dir, "nope-1.0.whl"),
		"no metadata":    buildWithoutMetadata(t, dir),
		"not an archive": testutil.WriteFile(t, dir, "plain-1.0.whl", "just text"),
	}

	for name, p := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewReader().ExtractDependencies(context.Background(), p)
			require.Error(t, err)
			assert.Equal(t, errutils.KindMetadataUnreadable, errutils.KindOf(err))
		})
	}
}

func buildWithoutMetadata(t *testing.T, dir string) string {
	t.Helper()
	src := t.TempDir()
	testutil.WriteFile(t, src, "pkg/__init__.py", "")
	out := filepath.Join(dir, "nometa-1.0.whl")
	require.NoError(t, NewReader().archives.Create(context.Background(), src, out))
	return out
}

func TestPickMetadataEntry(t *testing.T) {
	entry, ok := pickMetadataEntry([]string{
		"foo-1.0/foo.egg-info/PKG-INFO",
		"foo-1.0/PKG-INFO",
	})
	require.True(t, ok)
	assert.Equal(t, "foo-1.0/PKG-INFO", entry)

	entry, ok = pickMetadataEntry([]string{"vendored/METADATA", "foo-1.0.dist-info/METADATA"})
	require.True(t, ok)
	assert.Equal(t, "foo-1.0.dist-info/METADATA", entry)

	_, ok = pickMetadataEntry(nil)
	assert.False(t, ok)
}
