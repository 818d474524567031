package synchronizer

import (
	"context"
	"os"
	"path/filepath"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/wheelhouse/pkg/config"
	"github.com/glorpus-work/wheelhouse/pkg/errutils"
	"github.com/glorpus-work/wheelhouse/pkg/metadata"
	"github.com/glorpus-work/wheelhouse/pkg/satisfier"
	"github.com/glorpus-work/wheelhouse/pkg/transport"
	"github.com/glorpus-work/wheelhouse/test/testutil"
)

// localStore wires the real components against a temporary store using
// the builtin index generator.
func localStore(t *testing.T) (*Synchronizer, *transport.Local) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Store.Root = t.TempDir()
	cfg.Store.IndexTool = config.IndexToolBuiltin
	cfg.Store.CommandTimeout = 10 * time.Second

	tr := transport.NewLocal(cfg)
	return &Synchronizer{
		Reader:    metadata.NewReader(),
		Satisfier: satisfier.New(tr),
		Store:     tr,
		StoreRoot: tr.Root(),
	}, tr
}

func storeEntries(t *testing.T, root string) []string {
	t.Helper()
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestStore_UploadWithSatisfiedDependency(t *testing.T) {
	s, tr := localStore(t)
	ctx := context.Background()

	testutil.BuildWheelAs(t, tr.Root(), "foo-1.2.0.whl", testutil.WheelOptions{Name: "foo", Version: "1.2.0"})
	upload := testutil.BuildWheelAs(t, t.TempDir(), "bar-1.0.0.whl", testutil.WheelOptions{
		Name:     "bar",
		Version:  "1.0.0",
		Requires: []string{"foo>=1.0"},
	})

	_, err := s.Upload(ctx, upload, "bar-1.0.0.whl")
	require.NoError(t, err)

	names, err := tr.ListNames(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "bar-1.0.0.whl")
	assert.Contains(t, names, "foo-1.2.0.whl")
	assert.FileExists(t, filepath.Join(tr.Root(), "bar-1.0.0.whl"))
}

func TestStore_UploadGate(t *testing.T) {
	s, tr := localStore(t)
	ctx := context.Background()

	testutil.BuildWheelAs(t, tr.Root(), "foo-1.2.0.whl", testutil.WheelOptions{Name: "foo", Version: "1.2.0"})
	require.NoError(t, s.Reindex(ctx))
	before := storeEntries(t, tr.Root())
	namesBefore, err := tr.ListNames(ctx)
	require.NoError(t, err)

	tests := []struct {
		name     string
		requires []string
		missing  []string
	}{
		{
			name:     "absent package",
			requires: []string{"baz>=1.0"},
			missing:  []string{"baz (required baz>=1.0, package absent)"},
		},
		{
			name:     "version mismatch",
			requires: []string{"foo>=2.0"},
			missing:  []string{"foo (required foo>=2.0, installed 1.2.0)"},
		},
		{
			name:     "every miss is reported",
			requires: []string{"foo>=2.0", "baz>=1.0"},
			missing:  []string{"foo (required foo>=2.0, installed 1.2.0)", "baz (required baz>=1.0, package absent)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upload := testutil.BuildWheelAs(t, t.TempDir(), "qux-1.0.0.whl", testutil.WheelOptions{
				Name:     "qux",
				Version:  "1.0.0",
				Requires: tt.requires,
			})

			_, err := s.Upload(ctx, upload, "qux-1.0.0.whl")
			e, ok := errutils.AsError(err)
			require.True(t, ok)
			assert.Equal(t, errutils.KindDependencyUnsatisfied, e.Kind)
			assert.Equal(t, tt.missing, e.Missing)

			assert.Equal(t, before, storeEntries(t, tr.Root()))
			names, err := tr.ListNames(ctx)
			require.NoError(t, err)
			assert.Equal(t, namesBefore, names)
		})
	}
}

func TestStore_DeleteIsExactAndIdempotent(t *testing.T) {
	s, tr := localStore(t)
	ctx := context.Background()

	for _, f := range []string{"foo-1.0.whl", "foo-1.2.0.whl", "foobar-1.0.whl", "foo_bar-2.0.tar.gz"} {
		testutil.WriteFile(t, tr.Root(), f, "x")
	}
	require.NoError(t, s.Reindex(ctx))

	res, err := s.Delete(ctx, "foo")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"foo-1.0.whl", "foo-1.2.0.whl", "simple/foo"}, res.Removed)

	names, err := tr.ListNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"foo_bar-2.0.tar.gz", "foobar-1.0.whl"}, names)

	after := storeEntries(t, tr.Root())
	res, err = s.Delete(ctx, "foo")
	require.NoError(t, err)
	assert.Empty(t, res.Removed)
	assert.Equal(t, after, storeEntries(t, tr.Root()))
}

func TestStore_ReuploadReplaces(t *testing.T) {
	s, tr := localStore(t)
	ctx := context.Background()

	first := testutil.WriteFile(t, t.TempDir(), "pkg.whl", "first")
	second := testutil.WriteFile(t, t.TempDir(), "pkg.whl", "second")

	_, err := s.Upload(ctx, first, "solo-1.0.whl")
	require.NoError(t, err)
	_, err = s.Upload(ctx, second, "solo-1.0.whl")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(tr.Root(), "solo-1.0.whl"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestStore_UploadAlongsideDeletesOfOtherPackages(t *testing.T) {
	s, tr := localStore(t)
	ctx := context.Background()

	const others = 20
	for i := 0; i < others; i++ {
		testutil.BuildWheelAs(t, tr.Root(), fmt.Sprintf("bar%d-1.0.whl", i), testutil.WheelOptions{Name: fmt.Sprintf("bar%d", i), Version: "1.0"})
	}
	require.NoError(t, s.Reindex(ctx))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < others; i++ {
			_, err := s.Delete(ctx, fmt.Sprintf("bar%d", i))
			assert.NoError(t, err)
		}
	}()

	dist := t.TempDir()
	for i := 0; i < 5; i++ {
		filename := fmt.Sprintf("foo-1.%d.whl", i)
		upload := testutil.BuildWheelAs(t, dist, filename, testutil.WheelOptions{Name: "foo", Version: fmt.Sprintf("1.%d", i)})
		_, err := s.Upload(ctx, upload, filename)
		require.NoError(t, err)
	}
	wg.Wait()

	names, err := tr.ListNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"foo-1.0.whl", "foo-1.1.whl", "foo-1.2.whl", "foo-1.3.whl", "foo-1.4.whl"}, names)
}
