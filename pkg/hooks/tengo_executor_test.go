package hooks_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/wheelhouse/pkg/hooks"
)

func TestTengoExecutor(t *testing.T) {
	executor := hooks.NewTengoExecutor()
	hc := hooks.HookContext{
		PackageName:    "foo",
		PackageVersion: "1.2.0",
		ArtifactPath:   "/tmp/foo-1.2.0-py3-none-any.whl",
		StoreRoot:      "/srv/packages",
		Dependencies:   []string{"bar>=1.0", "baz"},
		Vars: map[string]interface{}{
			"customVar": "customValue",
		},
	}
	ctx := context.Background()

	t.Run("Execute empty script", func(t *testing.T) {
		executor.AddScript(hooks.PreUpload, `// does nothing`)

		err := executor.Execute(ctx, hooks.PreUpload, hc)
		assert.NoError(t, err)
	})

	t.Run("Execute script with runtime error", func(t *testing.T) {
		executor.AddScript(hooks.PostUpload, `non_existent_function()`)

		err := executor.Execute(ctx, hooks.PostUpload, hc)
		require.Error(t, err)
		assert.ErrorIs(t, err, hooks.ErrHookExecution)
	})

	t.Run("Execute non-existent script", func(t *testing.T) {
		err := executor.Execute(ctx, "non-existent-hook", hc)
		assert.NoError(t, err)
	})

	t.Run("HasScript check", func(t *testing.T) {
		hookType := hooks.HookType("test-hook")
		assert.False(t, executor.HasScript(hookType))

		executor.AddScript(hookType, "// test script")
		assert.True(t, executor.HasScript(hookType))
	})

	t.Run("Context variables are accessible", func(t *testing.T) {
		script := `
			err := ""
			if packageName != "foo" || packageVersion != "1.2.0" {
				err = "bad name or version"
			}
			if storeRoot != "/srv/packages" || artifactPath == "" {
				err = "bad paths"
			}
			if len(dependencies) != 2 || dependencies[0] != "bar>=1.0" {
				err = "bad dependencies"
			}
			if customVar != "customValue" {
				err = "bad custom variable"
			}
		`
		executor.AddScript(hooks.PreDelete, script)

		err := executor.Execute(ctx, hooks.PreDelete, hc)
		assert.NoError(t, err)
	})

	t.Run("Script veto", func(t *testing.T) {
		executor.AddScript(hooks.PostDelete, `err := "refused " + packageName`)

		err := executor.Execute(ctx, hooks.PostDelete, hc)
		require.Error(t, err)
		assert.ErrorIs(t, err, hooks.ErrHookScript)
		assert.Contains(t, err.Error(), "refused foo")
	})

	t.Run("Context cancellation stops the script", func(t *testing.T) {
		executor.AddScript(hooks.PreUpload, `for { }`)

		cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		err := executor.Execute(cctx, hooks.PreUpload, hc)
		assert.Error(t, err)
	})
}
