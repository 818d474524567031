package hooks

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/glorpus-work/wheelhouse/pkg/errutils"
)

// HookFileExtension is the extension of hook scripts.
const HookFileExtension = ".tengo"

// LoadHooksFromDir loads `<hook-type>.tengo` files from dir. A missing or
// empty dir loads nothing; files with other names are ignored.
func LoadHooksFromDir(manager HookManager, dir string) error {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errutils.Wrapf(err, "failed to read hooks directory %s", dir)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != HookFileExtension {
			continue
		}

		hookType := HookType(strings.TrimSuffix(entry.Name(), HookFileExtension))
		if !hookType.Valid() {
			continue
		}

		hookPath := filepath.Join(dir, entry.Name())
		content, err := os.ReadFile(hookPath)
		if err != nil {
			return errutils.Wrapf(err, "error reading hook file %s", hookPath)
		}

		if err := manager.AddHook(Hook{Type: hookType, Content: string(content)}); err != nil {
			return errutils.Wrapf(err, "error adding hook %s", hookType)
		}
	}

	return nil
}

// HookTemplate generates a template for a hook script.
func HookTemplate(hookType HookType) string {
	switch hookType {
	case PreUpload:
		return `// Pre-upload hook
// This script runs after the dependency check and before the artifact is placed.
// Available variables:
// - packageName: string - distribution name of the artifact
// - packageVersion: string - version of the artifact
// - artifactPath: string - path to the uploaded file
// - storeRoot: string - store directory
// - dependencies: array - requirement strings declared by the artifact
// Set err to a non-empty string to refuse the upload.

text := import("text")
err := ""

// Example: refuse packages with a reserved prefix
/*
if text.has_prefix(packageName, "internal-") {
    err = "internal- packages are published elsewhere"
}
*/`

	case PostUpload:
		return `// Post-upload hook
// This script runs after the index was rebuilt.
// Available variables: same as pre-upload hook
// Failures are logged and do not undo the upload.

fmt := import("fmt")

// Example: print a notice
/*
fmt.println("published " + packageName + " " + packageVersion)
*/`

	case PreDelete:
		return `// Pre-delete hook
// This script runs before a package is removed from the store.
// Available variables: packageName, storeRoot
// Set err to a non-empty string to refuse the delete.

err := ""

// Example: protect a package
/*
if packageName == "setuptools" {
    err = "setuptools cannot be deleted"
}
*/`

	case PostDelete:
		return `// Post-delete hook
// This script runs after the index was rebuilt.
// Available variables: same as pre-delete hook

fmt := import("fmt")

// Example: print a notice
/*
fmt.println("deleted " + packageName)
*/`

	default:
		return "// Unknown hook type: " + string(hookType)
	}
}
