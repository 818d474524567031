package hooks

import "context"

// HookType represents the type of hook.
type HookType string

// Supported hook types.
const (
	PreUpload  HookType = "pre-upload"
	PostUpload HookType = "post-upload"
	PreDelete  HookType = "pre-delete"
	PostDelete HookType = "post-delete"
)

// AllTypes lists the supported hook types in lifecycle order.
var AllTypes = []HookType{PreUpload, PostUpload, PreDelete, PostDelete}

// Hook represents a hook script with its type and content.
type Hook struct {
	Type    HookType
	Content string
}

// HookContext contains information passed to hooks.
type HookContext struct {
	PackageName    string
	PackageVersion string
	// ArtifactPath is the uploaded file; empty for delete hooks.
	ArtifactPath string
	StoreRoot    string
	// Dependencies are the raw declarations of the uploaded artifact.
	Dependencies []string
	Vars         map[string]interface{}
}

// HookManager defines the interface for managing hooks.
type HookManager interface {
	// Execute runs the specified hook type with the given context
	Execute(ctx context.Context, hookType HookType, hc HookContext) error

	// AddHook adds a new hook
	AddHook(hook Hook) error

	// HasHook checks if a hook of the specified type exists
	HasHook(hookType HookType) bool
}

// Valid reports whether t is one of the supported hook types.
func (t HookType) Valid() bool {
	for _, v := range AllTypes {
		if t == v {
			return true
		}
	}
	return false
}
