package errutils

import (
	"errors"
	"strings"
)

// Kind discriminates the failures of the synchronization engine.
type Kind string

// Error kinds.
const (
	// KindUnknown is reported by KindOf for errors that carry no Kind.
	KindUnknown Kind = ""
	// KindMetadataUnreadable marks an artifact whose metadata could not be read.
	KindMetadataUnreadable Kind = "metadata_unreadable"
	// KindDependencyUnsatisfied marks an upload refused because dependencies are missing.
	KindDependencyUnsatisfied Kind = "dependency_unsatisfied"
	// KindTransport marks an I/O or remote command failure while touching the store.
	KindTransport Kind = "transport"
	// KindIndexRebuild marks a failed index rebuild after the store was already mutated.
	KindIndexRebuild Kind = "index_rebuild"
	// KindInvalidArtifact marks an upload rejected before any I/O on the store.
	KindInvalidArtifact Kind = "invalid_artifact"
)

// Error is the tagged error returned by the store transport, the dependency
// satisfier and the synchronizer.
type Error struct {
	Kind Kind
	// Op names the operation that failed (e.g. "place", "rebuild-index").
	Op string
	// Message is the diagnostic text of the failing command, carried verbatim.
	Message string
	// Missing lists every unsatisfied dependency for KindDependencyUnsatisfied.
	Missing []string
	// Mutated is true when the store was changed before the failure.
	Mutated bool
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch e.Kind {
	case KindDependencyUnsatisfied:
		b.WriteString("dependencies not satisfied")
		if len(e.Missing) > 0 {
			b.WriteString(": ")
			b.WriteString(strings.Join(e.Missing, "; "))
		}
		return b.String()
	case KindIndexRebuild:
		b.WriteString("index rebuild failed")
	case KindTransport:
		b.WriteString("transport error")
	case KindMetadataUnreadable:
		b.WriteString("metadata unreadable")
	case KindInvalidArtifact:
		b.WriteString("invalid artifact")
	default:
		b.WriteString("error")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil && (e.Message == "" || !strings.Contains(e.Message, e.Err.Error())) {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewTransportError creates a KindTransport error for op.
func NewTransportError(op, message string, err error) error {
	return &Error{Kind: KindTransport, Op: op, Message: message, Err: err}
}

// NewIndexRebuildError creates a KindIndexRebuild error. The store is always
// considered mutated when the index fails to follow it.
func NewIndexRebuildError(op, message string, err error) error {
	return &Error{Kind: KindIndexRebuild, Op: op, Message: message, Mutated: true, Err: err}
}

// NewDependencyError creates a KindDependencyUnsatisfied error listing every missing dependency.
func NewDependencyError(missing []string) error {
	return &Error{Kind: KindDependencyUnsatisfied, Op: "check-dependencies", Missing: missing}
}

// NewMetadataError creates a KindMetadataUnreadable error for the artifact at path.
func NewMetadataError(path string, err error) error {
	return &Error{Kind: KindMetadataUnreadable, Op: "read-metadata", Message: path, Err: err}
}

// NewInvalidArtifactError creates a KindInvalidArtifact error.
func NewInvalidArtifactError(message string, err error) error {
	return &Error{Kind: KindInvalidArtifact, Op: "validate", Message: message, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// AsError returns the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
