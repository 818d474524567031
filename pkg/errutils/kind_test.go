package errutils

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: KindUnknown},
		{name: "plain error", err: errors.New("boom"), want: KindUnknown},
		{name: "transport", err: NewTransportError("place", "disk full", nil), want: KindTransport},
		{name: "index", err: NewIndexRebuildError("rebuild-index", "dir2pi: not found", nil), want: KindIndexRebuild},
		{name: "dependency", err: NewDependencyError([]string{"baz"}), want: KindDependencyUnsatisfied},
		{name: "wrapped", err: fmt.Errorf("upload: %w", NewMetadataError("a.whl", ErrMetadataNotFound)), want: KindMetadataUnreadable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestError_Message(t *testing.T) {
	err := NewDependencyError([]string{
		"baz (required baz>=1.0, package absent)",
		"foo (required foo>=2.0, installed 1.2.0)",
	})
	assert.Equal(t,
		"check-dependencies: dependencies not satisfied: baz (required baz>=1.0, package absent); foo (required foo>=2.0, installed 1.2.0)",
		err.Error())

	err = NewTransportError("remove", "rm: cannot remove '/srv/x': Permission denied", errors.New("exit status 1"))
	assert.Contains(t, err.Error(), "Permission denied")
	assert.Contains(t, err.Error(), "exit status 1")
}

func TestIndexRebuildError_IsMutated(t *testing.T) {
	e, ok := AsError(NewIndexRebuildError("rebuild-index", "boom", nil))
	require.True(t, ok)
	assert.True(t, e.Mutated)
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "ctx"))
	err := Wrapf(ErrFileNotFound, "reading %s", "a.whl")
	assert.ErrorIs(t, err, ErrFileNotFound)
	assert.Equal(t, "reading a.whl: file not found", err.Error())
}
