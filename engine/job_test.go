package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{Success, "success"},
		{Failure, "failure"},
		{Skipped, "skipped"},
		{Status(42), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}

func TestResolveError(t *testing.T) {
	cause := errors.New("permission denied")
	err := error(&ResolveError{Kind: ErrNotFound, Spec: "/data", Err: cause})

	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrUnsupported)
	assert.EqualError(t, err, "source not found: /data: permission denied")

	assert.EqualError(t, &ResolveError{Kind: ErrGlobSyntax, Spec: "[a-"}, "malformed glob pattern: [a-")
}
