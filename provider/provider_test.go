package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksops/gobak/stream"
)

type otherDestination struct{ RemoteFilesystem }

func TestNewUploader(t *testing.T) {
	u, err := NewUploader(validObjectStorage())
	require.NoError(t, err)
	assert.IsType(t, &S3Uploader{}, u)
	assert.Equal(t, stream.DefaultChunkSize, u.(*S3Uploader).pool.Size())

	u, err = NewUploader(RemoteFilesystem{Name: "nas"}, WithChunkSize(8192))
	require.NoError(t, err)
	assert.IsType(t, &SFTPUploader{}, u)
	assert.Equal(t, 8192, u.(*SFTPUploader).pool.Size())

	u, err = NewUploader(RemoteFilesystem{Name: "nas"})
	require.NoError(t, err)
	assert.Equal(t, stream.SFTPChunkSize, u.(*SFTPUploader).pool.Size())

	_, err = NewUploader(nil)
	assert.ErrorIs(t, err, ErrConfigInvalid)

	_, err = NewUploader(otherDestination{RemoteFilesystem{Name: "x"}})
	assert.ErrorIs(t, err, ErrConfigInvalid)
	assert.ErrorContains(t, err, "unsupported destination type")
}
