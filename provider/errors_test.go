package provider

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferError_IsAndAs(t *testing.T) {
	cause := os.ErrPermission
	var err error = newError(ErrRemoteRejected, "create", "nas", "/srv/a.txt", cause)

	assert.ErrorIs(t, err, ErrRemoteRejected)
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.NotErrorIs(t, err, ErrAuthFailed)

	var te *TransferError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "create", te.Op)
	assert.Equal(t, "nas: rejected by remote (create /srv/a.txt): permission denied", err.Error())
}

func TestTransferError_Message(t *testing.T) {
	assert.Equal(t, "invalid destination configuration (configure)",
		newError(ErrConfigInvalid, "configure", "", "", nil).Error())
	assert.Equal(t, "s3: connection failed (put): EOF",
		newError(ErrConnectFailed, "put", "s3", "", errors.New("EOF")).Error())
}

func TestKindOf(t *testing.T) {
	for _, k := range kinds {
		err := newError(k, "op", "d", "p", errors.New("x"))
		assert.Equal(t, k, KindOf(err))
	}
	assert.Nil(t, KindOf(errors.New("plain")))
	assert.Nil(t, KindOf(nil))
}
