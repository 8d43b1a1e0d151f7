package logging

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	log := New(logrus.WarnLevel, &buf)

	log.Info("hidden")
	log.WithField("file", "/data/a.txt").Warn("Upload failed")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "level=warning")
	assert.Contains(t, out, `msg="Upload failed"`)
	assert.Contains(t, out, "file=/data/a.txt")
}

func TestNew_Independent(t *testing.T) {
	var a, b bytes.Buffer
	New(logrus.DebugLevel, &a).Debug("one")
	New(logrus.ErrorLevel, &b).Debug("two")

	assert.Contains(t, a.String(), "one")
	assert.Empty(t, b.String())
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, level)

	level, err = ParseLevel(" WARN ")
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, level)

	_, err = ParseLevel("loud")
	assert.EqualError(t, err, `unknown level "loud" (want trace, debug, info, warn or error)`)
}
