package provider

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/franksops/gobak/progress"
)

// Uploader represents one kind of remote backup target.
// A typical Uploader might be object storage, SFTP, etc. Every call to
// Upload opens its own session; nothing is pooled between files.
type Uploader interface {
	// Upload streams the local file to the remote key computed from
	// remotePrefix and the directory-source flag, reporting every chunk to sink.
	// Every call starts and finishes the file on sink, whatever the outcome.
	Upload(ctx context.Context, localPath, remotePrefix string, isDirectorySource bool, sink progress.Sink) error
}

type options struct {
	log       logrus.FieldLogger
	chunkSize int
}

// Option configures an Uploader.
type Option func(*options)

// WithLogger sets the logger used by the uploader.
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithChunkSize overrides the chunk size of the upload stream.
func WithChunkSize(size int) Option {
	return func(o *options) {
		o.chunkSize = size
	}
}

func buildOptions(defaultChunk int, opts []Option) options {
	o := options{chunkSize: defaultChunk}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		o.log = discard
	}
	if o.chunkSize <= 0 {
		o.chunkSize = defaultChunk
	}
	return o
}

// announce starts localPath on sink with its current size, or zero when the
// file cannot be stat'ed. The upload itself reports why.
func announce(sink progress.Sink, localPath string) {
	var size int64
	if info, err := os.Stat(localPath); err == nil {
		size = info.Size()
	}
	sink.Start(localPath, size)
}

// NewUploader returns the Uploader matching the destination's kind.
func NewUploader(dest Destination, opts ...Option) (Uploader, error) {
	switch d := dest.(type) {
	case ObjectStorage:
		return NewS3Uploader(d, opts...), nil
	case RemoteFilesystem:
		return NewSFTPUploader(d, opts...), nil
	case nil:
		return nil, newError(ErrConfigInvalid, "select", "", "", fmt.Errorf("no destination"))
	default:
		return nil, newError(ErrConfigInvalid, "select", dest.DestinationName(), "", fmt.Errorf("unsupported destination type %T", dest))
	}
}
