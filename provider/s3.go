package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"

	"github.com/franksops/gobak/progress"
	"github.com/franksops/gobak/stream"
)

// ensure interface is implemented
var _ Uploader = (*S3Uploader)(nil)

// putObjectAPI is the part of the S3 client used for uploads.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var (
	loadAWSConfig = config.LoadDefaultConfig

	newS3Client = func(cfg aws.Config, optFns ...func(*s3.Options)) putObjectAPI {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// S3Uploader uploads files to an object storage destination with a single
// streaming PutObject per file. The object only becomes visible under its key
// once the whole body has been accepted; no multipart upload is attempted.
type S3Uploader struct {
	target ObjectStorage
	log    logrus.FieldLogger
	pool   *stream.BufferPool
}

// NewS3Uploader creates a new S3Uploader for the target.
func NewS3Uploader(target ObjectStorage, opts ...Option) *S3Uploader {
	o := buildOptions(stream.DefaultChunkSize, opts)
	return &S3Uploader{
		target: target,
		log:    o.log.WithField("destination", target.Name),
		pool:   stream.NewBufferPool(o.chunkSize),
	}
}

// buildKey turns a remote key into an object key. Object keys never start
// with a slash, even when the configured prefix is absolute.
func (u *S3Uploader) buildKey(localPath, remotePrefix string, isDirectorySource bool) string {
	return strings.TrimLeft(RemoteKey(localPath, remotePrefix, isDirectorySource), "/")
}

// client builds a session from the static credentials. Configuration errors
// are reported before any request is sent.
func (u *S3Uploader) client(ctx context.Context) (putObjectAPI, error) {
	if err := u.target.Validate(); err != nil {
		return nil, newError(ErrConfigInvalid, "configure", u.target.Name, "", err)
	}

	cfg, err := loadAWSConfig(ctx,
		config.WithRegion(u.target.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			u.target.AccessKey,
			u.target.SecretKey,
			"",
		)),
		config.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	)
	if err != nil {
		return nil, newError(ErrConfigInvalid, "configure", u.target.Name, "", fmt.Errorf("unable to load AWS config: %w", err))
	}

	endpoint := u.target.Endpoint
	return newS3Client(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			// S3-compatible services rarely support virtual-hosted buckets
			o.UsePathStyle = true
		}
		// the body is a one-shot stream, checksums would need a second pass
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	}), nil
}

// Upload streams the file into the bucket under its remote key.
func (u *S3Uploader) Upload(ctx context.Context, localPath, remotePrefix string, isDirectorySource bool, sink progress.Sink) error {
	if sink == nil {
		sink = progress.Discard
	}
	announce(sink, localPath)
	err := u.put(ctx, localPath, u.buildKey(localPath, remotePrefix, isDirectorySource), sink)
	sink.Finish(err)
	return err
}

func (u *S3Uploader) put(ctx context.Context, localPath, key string, sink progress.Sink) error {
	client, err := u.client(ctx)
	if err != nil {
		return err
	}

	file, err := os.Open(localPath)
	if err != nil {
		return newError(ErrLocalIO, "open", u.target.Name, localPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return newError(ErrLocalIO, "stat", u.target.Name, localPath, err)
	}
	size := info.Size()

	buf := u.pool.Get()
	defer u.pool.Put(buf)

	chunks := stream.NewChunks(file, *buf, size, func(n int) {
		sink.Add(int64(n))
	})

	u.log.WithFields(logrus.Fields{
		"bucket": u.target.Bucket,
		"remote": key,
		"bytes":  size,
		"chunk":  u.pool.Size(),
	}).Debug("Putting object")

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.target.Bucket),
		Key:           aws.String(key),
		Body:          chunks.Reader(),
		ContentLength: aws.Int64(size),
	}, s3.WithAPIOptions(v4.SwapComputePayloadSHA256ForUnsignedPayloadMiddleware))
	if err != nil {
		return u.classify(err, chunks, key)
	}

	u.log.WithFields(logrus.Fields{"file": localPath, "remote": key, "bytes": chunks.Emitted()}).Info("Object stored")
	return nil
}

// classify maps a failed PutObject to a transfer error kind. A read failure
// on the local side wins over whatever the SDK reported for the aborted body.
func (u *S3Uploader) classify(err error, chunks *stream.Chunks, key string) error {
	if readErr := chunks.Err(); readErr != nil {
		return newError(ErrLocalIO, "read", u.target.Name, key, readErr)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return newError(ErrRemoteRejected, "put", u.target.Name, key,
			fmt.Errorf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage()))
	}
	return newError(ErrConnectFailed, "put", u.target.Name, key, err)
}
