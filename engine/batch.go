package engine

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/franksops/gobak/progress"
	"github.com/franksops/gobak/provider"
)

var newUploader = provider.NewUploader

// Batch uploads a resolved file set to one destination, one file at a time.
type Batch struct {
	log             logrus.FieldLogger
	tracker         *JobTracker
	sink            progress.Sink
	uploaderOpts    []provider.Option
	continueOnError bool
}

// BatchOption configures a Batch.
type BatchOption func(*Batch)

// WithBatchLogger sets the logger of the batch and of the uploaders it creates.
func WithBatchLogger(log logrus.FieldLogger) BatchOption {
	return func(b *Batch) {
		b.log = log
	}
}

// WithJournal records every job through tracker.
func WithJournal(tracker *JobTracker) BatchOption {
	return func(b *Batch) {
		b.tracker = tracker
	}
}

// WithProgress sets the sink receiving per-file progress.
func WithProgress(sink progress.Sink) BatchOption {
	return func(b *Batch) {
		b.sink = sink
	}
}

// WithContinueOnError sets whether a failed file stops the batch.
// When false, the remaining files are reported as Skipped.
func WithContinueOnError(v bool) BatchOption {
	return func(b *Batch) {
		b.continueOnError = v
	}
}

// WithUploaderOptions passes options to the uploader of the destination.
func WithUploaderOptions(opts ...provider.Option) BatchOption {
	return func(b *Batch) {
		b.uploaderOpts = append(b.uploaderOpts, opts...)
	}
}

// NewBatch creates a Batch that continues past failed files by default.
func NewBatch(opts ...BatchOption) *Batch {
	b := &Batch{continueOnError: true}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = discardLogger()
	}
	if b.sink == nil {
		b.sink = progress.Discard
	}
	return b
}

// Report holds the outcome of every file of one run, in resolution order.
type Report struct {
	RunID       string
	Destination string
	Outcomes    []Outcome
}

// Count returns the number of outcomes with status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Err aggregates the failures of the run, or returns nil if every
// attempted file succeeded.
func (r *Report) Err() error {
	var result *multierror.Error
	for _, o := range r.Outcomes {
		if o.Status == Failure {
			result = multierror.Append(result, fmt.Errorf("%s: %w", o.Job.SourcePath, o.Err))
		}
	}
	return result.ErrorOrNil()
}

// Run uploads every file of set to dest under remotePrefix. Failures are
// recorded per file and never returned directly; see Report.Err.
func (b *Batch) Run(ctx context.Context, set *ResolvedFileSet, dest provider.Destination, remotePrefix string) *Report {
	report := &Report{RunID: uuid.NewString()}
	if dest != nil {
		report.Destination = dest.DestinationName()
	}
	log := b.log.WithFields(logrus.Fields{"run": report.RunID, "destination": report.Destination})

	uploader, uploaderErr := newUploader(dest, append([]provider.Option{provider.WithLogger(b.log)}, b.uploaderOpts...)...)

	var stop error
	for _, file := range set.Files {
		job := TransferJob{
			ID:          uuid.NewString(),
			RunID:       report.RunID,
			SourcePath:  file,
			Destination: report.Destination,
			RemoteKey:   remoteKey(dest, file, remotePrefix, set.IsDirectorySource),
		}

		if stop == nil {
			stop = ctx.Err()
		}
		if stop != nil {
			report.Outcomes = append(report.Outcomes, Outcome{Job: job, Status: Skipped, Err: stop})
			continue
		}

		if info, err := os.Stat(file); err == nil {
			job.TotalBytes = info.Size()
		}

		fileLog := log.WithFields(logrus.Fields{"file": file, "remote": job.RemoteKey})
		fileLog.Info("Uploading file")

		err := uploaderErr
		if err == nil {
			err = b.upload(ctx, uploader, job, remotePrefix, set.IsDirectorySource, fileLog)
		} else {
			b.sink.Start(file, job.TotalBytes)
			b.sink.Finish(err)
		}

		if err != nil {
			failLog := fileLog
			if kind := provider.KindOf(err); kind != nil {
				failLog = failLog.WithField("kind", kind.Error())
			}
			failLog.WithError(err).Error("Upload failed")
			report.Outcomes = append(report.Outcomes, Outcome{Job: job, Status: Failure, Err: err})
			if !b.continueOnError {
				stop = fmt.Errorf("batch stopped after failure of %s", file)
			}
			continue
		}
		report.Outcomes = append(report.Outcomes, Outcome{Job: job, Status: Success})
	}

	log.WithFields(logrus.Fields{
		"succeeded": report.Count(Success),
		"failed":    report.Count(Failure),
		"skipped":   report.Count(Skipped),
	}).Info("Backup finished")
	return report
}

func (b *Batch) upload(ctx context.Context, uploader provider.Uploader, job TransferJob, remotePrefix string, isDir bool, log logrus.FieldLogger) error {
	sink := b.sink
	if b.tracker != nil {
		if err := b.tracker.InitJob(job); err != nil {
			log.WithError(err).Warn("Failed to record job")
		} else {
			if err := b.tracker.MarkInProgress(job.ID); err != nil {
				log.WithError(err).Warn("Failed to record job")
			}
			sink = progress.Multi(b.sink, b.tracker.Sink(job.ID))
		}
	}

	err := uploader.Upload(ctx, job.SourcePath, remotePrefix, isDir, sink)

	if b.tracker != nil {
		var jerr error
		if err != nil {
			jerr = b.tracker.MarkFailed(job.ID, err)
		} else {
			jerr = b.tracker.MarkCompleted(job.ID)
		}
		if jerr != nil {
			log.WithError(jerr).Warn("Failed to record job")
		}
	}
	return err
}

// remoteKey is the key reported for a file, as the destination will store it.
func remoteKey(dest provider.Destination, file, remotePrefix string, isDir bool) string {
	key := provider.RemoteKey(file, remotePrefix, isDir)
	if _, ok := dest.(provider.ObjectStorage); ok {
		key = strings.TrimLeft(key, "/")
	}
	return key
}
