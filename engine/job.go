package engine

import (
	"io"

	"github.com/sirupsen/logrus"
)

// TransferJob is the upload of one resolved file to a destination.
type TransferJob struct {
	// ID identifies the journal record of this upload.
	ID string

	// RunID groups the jobs of one batch.
	RunID string

	// SourcePath is the absolute local file path.
	SourcePath string

	// Destination is the configured destination name.
	Destination string

	// RemoteKey is where the file lands on the destination.
	RemoteKey string

	// TotalBytes is the local size observed before the upload starts.
	TotalBytes int64
}

// Status is the final state of one file in a batch.
type Status int

const (
	Success Status = iota
	Failure
	// Skipped files were never attempted because the batch stopped early.
	Skipped
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Skipped:
		return "skipped"
	}
	return "unknown"
}

// Outcome is the independently reported result of one file.
type Outcome struct {
	Job    TransferJob
	Status Status
	// Err is set for Failure and Skipped outcomes.
	Err error
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
