package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultLogInterval is how often LogSink emits an in-flight progress line.
const DefaultLogInterval = 5 * time.Second

// LogSink renders progress as log lines for headless runs such as scheduled
// jobs, where there is no terminal to draw a bar on.
type LogSink struct {
	log      logrus.FieldLogger
	interval time.Duration
	now      func() time.Time
	counts   *Tracker

	mu       sync.Mutex
	started  time.Time
	lastLine time.Time
}

var _ Sink = (*LogSink)(nil)

// NewLogSink creates a LogSink. A non-positive interval uses DefaultLogInterval.
func NewLogSink(log logrus.FieldLogger, interval time.Duration) *LogSink {
	if interval <= 0 {
		interval = DefaultLogInterval
	}
	return &LogSink{log: log, interval: interval, now: time.Now, counts: NewTracker()}
}

func (s *LogSink) Start(file string, total int64) {
	s.counts.Start(file, total)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = s.now()
	s.lastLine = s.started
	s.log.WithFields(logrus.Fields{"file": file, "bytes": total}).Info("Uploading")
}

func (s *LogSink) Add(n int64) {
	s.counts.Add(n)
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if now.Sub(s.lastLine) < s.interval {
		return
	}
	s.lastLine = now
	p := s.counts.Snapshot()
	s.log.WithFields(logrus.Fields{
		"file":     p.File,
		"progress": fmt.Sprintf("%s/%s (%.0f%%)", FormatBytes(p.BytesTransferred), FormatBytes(p.TotalBytes), p.Fraction()*100),
		"rate":     FormatRate(p.BytesTransferred, now.Sub(s.started)),
	}).Info("Upload in progress")
}

func (s *LogSink) Finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.counts.Snapshot()
	fields := logrus.Fields{
		"file":   p.File,
		"bytes":  p.BytesTransferred,
		"chunks": s.counts.Updates(),
		"rate":   FormatRate(p.BytesTransferred, s.now().Sub(s.started)),
	}
	if err != nil {
		s.log.WithFields(fields).WithError(err).Warn("Upload aborted")
		return
	}
	s.log.WithFields(fields).Info("Upload complete")
}

// FormatBytes renders a byte count with a binary unit.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// FormatRate renders bytes over elapsed as a per-second rate.
func FormatRate(n int64, elapsed time.Duration) string {
	if elapsed <= 0 {
		return "-"
	}
	perSec := float64(n) / elapsed.Seconds()
	return FormatBytes(int64(perSec)) + "/s"
}
