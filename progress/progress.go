// Package progress defines the sink that receives byte count updates while a
// file is uploaded, along with a few sinks that accumulate or render them.
package progress

import (
	"sync"
)

// Sink receives progress for one file at a time. Start resets the per-file
// counters, Add reports the length of one transferred chunk and Finish closes
// the file with its outcome.
type Sink interface {
	Start(file string, total int64)
	Add(n int64)
	Finish(err error)
}

// Progress is the transferred/total byte pair of the file in flight.
type Progress struct {
	File             string
	BytesTransferred int64
	TotalBytes       int64
}

// Fraction returns the completed share in [0, 1].
func (p Progress) Fraction() float64 {
	if p.TotalBytes <= 0 {
		return 0
	}
	f := float64(p.BytesTransferred) / float64(p.TotalBytes)
	if f > 1 {
		return 1
	}
	return f
}

// Tracker accumulates progress under a mutex. The chunk streaming code and
// the caller may both hold a reference to it.
type Tracker struct {
	mu      sync.Mutex
	current Progress
	updates int
}

var _ Sink = (*Tracker)(nil)

// NewTracker creates an idle Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

func (t *Tracker) Start(file string, total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = Progress{File: file, TotalBytes: total}
	t.updates = 0
}

// Add ignores non-positive deltas so the transferred count never decreases.
func (t *Tracker) Add(n int64) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	t.current.BytesTransferred += n
	t.updates++
	t.mu.Unlock()
}

// Finish leaves the counts of the file readable until the next Start.
func (t *Tracker) Finish(error) {}

// Snapshot returns the current progress.
func (t *Tracker) Snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Updates returns how many chunk updates the current file received.
func (t *Tracker) Updates() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.updates
}

type discard struct{}

func (discard) Start(string, int64) {}
func (discard) Add(int64)           {}
func (discard) Finish(error)        {}

// Discard is a Sink that drops every update.
var Discard Sink = discard{}

type multi []Sink

func (m multi) Start(file string, total int64) {
	for _, s := range m {
		s.Start(file, total)
	}
}

func (m multi) Add(n int64) {
	for _, s := range m {
		s.Add(n)
	}
}

func (m multi) Finish(err error) {
	for _, s := range m {
		s.Finish(err)
	}
}

// Multi fans every update out to all non-nil sinks in order.
func Multi(sinks ...Sink) Sink {
	var m multi
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	switch len(m) {
	case 0:
		return Discard
	case 1:
		return m[0]
	}
	return m
}
