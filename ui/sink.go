package ui

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/franksops/gobak/progress"
)

// DefaultFlushInterval bounds how often progress reaches the program.
const DefaultFlushInterval = 100 * time.Millisecond

// Sink forwards upload progress to a running tea.Program. Chunk deltas are
// coalesced so small chunks do not flood the program's message loop.
type Sink struct {
	send     func(tea.Msg)
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	pending  int64
	lastSend time.Time
}

var _ progress.Sink = (*Sink)(nil)

// NewSink creates a Sink sending to p.
func NewSink(p *tea.Program) *Sink {
	return newSink(p.Send, DefaultFlushInterval)
}

func newSink(send func(tea.Msg), interval time.Duration) *Sink {
	return &Sink{send: send, interval: interval, now: time.Now}
}

func (s *Sink) Start(file string, total int64) {
	s.mu.Lock()
	now := s.now()
	s.pending = 0
	s.lastSend = now
	s.mu.Unlock()
	s.send(FileStartMsg{File: file, Total: total, At: now})
}

func (s *Sink) Add(n int64) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.pending += n
	now := s.now()
	if now.Sub(s.lastSend) < s.interval {
		s.mu.Unlock()
		return
	}
	msg := ProgressMsg{Bytes: s.pending, At: now}
	s.pending = 0
	s.lastSend = now
	s.mu.Unlock()
	s.send(msg)
}

func (s *Sink) Finish(err error) {
	s.mu.Lock()
	pending := s.pending
	s.pending = 0
	now := s.now()
	s.mu.Unlock()

	if pending > 0 {
		s.send(ProgressMsg{Bytes: pending, At: now})
	}
	s.send(FileDoneMsg{Err: err})
}
