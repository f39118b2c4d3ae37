package logger

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"sync"
)

// target is one output with the lowest level it accepts.
type target struct {
	w   io.Writer
	min slog.Level
}

type line struct {
	level slog.Level
	data  []byte
	flush chan error
}

var errSinkClosed = errors.New("logger: sink closed")

// sink fans formatted lines out to its targets from a single goroutine.
type sink struct {
	queue  chan line
	done   chan struct{}
	mu     sync.RWMutex
	closed bool

	bufs []*bufio.Writer
	mins []slog.Level

	errMu sync.Mutex
	err   error
}

func newSink(targets []target, depth int) *sink {
	s := &sink{
		queue: make(chan line, max(depth, 1)),
		done:  make(chan struct{}),
	}
	for _, t := range targets {
		if t.w == nil {
			continue
		}
		s.bufs = append(s.bufs, bufio.NewWriter(t.w))
		s.mins = append(s.mins, t.min)
	}
	go s.run()
	return s
}

func (s *sink) run() {
	defer close(s.done)
	for l := range s.queue {
		if l.flush != nil {
			l.flush <- s.flushAll()
			continue
		}
		for i, b := range s.bufs {
			if l.level < s.mins[i] {
				continue
			}
			if _, err := b.Write(l.data); err != nil {
				s.fail(err)
				continue
			}
			// Flush once nothing else is queued.
			if len(s.queue) == 0 {
				if err := b.Flush(); err != nil {
					s.fail(err)
				}
			}
		}
	}
	if err := s.flushAll(); err != nil {
		s.fail(err)
	}
}

// Write queues a copy of p for every target that accepts level. It blocks
// when the queue is full rather than drop the line.
func (s *sink) Write(level slog.Level, p []byte) error {
	if err := s.Err(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	return s.send(line{level: level, data: append([]byte(nil), p...)})
}

// Flush waits until every line queued before it reached the targets.
func (s *sink) Flush() error {
	ack := make(chan error, 1)
	if err := s.send(line{flush: ack}); err != nil {
		return err
	}
	return <-ack
}

// Close drains the queue and returns the first write error seen. Writes
// after Close fail.
func (s *sink) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
	return s.Err()
}

func (s *sink) send(l line) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errSinkClosed
	}
	s.queue <- l
	return nil
}

func (s *sink) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *sink) fail(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *sink) flushAll() error {
	var errs []error
	for _, b := range s.bufs {
		errs = append(errs, b.Flush())
	}
	return errors.Join(errs...)
}
