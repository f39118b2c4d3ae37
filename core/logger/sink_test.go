package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestSinkRoutesByLevel(t *testing.T) {
	all, errs := &bytes.Buffer{}, &bytes.Buffer{}
	s := newSink([]target{
		{w: all, min: slog.LevelDebug},
		{w: errs, min: slog.LevelWarn},
	}, 4)

	for _, l := range []struct {
		level slog.Level
		text  string
	}{
		{slog.LevelDebug, "quote\n"},
		{slog.LevelWarn, "retry\n"},
		{slog.LevelError, "failed\n"},
	} {
		if err := s.Write(l.level, []byte(l.text)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := all.String(); got != "quote\nretry\nfailed\n" {
		t.Fatalf("all = %q", got)
	}
	if got := errs.String(); got != "retry\nfailed\n" {
		t.Fatalf("errors = %q", got)
	}
}

func TestSinkWriteAfterClose(t *testing.T) {
	s := newSink([]target{{w: &bytes.Buffer{}}}, 1)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Write(slog.LevelInfo, []byte("late\n")); !errors.Is(err, errSinkClosed) {
		t.Fatalf("write after close = %v", err)
	}
	if err := s.Flush(); !errors.Is(err, errSinkClosed) {
		t.Fatalf("flush after close = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestSinkKeepsFirstError(t *testing.T) {
	s := newSink([]target{{w: failingWriter{}}}, 1)
	_ = s.Write(slog.LevelInfo, []byte(strings.Repeat("x", 8192)))
	err := s.Close()
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("close = %v", err)
	}
	if err := s.Write(slog.LevelInfo, []byte("x")); err == nil {
		t.Fatal("write after failure succeeded")
	}
}

func TestDebugSampler(t *testing.T) {
	s := newDebugSampler(parseSample("2/4"))
	passed := 0
	for i := 0; i < 40; i++ {
		if s.allow() {
			passed++
		}
	}
	if passed != 20 {
		t.Fatalf("passed = %d, want 20", passed)
	}

	s.set(parseSample("off"))
	for i := 0; i < 5; i++ {
		if !s.allow() {
			t.Fatal("disabled sampler dropped an event")
		}
	}
}

func TestParseSample(t *testing.T) {
	cases := map[string][2]int{
		"":      {1, 50},
		"10":    {1, 10},
		"3/7":   {3, 7},
		"off":   {0, 0},
		"0":     {0, 0},
		"x/y":   {1, 50},
		"-1/10": {1, 50},
	}
	for in, want := range cases {
		n, d := parseSample(in)
		if n != want[0] || d != want[1] {
			t.Errorf("parseSample(%q) = %d/%d, want %d/%d", in, n, d, want[0], want[1])
		}
	}
}
