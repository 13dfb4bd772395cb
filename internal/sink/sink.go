// Package sink delivers encoded log items. Retry and transport live with
// whatever reads the results log.
package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

type Sink interface {
	Deliver(ctx context.Context, name string, line []byte) error
}

// Writer writes one record per line to w.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (s *Writer) Deliver(ctx context.Context, name string, line []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeLine(s.w, line); err != nil {
		return fmt.Errorf("failed to deliver %s: %w", name, err)
	}
	return nil
}

// File appends records to a newline-delimited results log.
type File struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

func OpenFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open results log: %w", err)
	}

	return &File{path: path, f: f}, nil
}

func (s *File) Path() string {
	return s.path
}

func (s *File) Deliver(ctx context.Context, name string, line []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeLine(s.f, line); err != nil {
		return fmt.Errorf("failed to deliver %s: %w", name, err)
	}
	return nil
}

func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// writeLine issues a single write so concurrent appenders never interleave
// within a record.
func writeLine(w io.Writer, line []byte) error {
	buf := make([]byte, len(line)+1)
	copy(buf, line)
	buf[len(line)] = '\n'
	_, err := w.Write(buf)
	return err
}
