// Package batch buffers writes and hands them to a flush function in
// bounded chunks.
package batch

import "fmt"

const (
	DefaultSize = 500
	// MaxSize keeps a multi-row insert of ranking entries (5 bound
	// parameters per row) under the 65535 parameter limit of Postgres.
	MaxSize = 10000
)

// FlushFunc receives a chunk of at most the writer's size. The slice is
// reused after the call returns.
type FlushFunc[T any] func(items []T) error

type Writer[T any] struct {
	size    int
	buf     []T
	flush   FlushFunc[T]
	written int
	flushes int
}

func NewWriter[T any](size int, flush FlushFunc[T]) *Writer[T] {
	if size <= 0 {
		size = DefaultSize
	}
	if size > MaxSize {
		size = MaxSize
	}
	return &Writer[T]{size: size, buf: make([]T, 0, size), flush: flush}
}

// Add buffers item and flushes once the buffer is full.
func (w *Writer[T]) Add(item T) error {
	w.buf = append(w.buf, item)
	if len(w.buf) >= w.size {
		return w.Flush()
	}
	return nil
}

func (w *Writer[T]) Flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	if err := w.flush(w.buf); err != nil {
		return fmt.Errorf("flush %d items: %w", len(w.buf), err)
	}
	w.written += len(w.buf)
	w.flushes++
	w.buf = w.buf[:0]
	return nil
}

// Pending is the number of buffered, unflushed items.
func (w *Writer[T]) Pending() int { return len(w.buf) }

// Written is the number of items handed to the flush function so far.
func (w *Writer[T]) Written() int { return w.written }

func (w *Writer[T]) Flushes() int { return w.flushes }

// Run gives body a writer and flushes the remainder when body returns nil.
// When body fails the buffer is dropped and body's error is returned.
func Run[T any](size int, flush FlushFunc[T], body func(w *Writer[T]) error) (int, error) {
	w := NewWriter(size, flush)
	if err := body(w); err != nil {
		return w.Written(), err
	}
	if err := w.Flush(); err != nil {
		return w.Written(), err
	}
	return w.Written(), nil
}
