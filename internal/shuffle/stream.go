package shuffle

import (
	"context"
	"errors"
	"io"
	"sync"
)

// RecordIterator walks the records of one fragment in the order they were
// written. It follows the bufio.Scanner convention.
type RecordIterator[T any] interface {
	Next() bool
	Record() T
	Err() error
}

// Deserializer turns a raw fragment body into typed records. The record
// type is fixed when the Reader is built, so producer and consumer agree on
// the schema by construction.
type Deserializer[T any] interface {
	Deserialize(r io.Reader) RecordIterator[T]
}

// Stream is the merged, single-pass view over every fetched fragment of a
// shuffle partition. Fragments are flattened in the order their fetches
// complete; records inside a fragment keep their order.
//
// A Stream is used by one goroutine. Cancelling the context passed to
// Reader.Read is the way to interrupt it from elsewhere.
type Stream[T any] struct {
	ctx          context.Context
	results      Results
	translator   *translator
	deserializer Deserializer[T]
	onFinished   func()

	body    io.ReadCloser
	records RecordIterator[T]
	record  T
	err     error
	done    bool

	finishOnce sync.Once
	closeErr   error
}

func newStream[T any](ctx context.Context, results Results, tr *translator, d Deserializer[T], onFinished func()) *Stream[T] {
	return &Stream[T]{
		ctx:          ctx,
		results:      results,
		translator:   tr,
		deserializer: d,
		onFinished:   onFinished,
	}
}

// Next advances to the next record. It returns false when the stream is
// exhausted, has failed, was closed, or its context was cancelled; Err tells
// which.
func (s *Stream[T]) Next() bool {
	if s.done {
		return false
	}
	if err := s.ctx.Err(); err != nil {
		s.finish(err)
		return false
	}
	for {
		if s.records != nil {
			if s.records.Next() {
				s.record = s.records.Record()
				return true
			}
			err := s.records.Err()
			s.closeFragment()
			if err != nil {
				s.finish(err)
				return false
			}
		}

		// Checked again at every fragment boundary so an outcome failed by
		// the cancellation is never blamed on its producer.
		if err := s.ctx.Err(); err != nil {
			s.finish(err)
			return false
		}
		o, err := s.results.Next(s.ctx)
		if errors.Is(err, io.EOF) {
			s.finish(s.translator.checkComplete())
			return false
		}
		if err != nil {
			s.finish(err)
			return false
		}
		body, err := s.translator.translate(o)
		if err != nil {
			s.finish(err)
			return false
		}
		s.body = body
		s.records = s.deserializer.Deserialize(body)
	}
}

// Record returns the record produced by the last successful call to Next.
func (s *Stream[T]) Record() T {
	return s.record
}

// Err returns the error that ended the stream, or nil after normal
// exhaustion or an early Close.
func (s *Stream[T]) Err() error {
	return s.err
}

// Close ends the stream early, cancels outstanding fetches and runs the
// completion hook if it has not run yet. Closing twice is harmless.
func (s *Stream[T]) Close() error {
	s.finish(nil)
	return s.closeErr
}

func (s *Stream[T]) finish(err error) {
	s.finishOnce.Do(func() {
		s.done = true
		s.err = err
		var zero T
		s.record = zero
		s.closeFragment()
		s.closeErr = s.results.Close()
		if s.onFinished != nil {
			s.onFinished()
		}
	})
}

func (s *Stream[T]) closeFragment() {
	closeQuietly(s.body)
	s.body = nil
	s.records = nil
}
