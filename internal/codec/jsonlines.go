// Package codec serializes shuffle records. Fragments are JSON lines: one
// JSON document per record, records separated by '\n'.
package codec

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dreamware/shuffleread/internal/shuffle"
)

// maxLineBytes bounds a single encoded record.
const maxLineBytes = 4 << 20

// KeyValue is the record type exchanged by map and reduce tasks.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// DecodeError reports a record that does not match the expected type.
// It usually means producer and consumer disagree on the serializer.
type DecodeError struct {
	Line int
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode record on line %d: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// JSONLines encodes and decodes records of type T.
type JSONLines[T any] struct{}

// Encode writes records to w, one per line.
func (JSONLines[T]) Encode(w io.Writer, records []T) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Deserialize implements shuffle.Deserializer.
func (JSONLines[T]) Deserialize(r io.Reader) shuffle.RecordIterator[T] {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &iterator[T]{sc: sc}
}

type iterator[T any] struct {
	sc     *bufio.Scanner
	line   int
	record T
	err    error
}

func (it *iterator[T]) Next() bool {
	if it.err != nil {
		return false
	}
	for it.sc.Scan() {
		it.line++
		raw := it.sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			it.err = &DecodeError{Line: it.line, Err: err}
			return false
		}
		it.record = rec
		return true
	}
	it.err = it.sc.Err()
	return false
}

func (it *iterator[T]) Record() T { return it.record }

func (it *iterator[T]) Err() error { return it.err }
