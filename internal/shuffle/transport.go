package shuffle

import (
	"context"
	"io"
)

// Outcome is the result of fetching one block: either Data (success) or
// Err (failure). Exactly one Outcome is produced per requested fragment.
type Outcome struct {
	Block BlockID
	Data  io.ReadCloser
	Err   error
}

// Success builds a successful outcome.
func Success(id BlockID, data io.ReadCloser) Outcome {
	return Outcome{Block: id, Data: data}
}

// Failure builds a failed outcome.
func Failure(id BlockID, err error) Outcome {
	return Outcome{Block: id, Err: err}
}

// Failed reports whether the fetch failed.
func (o Outcome) Failed() bool { return o.Err != nil }

// Results is a pull-based producer of fetch outcomes in completion order.
type Results interface {
	// Next blocks until another outcome is available. It returns io.EOF
	// once every requested fragment has been delivered and the context's
	// error if ctx is done first.
	Next(ctx context.Context) (Outcome, error)

	// Close stops outstanding fetches and releases their resources.
	// Outcomes not yet taken are discarded.
	Close() error
}

// Transport retrieves fragments, locally or over the network, keeping at
// most maxBytesInFlight bytes outstanding. A failed fragment must not abort
// its siblings; it is reported as a failed Outcome instead.
type Transport interface {
	Fetch(ctx context.Context, groups []RequestGroup, maxBytesInFlight int64) Results
}

type emptyResults struct{}

func (emptyResults) Next(ctx context.Context) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	return Outcome{}, io.EOF
}

func (emptyResults) Close() error { return nil }
