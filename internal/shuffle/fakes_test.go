package shuffle

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/dreamware/shuffleread/internal/cluster"
)

var (
	nodeA = cluster.NodeInfo{ID: "A", Addr: "http://a:8081"}
	nodeB = cluster.NodeInfo{ID: "B", Addr: "http://b:8081"}
	nodeC = cluster.NodeInfo{ID: "C", Addr: "http://c:8081"}
)

// staticResolver returns a fixed table or error.
type staticResolver struct {
	table LocationTable
	err   error
	calls int
}

func (r *staticResolver) ResolveLocations(_ context.Context, _, _ int) (LocationTable, error) {
	r.calls++
	return r.table, r.err
}

// scriptedTransport replays a fixed list of outcomes in order.
type scriptedTransport struct {
	outcomes []Outcome
	block    bool // when true Next waits for ctx after the scripted outcomes
	// ignoreCtx hands out buffered outcomes even after cancellation, the way
	// a select over a ready channel and ctx.Done may.
	ignoreCtx bool

	mu      sync.Mutex
	groups  []RequestGroup
	budget  int64
	fetches int
	results *scriptedResults
}

func (t *scriptedTransport) Fetch(_ context.Context, groups []RequestGroup, budget int64) Results {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fetches++
	t.groups = groups
	t.budget = budget
	t.results = &scriptedResults{outcomes: t.outcomes, block: t.block, ignoreCtx: t.ignoreCtx}
	return t.results
}

type scriptedResults struct {
	mu        sync.Mutex
	outcomes  []Outcome
	next      int
	block     bool
	ignoreCtx bool
	closed    int
}

func (r *scriptedResults) Next(ctx context.Context) (Outcome, error) {
	if err := ctx.Err(); err != nil && !r.ignoreCtx {
		return Outcome{}, err
	}
	r.mu.Lock()
	if r.next < len(r.outcomes) {
		o := r.outcomes[r.next]
		r.next++
		r.mu.Unlock()
		return o, nil
	}
	block := r.block
	r.mu.Unlock()
	if block {
		<-ctx.Done()
		return Outcome{}, ctx.Err()
	}
	return Outcome{}, io.EOF
}

func (r *scriptedResults) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}

func (r *scriptedResults) closeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// trackingBody records whether a fragment body was closed.
type trackingBody struct {
	io.Reader
	mu     sync.Mutex
	closed bool
}

func (b *trackingBody) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *trackingBody) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// cancelAtEOF cancels a context when its reader runs dry, which lands the
// cancellation between two fragments of one Next call.
type cancelAtEOF struct {
	r      io.Reader
	cancel context.CancelFunc
}

func (c *cancelAtEOF) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if err == io.EOF {
		c.cancel()
	}
	return n, err
}

func body(lines ...string) *trackingBody {
	text := strings.Join(lines, "\n")
	if len(lines) > 0 {
		text += "\n"
	}
	return &trackingBody{Reader: strings.NewReader(text)}
}

func fragment(producer int) FragmentID {
	return FragmentID{ShuffleID: 7, ProducerID: producer, PartitionID: 3}
}

// lines decodes one string record per line.
type lines struct{}

func (lines) Deserialize(r io.Reader) RecordIterator[string] {
	return &lineIterator{sc: bufio.NewScanner(r)}
}

type lineIterator struct {
	sc *bufio.Scanner
}

func (it *lineIterator) Next() bool     { return it.sc.Scan() }
func (it *lineIterator) Record() string { return it.sc.Text() }
func (it *lineIterator) Err() error     { return it.sc.Err() }

// counter is a completion hook that counts its invocations.
type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) hook() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *counter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
