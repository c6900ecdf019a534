// Package fetch is the transport behind shuffle reads. It retrieves
// fragments from the local store or from peer nodes over HTTP while keeping
// the bytes of fetched-but-unconsumed fragments under a budget.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/dreamware/shuffleread/internal/cluster"
	"github.com/dreamware/shuffleread/internal/metrics"
	"github.com/dreamware/shuffleread/internal/shuffle"
	"github.com/dreamware/shuffleread/internal/storage"
)

const (
	DefaultMaxConcurrent = 5
	DefaultFetchTimeout  = 30 * time.Second
)

var errResultsClosed = errors.New("fetch results closed")

// RemoteClient pulls one fragment from a peer node.
type RemoteClient interface {
	FetchFragment(ctx context.Context, node cluster.NodeInfo, id shuffle.FragmentID) ([]byte, error)
}

// Engine implements shuffle.Transport.
//
// Fragments held by LocalNode are read straight from Local. Everything else
// goes through Remote. At most MaxConcurrent fetches run at once, and a
// fetch is only dispatched while its size fits in the byte budget. Budget is
// returned when the consumer takes the outcome, so unconsumed data is what
// the budget bounds.
type Engine struct {
	LocalNode     string
	Local         storage.Store
	Remote        RemoteClient
	MaxConcurrent int
	FetchTimeout  time.Duration
	Metrics       *metrics.ReadMetrics
}

type delivery struct {
	outcome shuffle.Outcome
	weight  int64
}

type results struct {
	total     int
	delivered int
	out       chan delivery
	sem       *semaphore.Weighted
	cancel    context.CancelFunc
	done      chan struct{}
	closed    atomic.Bool
}

// Fetch starts retrieving every fragment in groups and returns immediately.
func (e *Engine) Fetch(ctx context.Context, groups []shuffle.RequestGroup, maxBytesInFlight int64) shuffle.Results {
	if maxBytesInFlight <= 0 {
		maxBytesInFlight = shuffle.DefaultMaxBytesInFlight
	}
	total := 0
	for _, g := range groups {
		total += len(g.Fragments)
	}

	ctx, cancel := context.WithCancel(ctx)
	r := &results{
		total:  total,
		out:    make(chan delivery, total),
		sem:    semaphore.NewWeighted(maxBytesInFlight),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go e.dispatch(ctx, r, e.order(groups), maxBytesInFlight)
	return r
}

type pending struct {
	node cluster.NodeInfo
	req  shuffle.FragmentRequest
}

// order puts local fragments first, then interleaves remote nodes round
// robin so one slow node does not hold back the others.
func (e *Engine) order(groups []shuffle.RequestGroup) []pending {
	var local, remote []pending
	var remoteGroups []shuffle.RequestGroup
	for _, g := range groups {
		if e.isLocal(g.Node) {
			for _, f := range g.Fragments {
				local = append(local, pending{node: g.Node, req: f})
			}
			continue
		}
		remoteGroups = append(remoteGroups, g)
	}
	for i := 0; ; i++ {
		added := false
		for _, g := range remoteGroups {
			if i < len(g.Fragments) {
				remote = append(remote, pending{node: g.Node, req: g.Fragments[i]})
				added = true
			}
		}
		if !added {
			break
		}
	}
	return append(local, remote...)
}

func (e *Engine) dispatch(ctx context.Context, r *results, queue []pending, budget int64) {
	defer close(r.done)

	var g errgroup.Group
	limit := e.MaxConcurrent
	if limit <= 0 {
		limit = DefaultMaxConcurrent
	}
	g.SetLimit(limit)

	for _, p := range queue {
		weight := p.req.Size
		if weight > budget {
			// Oversized fragments take the whole budget and run alone.
			weight = budget
		}
		if weight < 0 {
			weight = 0
		}
		if err := r.sem.Acquire(ctx, weight); err != nil {
			break
		}
		g.Go(func() error {
			r.out <- delivery{outcome: e.fetchOne(ctx, p.node, p.req), weight: weight}
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) fetchOne(ctx context.Context, node cluster.NodeInfo, req shuffle.FragmentRequest) shuffle.Outcome {
	start := time.Now()
	defer func() {
		if e.Metrics != nil {
			e.Metrics.FetchTime(time.Since(start))
		}
	}()

	if err := ctx.Err(); err != nil {
		return shuffle.Failure(req.ID, err)
	}
	if req.Size == 0 {
		return shuffle.Success(req.ID, io.NopCloser(bytes.NewReader(nil)))
	}

	var (
		data []byte
		err  error
	)
	local := e.isLocal(node)
	if local {
		data, err = e.Local.Get(req.ID)
	} else {
		timeout := e.FetchTimeout
		if timeout <= 0 {
			timeout = DefaultFetchTimeout
		}
		fctx, cancel := context.WithTimeout(ctx, timeout)
		data, err = e.remote().FetchFragment(fctx, node, req.ID)
		cancel()
	}
	if err != nil {
		if e.Metrics != nil {
			e.Metrics.FetchFailed()
		}
		log.Printf("fetch %s from node %s failed: %v", req.ID, node.ID, err)
		return shuffle.Failure(req.ID, fmt.Errorf("fetch %s from %s: %w", req.ID, node.ID, err))
	}

	if e.Metrics != nil {
		if local {
			e.Metrics.LocalFetched(len(data))
		} else {
			e.Metrics.RemoteFetched(len(data))
		}
	}
	return shuffle.Success(req.ID, io.NopCloser(bytes.NewReader(data)))
}

func (e *Engine) isLocal(node cluster.NodeInfo) bool {
	return e.Local != nil && e.LocalNode != "" && node.ID == e.LocalNode
}

func (e *Engine) remote() RemoteClient {
	if e.Remote == nil {
		return HTTPClient{}
	}
	return e.Remote
}

// Next returns the next completed outcome and gives its bytes back to the
// budget.
func (r *results) Next(ctx context.Context) (shuffle.Outcome, error) {
	if r.closed.Load() {
		return shuffle.Outcome{}, errResultsClosed
	}
	if r.delivered == r.total {
		return shuffle.Outcome{}, io.EOF
	}
	select {
	case <-ctx.Done():
		return shuffle.Outcome{}, ctx.Err()
	case d := <-r.out:
		r.sem.Release(d.weight)
		r.delivered++
		return d.outcome, nil
	}
}

// Close cancels outstanding fetches and waits for their goroutines.
func (r *results) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	r.cancel()
	<-r.done
	return nil
}
