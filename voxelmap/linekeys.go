package voxelmap

import (
	"context"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
	"golang.org/x/sync/errgroup"
)

// LineKeysQuery computes the voxels intersected by a batch of line segments
// without mutating the map. Segments are processed independently and may run in
// parallel; the results always appear in input order. The query borrows the map
// and must not outlive it.
type LineKeysQuery struct {
	m        *OccupancyMap
	rays     []r3.Vector
	parallel int

	indices []int
	counts  []int
	keys    []Key

	done chan error
}

// NewLineKeysQuery creates a query over the map. parallel bounds the number of
// concurrently processed segments; zero or less means one per segment.
func NewLineKeysQuery(m *OccupancyMap, parallel int) *LineKeysQuery {
	return &LineKeysQuery{m: m, parallel: parallel}
}

// SetRays replaces the query's segment set. The slice holds start/end pairs and
// must have even length.
func (q *LineKeysQuery) SetRays(rays []r3.Vector) error {
	if len(rays)%2 != 0 {
		return errors.Wrapf(ErrInvalidArgument, "ray array length %d is odd", len(rays))
	}
	q.rays = append(q.rays[:0], rays...)
	return nil
}

// Execute computes the key list for every segment, blocking until done.
func (q *LineKeysQuery) Execute(ctx context.Context) error {
	segments := len(q.rays) / 2
	perSegment := make([][]Key, segments)

	group, _ := errgroup.WithContext(ctx)
	if q.parallel > 0 {
		group.SetLimit(q.parallel)
	}
	for i := 0; i < segments; i++ {
		i := i
		group.Go(func() error {
			keys, err := q.m.CalculateSegmentKeys(nil, q.rays[2*i], q.rays[2*i+1], true)
			if err != nil {
				return errors.Wrapf(err, "segment %d", i)
			}
			perSegment[i] = keys
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	q.indices = q.indices[:0]
	q.counts = q.counts[:0]
	q.keys = q.keys[:0]
	for _, keys := range perSegment {
		q.indices = append(q.indices, len(q.keys))
		q.counts = append(q.counts, len(keys))
		q.keys = append(q.keys, keys...)
	}
	return nil
}

// ExecuteAsync starts the query in the background. Completion is observed with
// Wait. A query may only have one outstanding asynchronous execution.
func (q *LineKeysQuery) ExecuteAsync(ctx context.Context) error {
	if q.done != nil {
		return errors.Wrap(ErrInvalidArgument, "query already executing")
	}
	done := make(chan error, 1)
	q.done = done
	goutils.PanicCapturingGo(func() {
		done <- q.Execute(ctx)
	})
	return nil
}

// Wait blocks until an asynchronous execution completes or the timeout elapses.
// It returns true with the execution result on completion, and false while the
// query is still running. A zero timeout polls.
func (q *LineKeysQuery) Wait(timeout time.Duration) (bool, error) {
	if q.done == nil {
		return true, nil
	}
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case err := <-q.done:
		q.done = nil
		return true, err
	default:
	}
	if timer == nil {
		return false, nil
	}
	select {
	case err := <-q.done:
		q.done = nil
		return true, err
	case <-timer:
		return false, nil
	}
}

// ResultIndices returns, per segment, the offset of its first key in Keys.
func (q *LineKeysQuery) ResultIndices() []int { return q.indices }

// ResultCounts returns, per segment, the number of keys it produced.
func (q *LineKeysQuery) ResultCounts() []int { return q.counts }

// Keys returns the flat key list for all segments, in input order.
func (q *LineKeysQuery) Keys() []Key { return q.keys }

// Reset discards any computed results, keeping the segment set.
func (q *LineKeysQuery) Reset() {
	q.indices = q.indices[:0]
	q.counts = q.counts[:0]
	q.keys = q.keys[:0]
}
