package voxelmap

import (
	"context"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestLineKeysQueryExecute(t *testing.T) {
	m := coarseTestMap(t)
	q := NewLineKeysQuery(m, 2)

	test.That(t, q.SetRays([]r3.Vector{
		{}, {X: 3},
		{}, {Y: 2},
	}), test.ShouldBeNil)
	test.That(t, q.Execute(context.Background()), test.ShouldBeNil)

	test.That(t, q.ResultIndices(), test.ShouldResemble, []int{0, 4})
	test.That(t, q.ResultCounts(), test.ShouldResemble, []int{4, 3})
	test.That(t, len(q.Keys()), test.ShouldEqual, 7)

	// Keys appear in input order: first segment's keys, then the second's.
	keys := q.Keys()
	for i := 0; i < 4; i++ {
		test.That(t, keys[i].Local, test.ShouldResemble, LocalCoord{uint8(i), 0, 0})
	}
	for i := 0; i < 3; i++ {
		test.That(t, keys[4+i].Local, test.ShouldResemble, LocalCoord{0, uint8(i), 0})
	}

	// The query reads without mutating the map.
	test.That(t, m.RegionCount(), test.ShouldEqual, 0)
}

func TestLineKeysQueryOddRays(t *testing.T) {
	q := NewLineKeysQuery(coarseTestMap(t), 0)
	err := q.SetRays([]r3.Vector{{}, {X: 1}, {X: 2}})
	test.That(t, errors.Is(err, ErrInvalidArgument), test.ShouldBeTrue)
}

func TestLineKeysQueryAsync(t *testing.T) {
	m := coarseTestMap(t)
	q := NewLineKeysQuery(m, 0)
	test.That(t, q.SetRays([]r3.Vector{{}, {X: 3}}), test.ShouldBeNil)

	test.That(t, q.ExecuteAsync(context.Background()), test.ShouldBeNil)
	err := q.ExecuteAsync(context.Background())
	test.That(t, errors.Is(err, ErrInvalidArgument), test.ShouldBeTrue)

	deadline := time.Now().Add(5 * time.Second)
	for {
		done, err := q.Wait(100 * time.Millisecond)
		if done {
			test.That(t, err, test.ShouldBeNil)
			break
		}
		test.That(t, time.Now().Before(deadline), test.ShouldBeTrue)
	}
	test.That(t, q.ResultCounts(), test.ShouldResemble, []int{4})

	// After completion Wait reports done immediately.
	done, err := q.Wait(0)
	test.That(t, done, test.ShouldBeTrue)
	test.That(t, err, test.ShouldBeNil)
}

func TestLineKeysQueryReset(t *testing.T) {
	m := coarseTestMap(t)
	q := NewLineKeysQuery(m, 1)
	test.That(t, q.SetRays([]r3.Vector{{}, {X: 1}}), test.ShouldBeNil)
	test.That(t, q.Execute(context.Background()), test.ShouldBeNil)
	test.That(t, len(q.Keys()), test.ShouldEqual, 2)

	q.Reset()
	test.That(t, len(q.Keys()), test.ShouldEqual, 0)
	test.That(t, len(q.ResultIndices()), test.ShouldEqual, 0)

	// The segment set survives a reset.
	test.That(t, q.Execute(context.Background()), test.ShouldBeNil)
	test.That(t, q.ResultCounts(), test.ShouldResemble, []int{2})
}
