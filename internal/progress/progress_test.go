package progress

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestBounded_DropsNewestWhenFull(t *testing.T) {
	t.Parallel()

	q := NewBounded[int](2)
	assert.True(t, q.Push(1))
	assert.True(t, q.Push(2))
	assert.False(t, q.Push(3))
	assert.False(t, q.Push(4))
	assert.EqualValues(t, 2, q.Dropped())

	assert.Equal(t, 1, <-q.C())
	assert.True(t, q.Push(5))
	assert.Equal(t, 2, <-q.C())
	assert.Equal(t, 5, <-q.C())
}

func TestBounded_CloseKeepsBuffered(t *testing.T) {
	t.Parallel()

	q := NewBounded[string](0)
	q.Push("a")
	q.Close()
	q.Close()
	assert.False(t, q.Push("b"))

	var got []string
	for v := range q.C() {
		got = append(got, v)
	}
	assert.Equal(t, []string{"a"}, got)
	assert.EqualValues(t, 1, q.Dropped())
}

func TestChannel_ConcurrentEmitNeverBlocks(t *testing.T) {
	t.Parallel()

	ch := NewChannel(8)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ch.Emit(Event{Status: StatusInfo})
			}
		}()
	}
	wg.Wait()
	ch.Close()

	n := 0
	for range ch.C() {
		n++
	}
	assert.Equal(t, 8, n)
	assert.EqualValues(t, 400-8, ch.Dropped())
}

func TestMulti(t *testing.T) {
	t.Parallel()

	var a, b []Status
	m := Multi{
		SinkFunc(func(e Event) { a = append(a, e.Status) }),
		nil,
		SinkFunc(func(e Event) { b = append(b, e.Status) }),
		Discard,
	}
	m.Emit(Event{Status: StatusLeadFound})
	assert.Equal(t, []Status{StatusLeadFound}, a)
	assert.Equal(t, a, b)
}

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusStopped.Terminal())
	assert.True(t, StatusError.Terminal())
	assert.False(t, StatusLeadFound.Terminal())
	assert.False(t, Status("something_new").Terminal())
}

func TestLogSink(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))

	sink.Emit(Event{Status: StatusScrapingReviews, Business: "quiet"})
	sink.Emit(Event{Status: StatusLeadFound, RunID: "r1", Business: "Le Bistrot", Count: 2})
	sink.Emit(Event{Status: StatusError, Message: "browser launch failed"})

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "progress: lead_found", entries[0].Message)
	assert.Equal(t, "Le Bistrot", entries[0].ContextMap()["business"])
	assert.EqualValues(t, 2, entries[0].ContextMap()["count"])
	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
}

func TestRecorder_Since(t *testing.T) {
	t.Parallel()

	r := NewRecorder(3)
	for _, s := range []Status{StatusStarting, StatusAreaStart, StatusCategoryStart, StatusSearching} {
		r.Emit(Event{Status: s})
	}

	events, next := r.Since(0)
	require.Len(t, events, 3)
	assert.Equal(t, StatusAreaStart, events[0].Status)
	assert.Equal(t, 4, next)

	events, next = r.Since(3)
	require.Len(t, events, 1)
	assert.Equal(t, StatusSearching, events[0].Status)
	assert.Equal(t, 4, next)

	events, next = r.Since(10)
	assert.Empty(t, events)
	assert.Equal(t, 4, next)

	assert.False(t, r.Done())
	r.Emit(Event{Status: StatusCompleted})
	assert.True(t, r.Done())
}

func TestRecorder_WrapsInOrder(t *testing.T) {
	t.Parallel()

	r := NewRecorder(4)
	for i := 0; i < 1003; i++ {
		r.Emit(Event{Status: StatusInfo, Count: i})
	}

	events, next := r.Since(0)
	assert.Equal(t, 1003, next)
	require.Len(t, events, 4)
	for i, e := range events {
		assert.Equal(t, 999+i, e.Count)
	}

	events, next = r.Since(1001)
	assert.Equal(t, 1003, next)
	require.Len(t, events, 2)
	assert.Equal(t, 1001, events[0].Count)
	assert.Equal(t, 1002, events[1].Count)

	// Returned slices do not alias the ring.
	events[0].Count = -1
	again, _ := r.Since(1001)
	assert.Equal(t, 1001, again[0].Count)
}
