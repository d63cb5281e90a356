package mpsc_test

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/globtrie/mpsc"
)

func TestPushFlushThenDrain(t *testing.T) {
	q := mpsc.New[int](8, 4)
	p := q.NewProducer()
	c := q.NewConsumer()

	require.EqualValues(t, 0, c.TryCount())

	p.Push(1)
	p.Push(2)
	require.EqualValues(t, 0, c.TryCount(), "batch of 4 not yet full, nothing published without Flush")

	p.Flush()
	n := c.TryCount()
	require.EqualValues(t, 2, n)

	got := make([]int, 0, n)
	for i := uint64(0); i < n; i++ {
		got = append(got, c.Read())
	}
	require.Equal(t, []int{1, 2}, got)
}

func TestBatchPublishesAutomatically(t *testing.T) {
	q := mpsc.New[int](16, 4)
	p := q.NewProducer()
	c := q.NewConsumer()

	for i := 0; i < 4; i++ {
		p.Push(i)
	}

	n := c.Count()
	require.EqualValues(t, 4, n)
	for i := 0; i < 4; i++ {
		require.Equal(t, i, c.Read())
	}
}

func TestChainedReaderTrailsAcknowledge(t *testing.T) {
	q := mpsc.New[int](16, 1)
	p := q.NewProducer()
	consumer := q.NewConsumer()
	router := consumer.NewReader()

	p.Push(10)
	p.Push(11)

	require.EqualValues(t, 2, consumer.Count())
	require.EqualValues(t, 0, router.TryCount(), "router must not see items the consumer hasn't acknowledged")

	require.Equal(t, 10, consumer.Read())
	require.Equal(t, 11, consumer.Read())
	consumer.Acknowledge()

	require.EqualValues(t, 2, router.Count())
	require.Equal(t, 10, router.Read())
	require.Equal(t, 11, router.Read())
}

func TestConcurrentProducersAllItemsDelivered(t *testing.T) {
	const producers = 8
	const perProducer = 200

	q := mpsc.New[int](producers*perProducer, 16)
	c := q.NewConsumer()

	var wg sync.WaitGroup
	for pi := 0; pi < producers; pi++ {
		wg.Add(1)
		go func(pi int) {
			defer wg.Done()
			p := q.NewProducer()
			for i := 0; i < perProducer; i++ {
				p.Push(pi*perProducer + i)
			}
			p.Flush()
		}(pi)
	}
	wg.Wait()

	got := make([]int, 0, producers*perProducer)
	for len(got) < producers*perProducer {
		n := c.Count()
		for i := uint64(0); i < n; i++ {
			got = append(got, c.Read())
		}
	}

	sort.Ints(got)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}
