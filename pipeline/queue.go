package pipeline

import (
	"github.com/pkg/errors"

	"github.com/outofforest/globtrie/key"
	"github.com/outofforest/globtrie/mpsc"
	"github.com/outofforest/globtrie/service"
	"github.com/outofforest/globtrie/toplevel"
)

// consumerQueue bundles one consumer thread's inbox with the services it
// owns. A consumer may own more than one service when n_services exceeds
// n_consumers, so incoming keys are dispatched by their current TLT owner
// rather than assumed to belong to a single service.
type consumerQueue struct {
	q        *mpsc.Queue[key.Key]
	consumer *mpsc.Consumer[key.Key]
	services map[toplevel.ServiceID]*service.Service
}

func newConsumerQueue(queueSize uint64, services map[toplevel.ServiceID]*service.Service) *consumerQueue {
	q := mpsc.New[key.Key](queueSize, 0)
	return &consumerQueue{
		q:        q,
		consumer: q.NewConsumer(),
		services: services,
	}
}

func (cq *consumerQueue) newProducer() *mpsc.Producer[key.Key] {
	return cq.q.NewProducer()
}

// drainOnce processes every currently-available item in the queue: keys
// whose current TLT owner is not among this consumer's services are
// forwarded to the bubble queue; the rest are inserted, and anything the
// insert itself ejects is forwarded too.
func (cq *consumerQueue) drainOnce(tlt *toplevel.TopLevelTree, bubble *mpsc.Producer[key.Key]) (drained, forwarded uint64, err error) {
	n := cq.consumer.TryCount()
	for i := uint64(0); i < n; i++ {
		k := cq.consumer.Read()

		owner, lookupErr := tlt.Lookup(k)
		if lookupErr != nil {
			return drained, forwarded, errors.WithStack(lookupErr)
		}

		svc, ok := cq.services[owner]
		if !ok {
			bubble.Push(k)
			forwarded++
			continue
		}

		ejected, insertErr := svc.Insert(k)
		if insertErr != nil {
			return drained, forwarded, insertErr
		}
		for _, ek := range ejected {
			bubble.Push(ek)
			forwarded++
		}
		drained++
	}
	cq.consumer.Acknowledge()
	return drained, forwarded, nil
}

// bubbleQueue is the single shared queue every consumer forwards
// misrouted/ejected keys into; the bubble router is its one consumer.
type bubbleQueue struct {
	q        *mpsc.Queue[key.Key]
	consumer *mpsc.Consumer[key.Key]
}

func newBubbleQueue(queueSize uint64) *bubbleQueue {
	q := mpsc.New[key.Key](queueSize, 0)
	return &bubbleQueue{q: q, consumer: q.NewConsumer()}
}

func (bq *bubbleQueue) newProducer() *mpsc.Producer[key.Key] {
	return bq.q.NewProducer()
}
