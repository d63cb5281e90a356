// Package pipeline wires the producer, consumer, and bubble-router
// goroutines together: producers read records and route them to a consumer
// by current TLT ownership, consumers insert into their owned services and
// forward anything that no longer belongs to them, and the bubble router
// re-routes those forwarded keys until the whole system goes quiet.
package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/outofforest/parallel"

	"github.com/outofforest/globtrie/config"
	"github.com/outofforest/globtrie/globtrie"
	"github.com/outofforest/globtrie/ingest"
	"github.com/outofforest/globtrie/key"
	"github.com/outofforest/globtrie/mpsc"
	"github.com/outofforest/globtrie/service"
	"github.com/outofforest/globtrie/toplevel"
)

// ConsumerStats reports one consumer's activity across a run.
type ConsumerStats struct {
	Processed uint64
	Forwarded uint64
	Rounds    uint64
}

// Stats summarizes one Run.
type Stats struct {
	RecordsRead      uint64
	Consumers        []ConsumerStats
	BubbleForwarded  uint64
	QuiescenceRounds uint64
}

// Run drives one input's producers, consumers, and bubble router to
// quiescence: every record from every stream has been inserted into the
// service that currently owns its key, and the bubble queue is empty.
// Services is the full per-service trie set, returned so callers can dump
// or validate it after Run completes.
func Run(
	ctx context.Context,
	cfg config.Config,
	tlt *toplevel.TopLevelTree,
	streams []ingest.RecordStream,
) (Stats, []*service.Service, error) {
	nConsumers := int(cfg.NConsumers)

	byConsumer, allServices, consumerOf, err := buildServices(tlt, cfg)
	if err != nil {
		return Stats{}, nil, err
	}

	consumerQueues := make([]*consumerQueue, nConsumers)
	for i := range consumerQueues {
		consumerQueues[i] = newConsumerQueue(uint64(cfg.QueueSize), byConsumer[i])
	}
	bubble := newBubbleQueue(uint64(cfg.QueueSize))

	barrier := NewBarrier(nConsumers + 1)

	var recordsRead uint64
	var bubbleForwarded uint64
	var quiescenceRounds uint64
	stats := make([]ConsumerStats, nConsumers)

	group := parallel.NewGroup(ctx)

	producerDone := make(chan struct{})
	var producersFinished int64

	for i, stream := range streams {
		i, stream := i, stream

		producerTo := make([]*mpsc.Producer[key.Key], nConsumers)
		for c := range producerTo {
			producerTo[c] = consumerQueues[c].newProducer()
		}

		group.Spawn(fmt.Sprintf("producer-%02d", i), parallel.Continue, func(ctx context.Context) error {
			defer stream.Close()
			defer func() {
				for _, p := range producerTo {
					p.Flush()
				}
				if atomic.AddInt64(&producersFinished, 1) == int64(len(streams)) {
					close(producerDone)
				}
			}()

			for {
				if err := ctx.Err(); err != nil {
					return errors.WithStack(err)
				}

				k, ok, err := stream.Next()
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}

				atomic.AddUint64(&recordsRead, 1)
				owner, err := tlt.Lookup(k)
				if err != nil {
					return err
				}
				producerTo[consumerOf(owner)].Push(k)
			}
		})
	}

	bubbleTo := make([]*mpsc.Producer[key.Key], nConsumers)
	for c := range bubbleTo {
		bubbleTo[c] = consumerQueues[c].newProducer()
	}

	for c := 0; c < nConsumers; c++ {
		c := c
		cq := consumerQueues[c]
		toBubble := bubble.newProducer()

		group.Spawn(fmt.Sprintf("consumer-%02d", c), parallel.Continue, func(ctx context.Context) error {
			for {
				select {
				case <-producerDone:
					goto quiescing
				default:
				}
				if ctx.Err() != nil {
					return errors.WithStack(ctx.Err())
				}

				drained, forwarded, err := cq.drainOnce(tlt, toBubble)
				if err != nil {
					return err
				}
				atomic.AddUint64(&stats[c].Processed, drained)
				atomic.AddUint64(&stats[c].Forwarded, forwarded)
				toBubble.Flush()
			}

		quiescing:
			for {
				drained, forwarded, err := cq.drainOnce(tlt, toBubble)
				if err != nil {
					return err
				}
				toBubble.Flush()
				atomic.AddUint64(&stats[c].Processed, drained)
				atomic.AddUint64(&stats[c].Forwarded, forwarded)
				atomic.AddUint64(&stats[c].Rounds, 1)

				if !barrier.Arrive(drained+forwarded > 0) {
					return nil
				}
				if ctx.Err() != nil {
					return errors.WithStack(ctx.Err())
				}
			}
		})
	}

	group.Spawn("bubble-router", parallel.Continue, func(ctx context.Context) error {
		reader := bubble.consumer

		<-producerDone

		for {
			var roundForwarded uint64

			for {
				n := reader.TryCount()
				if n == 0 {
					break
				}
				for i := uint64(0); i < n; i++ {
					k := reader.Read()
					owner, err := tlt.Lookup(k)
					if err != nil {
						return err
					}
					bubbleTo[consumerOf(owner)].Push(k)
				}
				reader.Acknowledge()
				roundForwarded += n
			}
			for _, p := range bubbleTo {
				p.Flush()
			}
			atomic.AddUint64(&bubbleForwarded, roundForwarded)
			atomic.AddUint64(&quiescenceRounds, 1)

			if !barrier.Arrive(roundForwarded > 0) {
				return nil
			}
			if ctx.Err() != nil {
				return errors.WithStack(ctx.Err())
			}
		}
	})

	if err := group.Wait(); err != nil {
		return Stats{}, nil, err
	}

	return Stats{
		RecordsRead:      atomic.LoadUint64(&recordsRead),
		Consumers:        stats,
		BubbleForwarded:  atomic.LoadUint64(&bubbleForwarded),
		QuiescenceRounds: atomic.LoadUint64(&quiescenceRounds),
	}, allServices, nil
}

// buildServices creates one Service per service ID, rooted at the prefix
// the TLT already seeded it with, and groups them by owning consumer:
// service s belongs to consumer s / ceil(n_services / n_consumers).
func buildServices(tlt *toplevel.TopLevelTree, cfg config.Config) (
	byConsumer []map[toplevel.ServiceID]*service.Service,
	all []*service.Service,
	consumerOf func(toplevel.ServiceID) int,
	err error,
) {
	nServices := tlt.NServices()
	perConsumer := ceilDiv(nServices, cfg.NConsumers)

	consumerOf = func(s toplevel.ServiceID) int {
		return int(uint32(s) / perConsumer)
	}

	alloc := globtrie.NewNodeAllocator(cfg.DefaultGlobCapacity)
	trieCfg := globtrie.Config{
		Alloc:           alloc,
		DefaultCapacity: int(cfg.DefaultGlobCapacity),
		FactorBits:      cfg.FactorBits,
		BubbleThreshold: cfg.BubbleThreshold,
		LocalFit:        cfg.LocalFit,
		GlobalFit:       cfg.GlobalFit,
	}

	byConsumer = make([]map[toplevel.ServiceID]*service.Service, cfg.NConsumers)
	for c := range byConsumer {
		byConsumer[c] = map[toplevel.ServiceID]*service.Service{}
	}
	all = make([]*service.Service, 0, nServices)

	for s := uint32(0); s < nServices; s++ {
		id := toplevel.ServiceID(s)
		root, seedErr := tlt.SeedPrefix(id)
		if seedErr != nil {
			return nil, nil, nil, seedErr
		}

		// Each service gets its own allocator: services run on different
		// consumer goroutines and a NodeAllocator serves one trie only.
		svcCfg := trieCfg
		svcCfg.Alloc = globtrie.NewNodeAllocator(cfg.DefaultGlobCapacity)
		svc := service.New(tlt, id, root, svcCfg)
		all = append(all, svc)
		byConsumer[consumerOf(id)][id] = svc
	}

	return byConsumer, all, consumerOf, nil
}

func ceilDiv(a, b uint32) uint32 {
	if b == 0 {
		return a
	}
	return (a + b - 1) / b
}
