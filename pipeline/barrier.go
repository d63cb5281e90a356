package pipeline

import "sync"

// quiescentRoundsToStop is how many consecutive fully-idle rounds the
// barrier must observe before telling every participant to stop.
const quiescentRoundsToStop = 2

// Barrier is a cyclic rendezvous for the pipeline's quiescence detection:
// every consumer plus the bubble router arrives once per round reporting
// whether it did any work, and the barrier tells all of them whether to run
// another round. It has no reusable analog in the corpus's channel-based
// worker pools, so it is built directly on sync.Cond rather than borrowed
// from a library.
type Barrier struct {
	mu          sync.Mutex
	cond        *sync.Cond
	parties     int
	waiting     int
	generation  uint64
	anyActive   bool
	quietRounds int
	stop        bool
}

// NewBarrier creates a Barrier for the given number of participants.
func NewBarrier(parties int) *Barrier {
	b := &Barrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Arrive reports whether the caller did any work since its last Arrive,
// blocks until every participant has arrived for this round, and returns
// true if another round should run, false once two consecutive rounds
// across all participants were quiescent.
func (b *Barrier) Arrive(active bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	gen := b.generation
	if active {
		b.anyActive = true
	}
	b.waiting++

	if b.waiting < b.parties {
		for gen == b.generation {
			b.cond.Wait()
		}
		return !b.stop
	}

	if b.anyActive {
		b.quietRounds = 0
	} else {
		b.quietRounds++
	}
	b.stop = b.quietRounds >= quiescentRoundsToStop
	b.anyActive = false
	b.waiting = 0
	b.generation++
	b.cond.Broadcast()

	return !b.stop
}
