package host

import (
	"sync"

	"github.com/chronicleworks/chronicle-tp/internal/apply"
	"github.com/chronicleworks/chronicle-tp/internal/commitevent"
	"github.com/chronicleworks/chronicle-tp/internal/policy"
	"github.com/chronicleworks/chronicle-tp/internal/signing"
)

// Job is one batch submission: the wire header and body bytes apply.Run
// consumes directly.
type Job struct {
	HeaderJSON []byte
	BodyJSON   []byte
}

// Result pairs a Job with what running it produced.
type Result struct {
	Job      Job
	Envelope *commitevent.Envelope
	Outcome  *apply.Outcome
}

// Scheduler runs batches against a Store, respecting spec.md §5's
// concurrency rule: batches may run in parallel only if their footprints
// are disjoint, and any that overlap must be serialized. It is not itself
// a consensus mechanism -- spec.md §1 puts that out of scope -- it exists
// to demonstrate the rule and give the CLI something to submit batches
// through.
type Scheduler struct {
	store    *Store
	nodeKey  *signing.PrivateKey
	decision policy.Decision
}

// NewScheduler builds a Scheduler over store, signing commit events with
// nodeKey and consulting decision for the policy hook (spec.md §6.4).
func NewScheduler(store *Store, nodeKey *signing.PrivateKey, decision policy.Decision) *Scheduler {
	return &Scheduler{store: store, nodeKey: nodeKey, decision: decision}
}

// RunOne runs a single job to completion and, if it committed, applies its
// writes to the store.
func (s *Scheduler) RunOne(job Job) Result {
	env, out := apply.Run(s.store, s.nodeKey, job.HeaderJSON, job.BodyJSON, s.decision)
	if out.Committed() {
		s.store.Apply(writesToMap(out.Writes))
	}
	return Result{Job: job, Envelope: env, Outcome: out}
}

// RunConcurrent partitions jobs into waves of mutually footprint-disjoint
// batches (spec.md §5), runs each wave's jobs concurrently, and applies
// writes between waves so a later wave always reads the prior wave's
// results. Overlapping jobs land in different waves and are serialized by
// construction. Results are returned in the original job order regardless
// of which wave a job landed in.
func (s *Scheduler) RunConcurrent(jobs []Job) []Result {
	results := make([]Result, len(jobs))
	waves, unknownFootprint := partitionByFootprint(jobs)

	for _, wave := range waves {
		var wg sync.WaitGroup
		for _, idx := range wave {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				results[idx] = s.RunOne(jobs[idx])
			}(idx)
		}
		wg.Wait()
	}

	// Jobs whose footprint couldn't be computed (malformed header/body)
	// are run last, serially: apply.Run itself reports the MalformedPayload
	// outcome, there's nothing to serialize against.
	for _, idx := range unknownFootprint {
		results[idx] = s.RunOne(jobs[idx])
	}

	return results
}

func writesToMap(writes []apply.AddressedRecord) map[string][]byte {
	out := make(map[string][]byte, len(writes))
	for _, w := range writes {
		out[w.Address] = []byte(w.JSON)
	}
	return out
}

// partitionByFootprint greedily assigns each job to the earliest wave whose
// footprint-so-far doesn't intersect it, preserving submission order within
// a wave. Jobs whose footprint can't be computed (decode failure) are
// returned separately rather than blocking partitioning.
func partitionByFootprint(jobs []Job) (waves [][]int, unknownFootprint []int) {
	type waveState struct {
		indices   []int
		addresses map[string]struct{}
	}
	var states []*waveState

	for i, job := range jobs {
		addrs, err := computeFootprint(job.BodyJSON)
		if err != nil {
			unknownFootprint = append(unknownFootprint, i)
			continue
		}

		placed := false
		for _, st := range states {
			if !intersects(st.addresses, addrs) {
				st.indices = append(st.indices, i)
				for _, a := range addrs {
					st.addresses[a] = struct{}{}
				}
				placed = true
				break
			}
		}
		if !placed {
			st := &waveState{addresses: make(map[string]struct{}, len(addrs))}
			st.indices = append(st.indices, i)
			for _, a := range addrs {
				st.addresses[a] = struct{}{}
			}
			states = append(states, st)
		}
	}

	waves = make([][]int, len(states))
	for i, st := range states {
		waves[i] = st.indices
	}
	return waves, unknownFootprint
}

func intersects(set map[string]struct{}, addrs []string) bool {
	for _, a := range addrs {
		if _, ok := set[a]; ok {
			return true
		}
	}
	return false
}

func computeFootprint(bodyJSON []byte) ([]string, error) {
	doc, err := apply.ParseDocument(bodyJSON)
	if err != nil {
		return nil, err
	}
	batch, err := apply.DecodeOperations(doc)
	if err != nil {
		return nil, err
	}
	return apply.Footprint(batch)
}
