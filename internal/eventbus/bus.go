// Package eventbus publishes signed commit events to NATS JetStream for
// downstream projection consumption (spec.md §6.5, §6.2). Adapted from the
// teacher's internal/eventbus.Bus: the JetStream attach/publish/ack-logging
// shape is kept, but the generic hook-event handler chain (Handler,
// Dispatch, per-event-type subject routing) is dropped — chronicle emits
// exactly one envelope per batch with no local subscriber fan-out to
// coordinate (spec.md §6.5 "Emitted once per batch, exactly").
package eventbus

import (
	"fmt"
	"log"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/chronicleworks/chronicle-tp/internal/commitevent"
)

// Subject is the JetStream subject every commit event is published to.
// A single subject is sufficient because consumers distinguish outcomes by
// the envelope's own Status field rather than by routing.
const Subject = "chronicle.commits"

// Bus publishes commit event envelopes to a JetStream stream.
type Bus struct {
	js     nats.JetStreamContext
	stream string
	mu     sync.RWMutex
}

// New creates a Bus with no JetStream context attached. Publish calls are
// no-ops until SetJetStream is called, matching the teacher's
// attach-later pattern for daemons that start accepting batches before
// their NATS connection is up.
func New(stream string) *Bus {
	return &Bus{stream: stream}
}

// SetJetStream attaches a JetStream context for event publishing.
func (b *Bus) SetJetStream(js nats.JetStreamContext) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.js = js
}

// JetStreamEnabled returns true if JetStream publishing is configured.
func (b *Bus) JetStreamEnabled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.js != nil
}

// EnsureStream creates the commit-event stream if it does not already
// exist. Idempotent: safe to call on every startup.
func (b *Bus) EnsureStream() error {
	b.mu.RLock()
	js := b.js
	b.mu.RUnlock()
	if js == nil {
		return fmt.Errorf("eventbus: JetStream not configured")
	}

	if _, err := js.StreamInfo(b.stream); err == nil {
		return nil
	}

	_, err := js.AddStream(&nats.StreamConfig{
		Name:     b.stream,
		Subjects: []string{Subject},
	})
	if err != nil {
		return fmt.Errorf("eventbus: creating stream %s: %w", b.stream, err)
	}
	return nil
}

// Publish emits a signed commit event envelope exactly once. Returns the
// JetStream sequence number assigned, for callers that want to log or
// assert on it.
func (b *Bus) Publish(env *commitevent.Envelope) (uint64, error) {
	b.mu.RLock()
	js := b.js
	b.mu.RUnlock()

	if js == nil {
		return 0, fmt.Errorf("eventbus: JetStream not configured")
	}

	data, err := commitevent.Marshal(env)
	if err != nil {
		return 0, fmt.Errorf("eventbus: marshaling commit event: %w", err)
	}

	ack, err := js.Publish(Subject, data)
	if err != nil {
		return 0, fmt.Errorf("eventbus: publishing commit event for batch %s: %w", env.BatchID, err)
	}
	log.Printf("eventbus: published commit event for batch %s (stream=%s seq=%d status=%s)",
		env.BatchID, ack.Stream, ack.Sequence, env.Status)
	return ack.Sequence, nil
}

// Projection is the subset of projection.Store that Subscribe drives.
// Declared locally rather than importing internal/projection, since that
// package has no reason to depend back on eventbus.
type Projection interface {
	Apply(env *commitevent.Envelope) error
}

// Subscribe attaches a durable JetStream consumer named durableName and
// applies every delivered commit event to store, acking only after Apply
// succeeds. store.Apply must be idempotent (spec.md §6.5's delivery is
// at-least-once): a redelivered envelope after a crash between Apply and
// ack is expected, not an error.
func (b *Bus) Subscribe(durableName string, store Projection) (*nats.Subscription, error) {
	b.mu.RLock()
	js := b.js
	b.mu.RUnlock()

	if js == nil {
		return nil, fmt.Errorf("eventbus: JetStream not configured")
	}

	return js.Subscribe(Subject, func(msg *nats.Msg) {
		env, err := commitevent.Unmarshal(msg.Data)
		if err != nil {
			log.Printf("eventbus: dropping undecodable commit event: %v", err)
			return
		}
		if err := store.Apply(env); err != nil {
			log.Printf("eventbus: projection apply failed for batch %s: %v", env.BatchID, err)
			return
		}
		if err := msg.Ack(); err != nil {
			log.Printf("eventbus: ack failed for batch %s: %v", env.BatchID, err)
		}
	}, nats.Durable(durableName), nats.ManualAck())
}
