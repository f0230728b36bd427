package eventbus

import (
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/chronicleworks/chronicle-tp/internal/commitevent"
	"github.com/chronicleworks/chronicle-tp/internal/signing"
)

// startTestNATS starts an embedded NATS server with JetStream for testing,
// grounded on the teacher's internal/eventbus startTestNATS helper.
func startTestNATS(t *testing.T) (nats.JetStreamContext, func()) {
	t.Helper()
	dir := t.TempDir()
	opts := &natsserver.Options{
		Port:               -1,
		JetStream:          true,
		JetStreamMaxMemory: 256 << 20,
		JetStreamMaxStore:  256 << 20,
		StoreDir:           dir,
		NoLog:              true,
		NoSigs:             true,
	}
	ns, err := natsserver.NewServer(opts)
	require.NoError(t, err)
	go ns.Start()
	require.True(t, ns.ReadyForConnections(5*time.Second))

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)

	js, err := nc.JetStream()
	require.NoError(t, err)

	cleanup := func() {
		nc.Drain()
		nc.Close()
		ns.Shutdown()
	}
	return js, cleanup
}

type fakeProjection struct {
	mu      sync.Mutex
	applied []*commitevent.Envelope
}

func (f *fakeProjection) Apply(env *commitevent.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, env)
	return nil
}

func (f *fakeProjection) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.applied)
}

func testEnvelope(t *testing.T) *commitevent.Envelope {
	t.Helper()
	key, err := signing.GeneratePrivateKey()
	require.NoError(t, err)
	env, err := commitevent.Build(key, "batch-1", commitevent.StatusCommitted, []byte(`{"@graph":[]}`), []string{"a7b3c900"}, nil, "")
	require.NoError(t, err)
	return env
}

func TestJetStreamEnabled(t *testing.T) {
	bus := New("CHRONICLE_COMMITS")
	if bus.JetStreamEnabled() {
		t.Error("expected JetStreamEnabled=false before SetJetStream")
	}

	js, cleanup := startTestNATS(t)
	defer cleanup()

	bus.SetJetStream(js)
	if !bus.JetStreamEnabled() {
		t.Error("expected JetStreamEnabled=true after SetJetStream")
	}
}

func TestPublishWithoutJetStreamErrors(t *testing.T) {
	bus := New("CHRONICLE_COMMITS")
	_, err := bus.Publish(testEnvelope(t))
	if err == nil {
		t.Error("expected error publishing with no JetStream configured")
	}
}

func TestEnsureStreamThenPublish(t *testing.T) {
	js, cleanup := startTestNATS(t)
	defer cleanup()

	bus := New("CHRONICLE_COMMITS")
	bus.SetJetStream(js)

	require.NoError(t, bus.EnsureStream())
	// Idempotent: calling twice must not error.
	require.NoError(t, bus.EnsureStream())

	sub, err := js.SubscribeSync(Subject)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	env := testEnvelope(t)
	seq, err := bus.Publish(env)
	require.NoError(t, err)
	require.Greater(t, seq, uint64(0))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)

	got, err := commitevent.Unmarshal(msg.Data)
	require.NoError(t, err)
	require.Equal(t, env.BatchID, got.BatchID)
	require.True(t, commitevent.Verify(got))
}

func TestSubscribeAppliesToProjection(t *testing.T) {
	js, cleanup := startTestNATS(t)
	defer cleanup()

	bus := New("CHRONICLE_COMMITS")
	bus.SetJetStream(js)
	require.NoError(t, bus.EnsureStream())

	store := &fakeProjection{}
	sub, err := bus.Subscribe("chronicle-projection", store)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	env := testEnvelope(t)
	_, err = bus.Publish(env)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return store.count() == 1 }, 2*time.Second, 10*time.Millisecond)
}
