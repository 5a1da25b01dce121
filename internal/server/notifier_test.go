package server

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tmarais/backchannel/pkg/protocol"
)

func TestNotifierDeliversInPublishOrder(t *testing.T) {
	n := NewNotifier(zerolog.Nop())
	sink := &fakeSink{}
	sess := &Session{id: "s1", sink: sink}
	n.Register(sess)
	defer n.Unregister(sess)

	const count = 100
	for i := 0; i < count; i++ {
		n.Publish(sess, protocol.NewNotification(fmt.Sprintf("n%03d", i), protocol.NotifPhaseUpdate, "g1", nil))
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(sink.notifications()) < count {
		time.Sleep(5 * time.Millisecond)
	}
	got := sink.notifications()
	require.Len(t, got, count)
	for i, notif := range got {
		require.Equal(t, fmt.Sprintf("n%03d", i), notif.NotificationID)
	}
}

func TestNotifierIsolatesSessions(t *testing.T) {
	n := NewNotifier(zerolog.Nop())
	sinkA, sinkB := &fakeSink{}, &fakeSink{}
	a := &Session{id: "a", sink: sinkA}
	b := &Session{id: "b", sink: sinkB}
	n.Register(a)
	n.Register(b)
	defer n.Unregister(a)
	defer n.Unregister(b)

	n.Publish(a, protocol.NewNotification("n1", protocol.NotifPhaseUpdate, "g1", nil))

	sinkA.waitNotifs(t, 1)
	require.Empty(t, sinkB.notifications())
}

func TestNotifierPublishAfterUnregisterIsDropped(t *testing.T) {
	n := NewNotifier(zerolog.Nop())
	sink := &fakeSink{}
	sess := &Session{id: "s1", sink: sink}
	n.Register(sess)
	n.Unregister(sess)

	// Must not panic or deliver.
	n.Publish(sess, protocol.NewNotification("n1", protocol.NotifPhaseUpdate, "g1", nil))
	time.Sleep(20 * time.Millisecond)
	require.Empty(t, sink.notifications())
}

func TestNotifierIDsAreUnique(t *testing.T) {
	n := NewNotifier(zerolog.Nop())
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := n.NextID()
		require.False(t, seen[id])
		seen[id] = true
	}
}
