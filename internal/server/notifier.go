package server

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/tmarais/backchannel/pkg/protocol"
)

// notifyQueueSize bounds the per-session notification backlog. A session
// that cannot drain this many events is considered dead and dropped.
const notifyQueueSize = 256

// Notifier fans typed notifications out to sessions. Delivery to a single
// session preserves the order in which events were published for it; there is
// no ordering guarantee across sessions.
type Notifier struct {
	log zerolog.Logger
	seq atomic.Uint64

	mu     sync.Mutex
	queues map[*Session]chan *protocol.Notification
}

// NewNotifier creates a Notifier.
func NewNotifier(log zerolog.Logger) *Notifier {
	return &Notifier{
		log:    log,
		queues: make(map[*Session]chan *protocol.Notification),
	}
}

// Register starts ordered delivery for a session. Must be called before the
// session can receive notifications.
func (n *Notifier) Register(sess *Session) {
	ch := make(chan *protocol.Notification, notifyQueueSize)

	n.mu.Lock()
	n.queues[sess] = ch
	n.mu.Unlock()

	go func() {
		for notif := range ch {
			sess.sink.SendNotification(notif)
		}
	}()
}

// Unregister stops delivery for a session and drops any backlog.
func (n *Notifier) Unregister(sess *Session) {
	n.mu.Lock()
	ch, ok := n.queues[sess]
	if ok {
		delete(n.queues, sess)
	}
	n.mu.Unlock()
	if ok {
		close(ch)
	}
}

// NextID returns a process-unique notification id.
func (n *Notifier) NextID() string {
	return "n" + strconv.FormatUint(n.seq.Add(1), 10)
}

// Publish queues one notification for one session. A full queue means the
// session stopped draining; the event is dropped and the condition logged,
// the transport's ping/pong handling will reap the connection.
func (n *Notifier) Publish(sess *Session, notif *protocol.Notification) {
	n.mu.Lock()
	ch, ok := n.queues[sess]
	n.mu.Unlock()
	if !ok {
		return
	}

	select {
	case ch <- notif:
	default:
		n.log.Warn().
			Str("session", sess.id).
			Str("notification", notif.Name).
			Msg("Notification queue full, dropping event")
	}
}
