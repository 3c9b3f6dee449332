// Package notification fans session events out to watch streams.
package notification

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	pacerv1 "github.com/osa030/boxbreath/internal/api/pacerv1"
)

const (
	// DefaultSendTimeout bounds how long one watcher may take to accept a
	// notification.
	DefaultSendTimeout = 500 * time.Millisecond

	// MaxConsecutiveFailures is the number of failed or timed-out sends in
	// a row after which a watcher is dropped.
	MaxConsecutiveFailures = 3
)

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(*pacerv1.Notification) error
}

// Subscription is one registered watcher.
type Subscription struct {
	id       string
	stream   Stream
	types    map[pacerv1.NotificationType]bool // nil accepts every type
	failures atomic.Int32

	done    chan struct{}
	once    sync.Once
	evicted atomic.Bool
}

// ID returns the subscription id.
func (s *Subscription) ID() string {
	return s.id
}

// Done is closed when the subscription ends for any reason.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Evicted reports whether the watcher was dropped for failing sends.
func (s *Subscription) Evicted() bool {
	return s.evicted.Load()
}

func (s *Subscription) accepts(t pacerv1.NotificationType) bool {
	return s.types == nil || s.types[t]
}

func (s *Subscription) end() {
	s.once.Do(func() { close(s.done) })
}

// Manager keeps the watcher set and the notification sequence counter.
type Manager struct {
	mu          sync.RWMutex
	subs        map[string]*Subscription
	sequenceNo  atomic.Uint64
	sendTimeout time.Duration
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subs:        make(map[string]*Subscription),
		sendTimeout: DefaultSendTimeout,
	}
}

// Subscribe registers a watcher. With no types every notification is
// delivered; otherwise only the listed types are.
func (m *Manager) Subscribe(stream Stream, types ...pacerv1.NotificationType) *Subscription {
	sub := &Subscription{
		id:     uuid.New().String(),
		stream: stream,
		done:   make(chan struct{}),
	}
	if len(types) > 0 {
		sub.types = make(map[pacerv1.NotificationType]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}

	m.mu.Lock()
	m.subs[sub.id] = sub
	count := len(m.subs)
	m.mu.Unlock()

	zlog.Debug().Str("subscription_id", sub.id).Int("subscribers", count).Msg("watcher subscribed")
	return sub
}

// NextSequenceNo returns the next sequence number.
func (m *Manager) NextSequenceNo() uint64 {
	return m.sequenceNo.Add(1)
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (m *Manager) Unsubscribe(id string) {
	m.mu.Lock()
	sub, ok := m.subs[id]
	delete(m.subs, id)
	m.mu.Unlock()

	if ok {
		sub.end()
		zlog.Debug().Str("subscription_id", id).Msg("watcher unsubscribed")
	}
}

// Broadcast stamps the notification with the next sequence number and
// sends it to every watcher that accepts its type. Sends run in parallel,
// each bounded by the send timeout. It returns the number of watchers
// that received the notification.
func (m *Manager) Broadcast(n *pacerv1.Notification) int {
	n.SequenceNo = m.NextSequenceNo()

	m.mu.RLock()
	targets := make([]*Subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		if sub.accepts(n.Type) {
			targets = append(targets, sub)
		}
	}
	m.mu.RUnlock()

	var delivered atomic.Int32
	var wg sync.WaitGroup
	for _, sub := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.deliver(sub, n) {
				sub.failures.Store(0)
				delivered.Add(1)
				return
			}
			if sub.failures.Add(1) >= MaxConsecutiveFailures {
				m.evict(sub)
			}
		}()
	}
	wg.Wait()

	return int(delivered.Load())
}

func (m *Manager) deliver(sub *Subscription, n *pacerv1.Notification) bool {
	result := make(chan error, 1)
	go func() {
		result <- sub.stream.Send(n)
	}()

	timer := time.NewTimer(m.sendTimeout)
	defer timer.Stop()

	select {
	case err := <-result:
		if err != nil {
			zlog.Debug().Err(err).Str("subscription_id", sub.id).Msg("notification send failed")
			return false
		}
		return true
	case <-timer.C:
		zlog.Debug().Str("subscription_id", sub.id).Uint64("sequence_no", n.SequenceNo).Msg("notification send timed out")
		return false
	}
}

func (m *Manager) evict(sub *Subscription) {
	m.mu.Lock()
	_, ok := m.subs[sub.id]
	delete(m.subs, sub.id)
	m.mu.Unlock()

	if !ok {
		return
	}
	sub.evicted.Store(true)
	sub.end()
	zlog.Warn().
		Str("subscription_id", sub.id).
		Int32("failures", sub.failures.Load()).
		Msg("dropping unresponsive watcher")
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}

// Close ends every subscription.
func (m *Manager) Close() {
	m.mu.Lock()
	subs := m.subs
	m.subs = make(map[string]*Subscription)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.end()
	}
}
