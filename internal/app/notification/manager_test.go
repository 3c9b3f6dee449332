package notification

import (
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pacerv1 "github.com/osa030/boxbreath/internal/api/pacerv1"
)

type recordingStream struct {
	mu       sync.Mutex
	received []*pacerv1.Notification
	err      error
	block    chan struct{}
}

func (s *recordingStream) Send(n *pacerv1.Notification) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.received = append(s.received, n)
	return nil
}

func (s *recordingStream) types() []pacerv1.NotificationType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]pacerv1.NotificationType, len(s.received))
	for i, n := range s.received {
		out[i] = n.Type
	}
	return out
}

func TestManager_BroadcastStampsSequence(t *testing.T) {
	m := NewManager()
	a := &recordingStream{}
	b := &recordingStream{}
	m.Subscribe(a)
	m.Subscribe(b)
	assert.Equal(t, 2, m.SubscriberCount())

	assert.Equal(t, 2, m.Broadcast(&pacerv1.Notification{Type: pacerv1.NotificationTypeCue}))
	assert.Equal(t, 2, m.Broadcast(&pacerv1.Notification{Type: pacerv1.NotificationTypeStats}))

	require.Len(t, a.received, 2)
	require.Len(t, b.received, 2)
	assert.Equal(t, uint64(1), a.received[0].SequenceNo)
	assert.Equal(t, uint64(2), a.received[1].SequenceNo)
	assert.Equal(t, uint64(3), m.NextSequenceNo())
}

func TestManager_TypeFilter(t *testing.T) {
	m := NewManager()
	all := &recordingStream{}
	states := &recordingStream{}
	m.Subscribe(all)
	m.Subscribe(states, pacerv1.NotificationTypeChangeState, pacerv1.NotificationTypeChangePhase)

	for _, typ := range []pacerv1.NotificationType{
		pacerv1.NotificationTypeChangeState,
		pacerv1.NotificationTypeCue,
		pacerv1.NotificationTypeChangePhase,
		pacerv1.NotificationTypeStats,
	} {
		m.Broadcast(&pacerv1.Notification{Type: typ})
	}

	assert.Len(t, all.types(), 4)
	assert.Equal(t, []pacerv1.NotificationType{
		pacerv1.NotificationTypeChangeState,
		pacerv1.NotificationTypeChangePhase,
	}, states.types())
}

func TestManager_Unsubscribe(t *testing.T) {
	m := NewManager()
	s := &recordingStream{}
	sub := m.Subscribe(s)
	m.Unsubscribe(sub.ID())
	m.Unsubscribe(sub.ID())

	assert.Zero(t, m.Broadcast(&pacerv1.Notification{Type: pacerv1.NotificationTypeCue}))
	assert.Empty(t, s.types())
	assert.Zero(t, m.SubscriberCount())

	select {
	case <-sub.Done():
	default:
		t.Fatal("subscription should be done after unsubscribe")
	}
	assert.False(t, sub.Evicted())
}

func TestManager_SlowSubscriberDoesNotBlock(t *testing.T) {
	m := NewManager()
	m.sendTimeout = 20 * time.Millisecond

	slow := &recordingStream{block: make(chan struct{})}
	defer close(slow.block)
	fast := &recordingStream{}
	m.Subscribe(slow)
	m.Subscribe(fast)

	start := time.Now()
	delivered := m.Broadcast(&pacerv1.Notification{Type: pacerv1.NotificationTypeChangePhase})
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, delivered)
	assert.Len(t, fast.types(), 1)
}

func TestManager_EvictsAfterConsecutiveFailures(t *testing.T) {
	m := NewManager()
	failing := &recordingStream{err: errors.New("stream closed")}
	healthy := &recordingStream{}
	sub := m.Subscribe(failing)
	m.Subscribe(healthy)

	for i := 0; i < MaxConsecutiveFailures-1; i++ {
		m.Broadcast(&pacerv1.Notification{Type: pacerv1.NotificationTypeStats})
	}
	assert.Equal(t, 2, m.SubscriberCount())
	assert.False(t, sub.Evicted())

	m.Broadcast(&pacerv1.Notification{Type: pacerv1.NotificationTypeStats})
	assert.Equal(t, 1, m.SubscriberCount())
	assert.True(t, sub.Evicted())
	select {
	case <-sub.Done():
	default:
		t.Fatal("evicted subscription should be done")
	}
	assert.Len(t, healthy.types(), MaxConsecutiveFailures)
}

func TestManager_SuccessResetsFailureCount(t *testing.T) {
	m := NewManager()
	s := &recordingStream{}
	sub := m.Subscribe(s)

	for i := 0; i < MaxConsecutiveFailures*2; i++ {
		s.mu.Lock()
		if i%2 == 0 {
			s.err = errors.New("transient")
		} else {
			s.err = nil
		}
		s.mu.Unlock()
		m.Broadcast(&pacerv1.Notification{Type: pacerv1.NotificationTypeCue})
	}

	assert.False(t, sub.Evicted())
	assert.Equal(t, 1, m.SubscriberCount())
}

func TestManager_CloseEndsSubscriptions(t *testing.T) {
	m := NewManager()
	a := m.Subscribe(&recordingStream{})
	b := m.Subscribe(&recordingStream{})

	m.Close()

	assert.Zero(t, m.SubscriberCount())
	for _, sub := range []*Subscription{a, b} {
		select {
		case <-sub.Done():
		default:
			t.Fatalf("subscription %s should be done after close", sub.ID())
		}
	}
}
