package connect

import (
	"context"
	"sync"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	pacerv1 "github.com/osa030/boxbreath/internal/api/pacerv1"
	"github.com/osa030/boxbreath/internal/api/pacerv1/pacerv1connect"
	"github.com/osa030/boxbreath/internal/app/session"
)

// WatchService implements the WatchService RPC.
type WatchService struct {
	session *session.Manager
}

// NewWatchService creates a new WatchService.
func NewWatchService(session *session.Manager) *WatchService {
	return &WatchService{session: session}
}

var _ pacerv1connect.WatchServiceHandler = (*WatchService)(nil)

// Watch sends the current state, then every notification until the
// client goes away or the manager closes.
func (s *WatchService) Watch(
	ctx context.Context,
	req *connect.Request[pacerv1.WatchRequest],
	stream *connect.ServerStream[pacerv1.Notification],
) error {
	notifManager := s.session.GetNotificationManager()
	adapter := &notificationStreamAdapter{stream: stream}

	// Subscribe before the initial state so nothing falls in between;
	// broadcasts wait on the adapter until the initial state is out.
	adapter.mu.Lock()
	sub := notifManager.Subscribe(adapter, req.Msg.Types...)
	defer notifManager.Unsubscribe(sub.ID())

	initial := &pacerv1.Notification{
		Type:        pacerv1.NotificationTypeInitialState,
		SequenceNo:  notifManager.NextSequenceNo(),
		SessionInfo: s.session.Status(),
	}
	err := stream.Send(initial)
	adapter.mu.Unlock()
	if err != nil {
		return err
	}
	zlog.Debug().Str("subscription_id", sub.ID()).Int("types", len(req.Msg.Types)).Msg("watch stream opened")

	select {
	case <-ctx.Done():
	case <-s.session.Done():
	case <-sub.Done():
		if sub.Evicted() {
			return connect.NewError(connect.CodeUnavailable, errors.New("watcher dropped after repeated send failures"))
		}
	}
	return nil
}

// notificationStreamAdapter adapts connect.ServerStream to notification.Stream.
type notificationStreamAdapter struct {
	mu     sync.Mutex
	stream *connect.ServerStream[pacerv1.Notification]
}

func (a *notificationStreamAdapter) Send(notification *pacerv1.Notification) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stream.Send(notification)
}
