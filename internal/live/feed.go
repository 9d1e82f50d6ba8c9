package live

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/kitchenly/client-go/pkg/models"
)

// Handler receives server-confirmed status changes. The order tracker
// satisfies this.
type Handler interface {
	ApplyStatus(orderID string, status models.Status)
}

// Feed keeps a WebSocket subscription to the backend's order status stream,
// reconnecting with backoff when the connection drops. Without it the app
// would poll order details on an interval; with it the tracker learns about
// transitions as they happen.
type Feed struct {
	url     string
	handler Handler
	logger  *logrus.Logger
	dialer  *websocket.Dialer
}

func NewFeed(url string, handler Handler, logger *logrus.Logger) *Feed {
	return &Feed{
		url:     url,
		handler: handler,
		logger:  logger,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Run blocks until ctx is cancelled, maintaining the subscription. Messages
// that arrive after cancellation are discarded with the connection.
func (f *Feed) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.logger.WithError(err).WithField("backoff", backoff.String()).Warn("Live feed dial failed, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}

		backoff = time.Second
		f.logger.WithField("url", f.url).Info("Live feed connected")
		f.read(ctx, conn)
	}
}

func (f *Feed) read(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	// Unblock ReadJSON when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var event models.StatusEvent
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() == nil {
				f.logger.WithError(err).Warn("Live feed read failed, reconnecting")
			}
			return
		}
		if event.Type != models.StatusEventType {
			continue
		}
		if !event.Status.Valid() {
			f.logger.WithFields(logrus.Fields{
				"order_id": event.OrderID,
				"status":   string(event.Status),
			}).Warn("Ignoring live event with unknown status")
			continue
		}
		f.handler.ApplyStatus(event.OrderID, event.Status)
	}
}
