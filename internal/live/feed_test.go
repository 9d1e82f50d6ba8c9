package live

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/kitchenly/client-go/pkg/models"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []models.StatusEvent
}

func (r *recordingHandler) ApplyStatus(orderID string, status models.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, models.StatusEvent{OrderID: orderID, Status: status})
}

func (r *recordingHandler) snapshot() []models.StatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.StatusEvent(nil), r.events...)
}

func TestFeedDeliversStatusEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		events := []models.StatusEvent{
			{Type: models.StatusEventType, OrderID: "o1", Status: models.StatusPreparing, Timestamp: time.Now(), Source: "devserver"},
			{Type: "heartbeat"},
			{Type: models.StatusEventType, OrderID: "o1", Status: "WARPED", Timestamp: time.Now(), Source: "devserver"},
			{Type: models.StatusEventType, OrderID: "o1", Status: models.StatusInTransit, Timestamp: time.Now(), Source: "devserver"},
		}
		for _, ev := range events {
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	handler := &recordingHandler{}
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	feed := NewFeed(wsURL, handler, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		feed.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(3 * time.Second)
	for {
		if len(handler.snapshot()) >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for events, got %v", handler.snapshot())
		}
		time.Sleep(5 * time.Millisecond)
	}

	got := handler.snapshot()
	if got[0].Status != models.StatusPreparing || got[1].Status != models.StatusInTransit {
		t.Errorf("events = %v", got)
	}

	// Cancellation stops the loop; late messages are discarded with the
	// connection rather than applied.
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not stop after cancellation")
	}
}
