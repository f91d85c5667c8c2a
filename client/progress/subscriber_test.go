package progress

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// pushServer upgrades /runs/{ref}/events and writes the given payloads.
func pushServer(t *testing.T, payloads []string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		for _, p := range payloads {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(p)); err != nil {
				return
			}
		}
		// Keep the connection open until the client hangs up.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func collect(t *testing.T, sub *Subscription) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("timed out waiting for the event channel to close")
		}
	}
}

func TestSubscribe_NormalizesAndStopsAtTerminal(t *testing.T) {
	server := pushServer(t, []string{
		`{"status":"processing","metadata":{"progress":15,"current_step":"downloading"}}`,
		`{"status":"processing","metadata":{"progress":60,"current_step":"transcribing"}}`,
		`{"status":"completed","metadata":{"progress":100,"current_step":"done"}}`,
		`{"status":"processing","metadata":{"progress":10}}`,
	})
	defer server.Close()

	s := NewSubscriber(server.URL, zaptest.NewLogger(t))
	sub, err := s.Subscribe(context.Background(), "run-1", "token")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Cancel()

	events := collect(t, sub)
	if len(events) != 3 {
		t.Fatalf("Expected 3 events (stream ends at terminal), got %d: %+v", len(events), events)
	}

	last := events[len(events)-1]
	if !last.Terminal || last.Status != "completed" || last.Progress != 100 {
		t.Errorf("Expected terminal completed at 100, got %+v", last)
	}
}

func TestSubscribe_DuplicateTerminalDeliveredOnce(t *testing.T) {
	server := pushServer(t, []string{
		`{"status":"completed","metadata":{"progress":100}}`,
		`{"status":"completed","metadata":{"progress":100}}`,
	})
	defer server.Close()

	s := NewSubscriber(server.URL, zaptest.NewLogger(t))
	sub, err := s.Subscribe(context.Background(), "run-1", "token")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Cancel()

	events := collect(t, sub)
	terminals := 0
	for _, ev := range events {
		if ev.Terminal {
			terminals++
		}
	}
	if terminals != 1 {
		t.Errorf("Expected exactly 1 terminal event, got %d", terminals)
	}
}

func TestSubscribe_ProgressNeverDecreases(t *testing.T) {
	server := pushServer(t, []string{
		`{"status":"processing","metadata":{"progress":40}}`,
		`{"status":"processing","metadata":{"progress":20}}`,
		`{"status":"processing","metadata":{"progress":55}}`,
		`{"status":"failed","metadata":{"progress":0,"error":"decode error"}}`,
	})
	defer server.Close()

	s := NewSubscriber(server.URL, zaptest.NewLogger(t))
	sub, err := s.Subscribe(context.Background(), "run-1", "token")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Cancel()

	events := collect(t, sub)
	last := -1
	for _, ev := range events {
		if ev.Progress < last {
			t.Errorf("progress decreased across events: %+v", events)
			break
		}
		last = ev.Progress
	}

	final := events[len(events)-1]
	if final.Status != "failed" || final.Error != "decode error" {
		t.Errorf("Expected failure event with message, got %+v", final)
	}
}

func TestSubscribe_MalformedEventSkipped(t *testing.T) {
	server := pushServer(t, []string{
		`{not json`,
		`{"status":"completed","metadata":{"progress":100}}`,
	})
	defer server.Close()

	s := NewSubscriber(server.URL, zaptest.NewLogger(t))
	sub, err := s.Subscribe(context.Background(), "run-1", "token")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Cancel()

	events := collect(t, sub)
	if len(events) != 1 || !events[0].Terminal {
		t.Errorf("Expected the malformed frame skipped and the terminal delivered, got %+v", events)
	}
}

func TestSubscribe_CancelIsIdempotent(t *testing.T) {
	server := pushServer(t, nil)
	defer server.Close()

	s := NewSubscriber(server.URL, zaptest.NewLogger(t))
	sub, err := s.Subscribe(context.Background(), "run-1", "token")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	sub.Cancel()
	sub.Cancel()
	sub.Cancel()

	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Error("no event should be delivered after Cancel")
		}
	case <-time.After(2 * time.Second):
		t.Error("event channel should close after Cancel")
	}
}

func TestSubscribe_DialFailure(t *testing.T) {
	s := NewSubscriber("http://127.0.0.1:1", zaptest.NewLogger(t))
	_, err := s.Subscribe(context.Background(), "run-1", "token")
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Expected ErrSubscribeFailed, got %v", err)
	}
}
