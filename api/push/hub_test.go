package push

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"transcriber/api/database"
)

func testHub(t *testing.T) (*Hub, *miniredis.Miniredis, *httptest.Server) {
	t.Helper()

	mr := miniredis.RunT(t)
	cache := &database.Cache{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}

	hub := NewHub(cache, func(runID, token string) bool { return token == "good" }, zaptest.NewLogger(t))

	mux := http.NewServeMux()
	mux.HandleFunc("/runs/", hub.Subscribe)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return hub, mr, server
}

func dialRun(t *testing.T, server *httptest.Server, runID, token string) *websocket.Conn {
	t.Helper()

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/runs/" + runID + "/events?access_token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// publishWhenSubscribed retries until the hub's pub/sub subscription is
// live, so the event is not dropped before the stream attaches.
func publishWhenSubscribed(t *testing.T, mr *miniredis.Miniredis, runID, payload string) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if mr.Publish(EventChannel(runID), payload) > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("no subscriber attached to the run channel")
}

func TestSubscribe_DeliversRunEvents(t *testing.T) {
	_, mr, server := testHub(t)

	conn := dialRun(t, server, "run-1", "good")

	payload := `{"status":"processing","metadata":{"progress":40,"current_step":"transcribing"}}`
	publishWhenSubscribed(t, mr, "run-1", payload)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Expected the published event, got read error: %v", err)
	}
	if string(msg) != payload {
		t.Errorf("Expected payload forwarded verbatim, got %s", msg)
	}
}

func TestSubscribe_ClosesAfterTerminalEvent(t *testing.T) {
	_, mr, server := testHub(t)

	conn := dialRun(t, server, "run-1", "good")

	publishWhenSubscribed(t, mr, "run-1", `{"status":"completed","metadata":{"progress":100}}`)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("Expected the terminal event first, got %v", err)
	}

	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("Expected a normal close after the terminal event, got %v", err)
	}
}

func TestSubscribe_EventAfterDelayStillDelivered(t *testing.T) {
	_, mr, server := testHub(t)

	conn := dialRun(t, server, "run-1", "good")

	// The stream must outlive the upgrade request; an event published well
	// after the handshake still has to arrive.
	time.Sleep(300 * time.Millisecond)
	publishWhenSubscribed(t, mr, "run-1", `{"status":"processing","metadata":{"progress":10,"current_step":"downloading"}}`)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("Expected the delayed event, got %v", err)
	}
}

func TestSubscribe_RejectsBadToken(t *testing.T) {
	_, _, server := testHub(t)

	resp, err := http.Get(server.URL + "/runs/run-1/events?access_token=bad")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", resp.StatusCode)
	}
}

func TestSubscribe_RequiresRunRef(t *testing.T) {
	_, _, server := testHub(t)

	resp, err := http.Get(server.URL + "/runs/")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
}
