package progress

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrSubscribeFailed wraps a push-channel connection failure. The caller
// renders a static failure state; the subscription is not retried.
var ErrSubscribeFailed = errors.New("push channel subscribe failed")

// Event is a normalized push-channel message for one run.
type Event struct {
	Status      string
	Progress    int
	CurrentStep string
	Error       string
	Terminal    bool
}

type wireEvent struct {
	Status   string `json:"status"`
	Metadata struct {
		Progress    int    `json:"progress"`
		CurrentStep string `json:"current_step"`
		Error       string `json:"error,omitempty"`
	} `json:"metadata"`
}

// Subscription is an explicit handle on one run's push channel. Cancel is
// idempotent and must be called before the owning job is removed, so no
// event callback fires for a job that no longer exists.
type Subscription struct {
	conn   *websocket.Conn
	events chan Event
	once   sync.Once
	done   chan struct{}
	logger *zap.Logger
}

// Subscriber dials the registry's push channel.
type Subscriber struct {
	baseURL string
	logger  *zap.Logger
}

func NewSubscriber(baseURL string, logger *zap.Logger) *Subscriber {
	return &Subscriber{baseURL: baseURL, logger: logger}
}

// Subscribe opens the push channel for one run. Delivery is at-least-once
// and not strictly ordered; the read loop normalizes events, clamps
// progress non-decreasing and forwards at most one terminal event.
func (s *Subscriber) Subscribe(ctx context.Context, runRef, accessToken string) (*Subscription, error) {
	u, err := wsURL(s.baseURL, runRef, accessToken)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, errors.Join(ErrSubscribeFailed, err)
	}

	sub := &Subscription{
		conn:   conn,
		events: make(chan Event, 16),
		done:   make(chan struct{}),
		logger: s.logger,
	}
	go sub.readLoop(runRef)
	return sub, nil
}

// Events delivers normalized run events. The channel closes when the stream
// ends: terminal event, cancellation or transport failure.
func (sub *Subscription) Events() <-chan Event {
	return sub.events
}

// Cancel tears the subscription down. Safe to call any number of times and
// from any goroutine; no event is delivered after Cancel returns the
// channel closed.
func (sub *Subscription) Cancel() {
	sub.once.Do(func() {
		close(sub.done)
		sub.conn.Close()
	})
}

func (sub *Subscription) readLoop(runRef string) {
	defer close(sub.events)
	defer sub.Cancel()

	lastProgress := 0
	terminalFired := false

	for {
		_, payload, err := sub.conn.ReadMessage()
		if err != nil {
			return
		}

		var raw wireEvent
		if err := json.Unmarshal(payload, &raw); err != nil {
			sub.logger.Warn("malformed push event",
				zap.String("run_ref", runRef),
				zap.Error(err),
			)
			continue
		}

		event := Event{
			Status:      raw.Status,
			Progress:    raw.Metadata.Progress,
			CurrentStep: raw.Metadata.CurrentStep,
			Error:       raw.Metadata.Error,
			Terminal:    isTerminal(raw.Status),
		}

		// Transport order is not guaranteed; displayed progress only
		// moves forward.
		if event.Progress < lastProgress {
			event.Progress = lastProgress
		}
		lastProgress = event.Progress

		if event.Terminal {
			if terminalFired {
				continue
			}
			terminalFired = true
			if event.Status == "completed" {
				event.Progress = 100
			}
		}

		select {
		case sub.events <- event:
		case <-sub.done:
			return
		}

		if event.Terminal {
			return
		}
	}
}

func isTerminal(status string) bool {
	switch status {
	case "completed", "failed", "cancelled":
		return true
	default:
		return false
	}
}

func wsURL(baseURL, runRef, accessToken string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/runs/" + runRef + "/events"
	q := u.Query()
	q.Set("access_token", accessToken)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
