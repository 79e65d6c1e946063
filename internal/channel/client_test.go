package channel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/period-search-monitor/internal/clock/system"
	"github.com/JakeFAU/period-search-monitor/internal/progress"
)

type recordingSink struct {
	mu     sync.Mutex
	events []progress.Event
	seen   chan progress.Kind
}

func newRecordingSink() *recordingSink {
	return &recordingSink{seen: make(chan progress.Kind, 64)}
}

func (s *recordingSink) Deliver(ctx context.Context, evt progress.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.events = append(s.events, evt)
	s.mu.Unlock()
	s.seen <- evt.Kind()
	return nil
}

func (s *recordingSink) kinds() []progress.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]progress.Kind, len(s.events))
	for i, e := range s.events {
		out[i] = e.Kind()
	}
	return out
}

func (s *recordingSink) waitFor(t *testing.T, kind progress.Kind) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case k := <-s.seen:
			if k == kind {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s; saw %v", kind, s.kinds())
		}
	}
}

// backend serves one scripted session per connection and refuses connections
// beyond the script. Scripts run on server goroutines, so they assert rather
// than require.
func backend(t *testing.T, sessions ...func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	var conns atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(conns.Add(1)) - 1
		if n >= len(sessions) {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		sessions[n](ws)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func sendJSON(t *testing.T, ws *websocket.Conn, name string, data map[string]any) {
	t.Helper()
	b, err := EncodeJSON(name, data)
	assert.NoError(t, err)
	assert.NoError(t, ws.WriteMessage(websocket.TextMessage, b))
}

func sendMsgpack(t *testing.T, ws *websocket.Conn, name string, data map[string]any) {
	t.Helper()
	b, err := EncodeMsgpack(name, data)
	assert.NoError(t, err)
	assert.NoError(t, ws.WriteMessage(websocket.BinaryMessage, b))
}

func closeNormally(ws *websocket.Conn) {
	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
}

func newClient(t *testing.T, srv *httptest.Server, sink Sink, attempts int) *Client {
	t.Helper()
	c, err := New(Config{
		URL:                  "ws" + strings.TrimPrefix(srv.URL, "http"),
		MaxReconnectAttempts: attempts,
		InitialDelay:         time.Millisecond,
		MaxDelay:             5 * time.Millisecond,
		HandshakeTimeout:     time.Second,
	}, sink, system.New(), nil)
	require.NoError(t, err)
	return c
}

func TestClientExhaustsReconnects(t *testing.T) {
	t.Parallel()

	srv := backend(t, func(ws *websocket.Conn) {
		sendJSON(t, ws, "job_started", map[string]any{"totalTasks": 2, "periods": []string{"1900", "1901"}})
		sendMsgpack(t, ws, "progress", map[string]any{"itemsSaved": 1, "itemsTotal": 2})
		assert.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("garbage")))
		closeNormally(ws)
	})
	sink := newRecordingSink()
	client := newClient(t, srv, sink, 2)

	err := client.Run(context.Background())
	require.ErrorIs(t, err, ErrReconnectExhausted)
	require.Equal(t, []progress.Kind{
		progress.KindConnecting,
		progress.KindConnected,
		progress.KindJobStarted,
		progress.KindProgress,
		progress.KindUnknown,
		progress.KindDisconnected,
		progress.KindReconnectAttempt,
		progress.KindReconnectAttempt,
		progress.KindReconnectFailed,
	}, sink.kinds())

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Equal(t, progress.Progress{ItemsSaved: progress.Ptr(1), ItemsTotal: progress.Ptr(2)}, sink.events[3].Payload)
	require.NotEmpty(t, sink.events[4].Diagnostics)
	require.Contains(t, sink.events[5].Payload.(progress.Disconnected).Reason, "bye")
	require.Equal(t, progress.ReconnectFailed{Attempts: 2}, sink.events[8].Payload)
}

func TestClientReconnectsWithoutReplay(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := backend(t,
		func(ws *websocket.Conn) {
			sendJSON(t, ws, "job_started", map[string]any{"totalTasks": 3})
			closeNormally(ws)
		},
		func(ws *websocket.Conn) {
			sendJSON(t, ws, "task_changed", map[string]any{"currentTaskIndex": 2})
			<-release
		},
	)
	t.Cleanup(func() { close(release) })

	sink := newRecordingSink()
	client := newClient(t, srv, sink, 3)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	sink.waitFor(t, progress.KindTaskChanged)
	cancel()
	require.NoError(t, <-done)

	require.Equal(t, []progress.Kind{
		progress.KindConnecting,
		progress.KindConnected,
		progress.KindJobStarted,
		progress.KindDisconnected,
		progress.KindReconnectAttempt,
		progress.KindReconnected,
		progress.KindTaskChanged,
	}, sink.kinds())

	agg := progress.NewAggregator()
	var snap progress.Snapshot
	sink.mu.Lock()
	for _, evt := range sink.events {
		snap = agg.Apply(evt)
	}
	sink.mu.Unlock()
	require.Equal(t, progress.ConnConnected, snap.ConnectionState)
	require.Equal(t, 1, snap.CompletedTaskCount)
	require.Equal(t, 33, snap.OverallPercent)
}

func TestClientInitialDialFailure(t *testing.T) {
	t.Parallel()

	srv := backend(t)
	sink := newRecordingSink()
	client := newClient(t, srv, sink, 1)

	err := client.Run(context.Background())
	require.ErrorIs(t, err, ErrReconnectExhausted)
	require.Equal(t, []progress.Kind{
		progress.KindConnecting,
		progress.KindDisconnected,
		progress.KindReconnectAttempt,
		progress.KindReconnectFailed,
	}, sink.kinds())
}

type failingSink struct{ err error }

func (f failingSink) Deliver(context.Context, progress.Event) error { return f.err }

func TestClientReportsSinkFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("monitor closed")
	client := newClient(t, backend(t), failingSink{err: boom}, 1)
	require.ErrorIs(t, client.Run(context.Background()), boom)
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	sink := newRecordingSink()
	_, err := New(Config{URL: "ftp://example.com"}, sink, system.New(), nil)
	require.Error(t, err)
	_, err = New(Config{URL: "ws://"}, sink, system.New(), nil)
	require.Error(t, err)
	_, err = New(Config{URL: "ws://example.com"}, nil, system.New(), nil)
	require.Error(t, err)

	c, err := New(Config{URL: "https://example.com/ws"}, sink, system.New(), nil)
	require.NoError(t, err)
	require.Equal(t, "wss://example.com/ws", c.url)
}
