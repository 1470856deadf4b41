package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
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
	"go.uber.org/goleak"

	"github.com/ShayCichocki/nexus/internal/logstore"
	"github.com/ShayCichocki/nexus/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeConn struct {
	frames    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case <-c.closed:
		return 0, nil, net.ErrClosed
	default:
	}
	select {
	case f, ok := <-c.frames:
		if !ok {
			return 0, nil, io.EOF
		}
		return websocket.TextMessage, f, nil
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

type fakeFetcher struct {
	mu    sync.Mutex
	logs  []models.LogEntry
	err   error
	calls atomic.Int32
}

func (f *fakeFetcher) Logs(ctx context.Context) ([]models.LogEntry, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]models.LogEntry(nil), f.logs...), nil
}

func (f *fakeFetcher) set(logs []models.LogEntry) {
	f.mu.Lock()
	f.logs = logs
	f.mu.Unlock()
}

func entry(msg string) models.LogEntry {
	return models.LogEntry{Time: "12:00:00", Agent: "HUNTER", Type: models.LogTypeInfo, Message: msg}
}

func newLogFrame(t *testing.T, msg string) []byte {
	t.Helper()
	b, err := models.EncodeFeedNewLog(entry(msg))
	require.NoError(t, err)
	return b
}

func staticDialer(conn Conn) Dialer {
	return DialerFunc(func(ctx context.Context) (Conn, error) { return conn, nil })
}

func messages(logs []models.LogEntry) []string {
	out := make([]string, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.Message)
	}
	return out
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateConnecting, "connecting"},
		{StateStreaming, "streaming"},
		{StateDegraded, "degraded"},
		{StateClosed, "closed"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestSynchronizer_FiveNewLogsNewestFirst(t *testing.T) {
	conn := newFakeConn()
	store := logstore.New(nil)
	s := New(staticDialer(conn), &fakeFetcher{}, store)
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	for i := 1; i <= 5; i++ {
		conn.frames <- newLogFrame(t, fmt.Sprintf("log-%d", i))
	}

	require.Eventually(t, func() bool { return store.Len() == 5 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"log-5", "log-4", "log-3", "log-2", "log-1"}, messages(store.Logs()))
	assert.Equal(t, StateStreaming, s.State())
}

func TestSynchronizer_InitReplacesLog(t *testing.T) {
	conn := newFakeConn()
	store := logstore.New(nil)
	store.Prepend(entry("stale"))
	s := New(staticDialer(conn), &fakeFetcher{}, store)
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	initFrame, err := models.EncodeFeedInit([]models.LogEntry{entry("b"), entry("a")})
	require.NoError(t, err)
	conn.frames <- initFrame
	conn.frames <- newLogFrame(t, "c")

	require.Eventually(t, func() bool { return store.Len() == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"c", "b", "a"}, messages(store.Logs()))
}

func TestSynchronizer_MalformedFramesIgnored(t *testing.T) {
	conn := newFakeConn()
	store := logstore.New(nil)
	s := New(staticDialer(conn), &fakeFetcher{}, store)
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	conn.frames <- []byte(`{not json`)
	conn.frames <- []byte(`{"type":"ping"}`)
	conn.frames <- []byte(`{"type":"new_log"}`)
	conn.frames <- []byte(`{"type":"new_log","log":null}`)
	conn.frames <- []byte(``)
	conn.frames <- newLogFrame(t, "valid")

	require.Eventually(t, func() bool { return store.Len() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "valid", store.Logs()[0].Message)
	assert.Equal(t, StateStreaming, s.State())
}

func TestSynchronizer_InitWithoutLogsKeepsLog(t *testing.T) {
	conn := newFakeConn()
	store := logstore.New(nil)
	store.Prepend(entry("a"))
	store.Prepend(entry("b"))
	s := New(staticDialer(conn), &fakeFetcher{}, store)
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	conn.frames <- []byte(`{"type":"init"}`)
	conn.frames <- []byte(`{"type":"init","logs":null}`)
	conn.frames <- newLogFrame(t, "c")

	require.Eventually(t, func() bool { return store.Len() == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"c", "b", "a"}, messages(store.Logs()))
}

func TestSynchronizer_FallbackAfterClose(t *testing.T) {
	conn := newFakeConn()
	store := logstore.New(nil)
	fetcher := &fakeFetcher{logs: []models.LogEntry{entry("polled")}}
	s := New(staticDialer(conn), fetcher, store, WithPollInterval(50*time.Millisecond))
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	conn.frames <- newLogFrame(t, "streamed")
	require.Eventually(t, func() bool { return store.Len() == 1 }, time.Second, time.Millisecond)

	close(conn.frames)
	require.Eventually(t, func() bool {
		logs := store.Logs()
		return s.State() == StateDegraded && len(logs) == 1 && logs[0].Message == "polled"
	}, 2*time.Second, 5*time.Millisecond)

	// Later polls keep replacing the log wholesale.
	fetcher.set([]models.LogEntry{entry("second"), entry("polled")})
	require.Eventually(t, func() bool { return store.Len() == 2 }, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, fetcher.calls.Load(), int32(2))
}

func TestSynchronizer_NoFramesAfterStreamClose(t *testing.T) {
	conn := newFakeConn()
	store := logstore.New(nil)
	fetcher := &fakeFetcher{logs: []models.LogEntry{entry("polled")}}
	s := New(staticDialer(conn), fetcher, store, WithPollInterval(20*time.Millisecond))
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	require.Eventually(t, func() bool { return s.State() == StateStreaming }, time.Second, time.Millisecond)
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return s.State() == StateDegraded }, time.Second, time.Millisecond)

	// The buffered frame belongs to a closed stream and must never be applied.
	conn.frames <- newLogFrame(t, "late")
	time.Sleep(60 * time.Millisecond)
	for _, l := range store.Logs() {
		assert.NotEqual(t, "late", l.Message)
	}
}

func TestSynchronizer_NeverOpensPollsWithinPeriod(t *testing.T) {
	dialer := DialerFunc(func(ctx context.Context) (Conn, error) {
		return nil, errors.New("connection refused")
	})
	store := logstore.New(nil)
	fetcher := &fakeFetcher{logs: []models.LogEntry{entry("from-poll")}}
	s := New(dialer, fetcher, store)
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	require.Eventually(t, func() bool { return store.Len() == 1 }, DefaultPollInterval, 5*time.Millisecond)
	assert.Equal(t, StateDegraded, s.State())
	assert.Equal(t, "from-poll", store.Logs()[0].Message)
}

func TestSynchronizer_PollErrorsKeepLog(t *testing.T) {
	dialer := DialerFunc(func(ctx context.Context) (Conn, error) { return nil, errors.New("refused") })
	store := logstore.New(nil)
	store.Prepend(entry("kept"))
	s := New(dialer, &fakeFetcher{err: errors.New("503")}, store, WithPollInterval(10*time.Millisecond))
	require.NoError(t, s.Start(context.Background()))

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, s.Close())
	assert.Equal(t, []string{"kept"}, messages(store.Logs()))
}

func TestSynchronizer_StartTwiceAndClose(t *testing.T) {
	conn := newFakeConn()
	s := New(staticDialer(conn), &fakeFetcher{}, logstore.New(nil))

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, StateClosed, s.State())
	assert.ErrorIs(t, s.Start(context.Background()), ErrClosed)

	select {
	case <-conn.closed:
	default:
		t.Fatal("stream connection was not closed")
	}
}

func TestSynchronizer_CloseStopsPolling(t *testing.T) {
	dialer := DialerFunc(func(ctx context.Context) (Conn, error) { return nil, errors.New("refused") })
	fetcher := &fakeFetcher{}
	s := New(dialer, fetcher, logstore.New(nil), WithPollInterval(5*time.Millisecond))
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return fetcher.calls.Load() >= 2 }, time.Second, time.Millisecond)
	require.NoError(t, s.Close())
	after := fetcher.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, fetcher.calls.Load())
}

func TestSynchronizer_ReconnectReturnsToStreaming(t *testing.T) {
	var dials atomic.Int32
	second := newFakeConn()
	dialer := DialerFunc(func(ctx context.Context) (Conn, error) {
		switch dials.Add(1) {
		case 1:
			return nil, errors.New("refused")
		default:
			return second, nil
		}
	})
	store := logstore.New(nil)
	fetcher := &fakeFetcher{logs: []models.LogEntry{entry("polled")}}
	s := New(dialer, fetcher, store,
		WithPollInterval(10*time.Millisecond),
		WithReconnect(20*time.Millisecond, 40*time.Millisecond))
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	require.Eventually(t, func() bool { return s.State() == StateStreaming }, 2*time.Second, time.Millisecond)
	time.Sleep(15 * time.Millisecond)
	pollsAtReconnect := fetcher.calls.Load()
	assert.GreaterOrEqual(t, pollsAtReconnect, int32(1))

	second.frames <- newLogFrame(t, "live")
	require.Eventually(t, func() bool {
		logs := store.Logs()
		return len(logs) > 0 && logs[0].Message == "live"
	}, time.Second, time.Millisecond)

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, pollsAtReconnect, fetcher.calls.Load(), "polling must stop once streaming resumes")
}

func TestSynchronizer_WebsocketServer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		initFrame, _ := models.EncodeFeedInit([]models.LogEntry{entry("boot")})
		_ = conn.WriteMessage(websocket.TextMessage, initFrame)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`))
		next, _ := models.EncodeFeedNewLog(entry("hello"))
		_ = conn.WriteMessage(websocket.TextMessage, next)
		// Closing the socket drives the synchronizer into polling.
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	dialer := DialerFunc(func(ctx context.Context) (Conn, error) {
		c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
	store := logstore.New(nil)
	fetcher := &fakeFetcher{logs: []models.LogEntry{entry("hello"), entry("boot"), entry("polled")}}
	s := New(dialer, fetcher, store, WithPollInterval(20*time.Millisecond))
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	require.Eventually(t, func() bool { return store.Len() == 3 && s.State() == StateDegraded }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"hello", "boot", "polled"}, messages(store.Logs()))
}
