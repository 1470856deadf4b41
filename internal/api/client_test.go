package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/nexus/pkg/models"
)

func newTestClient(t *testing.T, h http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(ClientConfig{BaseURL: srv.URL, Timeout: time.Second})
	require.NoError(t, err)
	return c, srv
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	assert.Error(t, err)

	_, err = NewClient(ClientConfig{BaseURL: "ftp://example.com"})
	assert.Error(t, err)

	c, err := NewClient(ClientConfig{BaseURL: "https://swarm.example.com/api/"})
	require.NoError(t, err)
	assert.Equal(t, "https://swarm.example.com/api", c.BaseURL())
	assert.Equal(t, "wss://swarm.example.com/api/logs-stream", c.StreamURL())
}

func TestNewClient_StreamOverride(t *testing.T) {
	c, err := NewClient(ClientConfig{
		BaseURL:   "http://localhost:8000",
		StreamURL: "ws://localhost:8000/ws/logs",
		Endpoints: Endpoints{Run: "/api/run-swarm"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8000/ws/logs", c.StreamURL())
	assert.Equal(t, "http://localhost:8000/api/run-swarm", c.resolve(c.endpoints.Run))
	assert.Equal(t, "http://localhost:8000/status", c.resolve(c.endpoints.Status))
}

func TestClient_Run(t *testing.T) {
	var gotMethod, gotUA string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotUA = r.Header.Get("User-Agent")
		assert.Equal(t, "/run", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"logs":[{"time":"10:00:00","agent":"SYSTEM","type":"info","message":"done"}],"execution_ms":42}`))
	}))

	res, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.True(t, strings.HasPrefix(gotUA, "nexus/"))
	require.Len(t, res.Logs, 1)
	assert.Equal(t, "done", res.Logs[0].Message)
	assert.Equal(t, int64(42), res.ExecutionMS)
}

func TestClient_NonSuccessIsStatusError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend exploded", http.StatusInternalServerError)
	}))

	_, err := c.Run(context.Background())
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.Equal(t, "backend exploded", se.Body)
	assert.Contains(t, se.Error(), "POST /run")
}

func TestClient_LogsEmptyBody(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`null`))
	}))

	logs, err := c.Logs(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, logs)
	assert.Empty(t, logs)
}

func TestClient_StatusAndHealth(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/status":
			_, _ = w.Write([]byte(`{"mode":"Simulation","total_logs":3}`))
		case "/health":
			_, _ = w.Write([]byte(`{"status":"online"}`))
		case "/reset":
			assert.Equal(t, http.MethodPost, r.Method)
			_, _ = w.Write([]byte(`{"status":"reset"}`))
		default:
			http.NotFound(w, r)
		}
	}))

	status, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Simulation", status["mode"])

	health, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "online", health["status"])

	require.NoError(t, c.Reset(context.Background()))
}

func TestClient_TimeoutAppliesToStatus(t *testing.T) {
	release := make(chan struct{})
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer close(release)
	c.timeout = 50 * time.Millisecond

	_, err := c.Status(context.Background())
	assert.Error(t, err)
}

func TestClient_DialStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		frame, _ := models.EncodeFeedInit(nil)
		_ = conn.WriteMessage(websocket.TextMessage, frame)
	}))

	conn, err := c.Dial(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := models.DecodeFeedMessage(data)
	require.NoError(t, err)
	assert.Equal(t, models.FeedInit, msg.Kind)
}

func TestClient_DialRefused(t *testing.T) {
	c, srv := newTestClient(t, http.NotFoundHandler())
	srv.Close()

	_, err := c.Dial(context.Background())
	assert.Error(t, err)
}
