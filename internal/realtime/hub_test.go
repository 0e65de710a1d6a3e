package realtime

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/xswarm-forum/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startHub(t *testing.T, origins ...string) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(testLogger(), origins)
	hub.Start()
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		srv.Close()
		hub.Stop()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.ClientCount() == n },
		2*time.Second, 10*time.Millisecond, "want %d connected clients", n)
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	return got
}

func TestHub_PublishReachesEveryClient(t *testing.T) {
	hub, srv := startHub(t)
	a := dial(t, srv, nil)
	b := dial(t, srv, nil)
	waitForClients(t, hub, 2)

	hub.Publish(model.NewEvent(model.EventNewPost, &model.Post{ID: "p1", Title: "Hello"}))

	for _, conn := range []*websocket.Conn{a, b} {
		got := readEvent(t, conn)
		assert.Equal(t, "newPost", got["type"])
		data := got["data"].(map[string]any)
		assert.Equal(t, "p1", data["id"])
	}
}

func TestHub_EventsArriveInOrder(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, nil)
	waitForClients(t, hub, 1)

	hub.Publish(model.NewEvent(model.EventNewPost, &model.Post{ID: "p1"}))
	hub.Publish(model.NewEvent(model.EventUpdatePost, &model.Post{ID: "p1", Score: 1}))
	hub.Publish(model.NewEvent(model.EventUserTerminated, model.UsernamePayload{Username: "spammer"}))

	assert.Equal(t, "newPost", readEvent(t, conn)["type"])
	assert.Equal(t, "updatePost", readEvent(t, conn)["type"])
	last := readEvent(t, conn)
	assert.Equal(t, "userTerminated", last["type"])
	assert.Equal(t, "spammer", last["data"].(map[string]any)["username"])
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, nil)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)

	// Publishing with nobody listening is a no-op.
	hub.Publish(model.NewEvent(model.EventDeletePost, model.DeleteResult{ID: "p1"}))
}

func TestHub_SlowClientIsDropped(t *testing.T) {
	hub := NewHub(testLogger(), nil)
	hub.Start()
	defer hub.Stop()

	// A client with no pumps never drains its queue.
	stuck := &client{id: "stuck", hub: hub, send: make(chan []byte, 1)}
	hub.register <- stuck
	waitForClients(t, hub, 1)

	for i := 0; i < 3; i++ {
		hub.Broadcast([]byte(`{"type":"newPost"}`))
	}

	waitForClients(t, hub, 0)

	// send was closed by the hub; the buffered message is still readable.
	_, ok := <-stuck.send
	assert.True(t, ok)
	_, ok = <-stuck.send
	assert.False(t, ok, "send channel should be closed")
}

func TestHub_OriginAllowlist(t *testing.T) {
	_, srv := startHub(t, "https://forum.example")
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://forum.example"}})
	require.NoError(t, err)
	conn.Close()

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHub_StopClosesClientsAndRefusesNew(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, nil)
	waitForClients(t, hub, 1)

	hub.Stop()
	hub.Stop() // second call is a no-op

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "connection should be closed after Stop")

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	// Publishing after Stop must not block or panic.
	hub.Publish(model.NewEvent(model.EventNewPost, &model.Post{ID: "late"}))
}
