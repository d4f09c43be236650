package broadcast

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStreamServer(t *testing.T, hub *Hub, origins []string) *httptest.Server {
	t.Helper()
	h := NewHandler(hub, origins, testLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/orders/{id}/events", h.HandleEvents)
	mux.HandleFunc("GET /api/orders/{id}/ws", h.HandleWebSocket)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestEncodeSSE(t *testing.T) {
	assert.Equal(t, "event: status\ndata: {\"status\":\"ready\"}\n\n",
		string(encodeSSE(Frame{Event: "status", Data: []byte(`{"status":"ready"}`)})))
	assert.Equal(t, ": keep-alive\n\n", string(encodeSSE(Frame{KeepAlive: true})))
	assert.Equal(t, "event: x\ndata: a\ndata: b\n\n", string(encodeSSE(Frame{Event: "x", Data: []byte("a\nb")})))
}

func TestHandleEvents(t *testing.T) {
	hub := NewHub(testLogger())
	srv := newStreamServer(t, hub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/orders/o1/events", nil)
	require.NoError(t, err)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() string {
		var lines []string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if line == "\n" {
				return strings.Join(lines, "")
			}
			lines = append(lines, line)
		}
	}

	assert.Equal(t, "event: connected\ndata: {\"orderId\":\"o1\"}\n", readEvent())

	require.Eventually(t, func() bool { return hub.Count("o1") == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, hub.Publish(ctx, "o1", "status", map[string]string{"status": "brewing"}))

	assert.Equal(t, "event: status\ndata: {\"status\":\"brewing\"}\n", readEvent())

	cancel()
	require.Eventually(t, func() bool { return hub.Count("o1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandleWebSocket(t *testing.T) {
	hub := NewHub(testLogger())
	srv := newStreamServer(t, hub, nil)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/orders/o1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, EventConnected, msg.Event)

	require.NoError(t, hub.Publish(context.Background(), "o1", "status", map[string]string{"status": "paid"}))

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "status", msg.Event)
	assert.JSONEq(t, `{"status":"paid"}`, string(msg.Payload))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Count("o1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandleWebSocketRejectsForeignOrigin(t *testing.T) {
	hub := NewHub(testLogger())
	srv := newStreamServer(t, hub, []string{"https://teashop.example"})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/orders/o1/ws"
	header := http.Header{"Origin": {"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, hub.Count("o1"))
}
