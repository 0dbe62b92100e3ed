package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/and161185/biasmeter/internal/monitor"
	"github.com/and161185/biasmeter/model"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T, maxClients int) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(nil, maxClients)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, r.URL.Query().Get("session"))
	}))
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})
	return hub, ts
}

func dial(t *testing.T, ts *httptest.Server, session string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/?session=" + session
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHub_BroadcastsToSessionSubscribers(t *testing.T) {
	hub, ts := newTestHub(t, 0)
	a := dial(t, ts, "a")
	_ = dial(t, ts, "b")

	require.Eventually(t, func() bool { return hub.Clients("a") == 1 && hub.Clients("b") == 1 },
		time.Second, 10*time.Millisecond)

	ctx := context.Background()
	hub.OnTick(ctx, "a", monitor.TickResult{Sample: model.Sample{Value: 77}})
	hub.OnAlert(ctx, "a", model.AlertEvent{Title: "WARNING", Severity: model.SeverityMedium})

	msg := readMessage(t, a)
	require.Equal(t, "tick", msg.Type)
	require.Equal(t, "a", msg.Session)
	data := msg.Data.(map[string]any)
	require.Equal(t, 77.0, data["sample"].(map[string]any)["value"])

	msg = readMessage(t, a)
	require.Equal(t, "alert", msg.Type)
	require.Equal(t, "WARNING", msg.Data.(map[string]any)["title"])
}

func TestHub_CloseSessionDisconnects(t *testing.T) {
	hub, ts := newTestHub(t, 0)
	conn := dial(t, ts, "s")
	require.Eventually(t, func() bool { return hub.Clients("s") == 1 }, time.Second, 10*time.Millisecond)

	hub.CloseSession("s")
	msg := readMessage(t, conn)
	require.Equal(t, "closed", msg.Type)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	require.Eventually(t, func() bool { return hub.Clients("s") == 0 }, time.Second, 10*time.Millisecond)
}

func TestHub_MaxClients(t *testing.T) {
	hub, ts := newTestHub(t, 1)
	_ = dial(t, ts, "s")
	require.Eventually(t, func() bool { return hub.Clients("s") == 1 }, time.Second, 10*time.Millisecond)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/?session=s"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestHub_MaxClientsUnderConcurrentUpgrades(t *testing.T) {
	const limit = 3
	hub, ts := newTestHub(t, limit)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/?session=s"

	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
		refused  atomic.Int32
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
			if resp != nil {
				_ = resp.Body.Close()
			}
			if err != nil {
				if resp != nil && resp.StatusCode == http.StatusServiceUnavailable {
					refused.Add(1)
				}
				return
			}
			accepted.Add(1)
			t.Cleanup(func() { _ = conn.Close() })
		}()
	}
	wg.Wait()

	require.EqualValues(t, limit, accepted.Load())
	require.EqualValues(t, 12-limit, refused.Load())
	require.Eventually(t, func() bool { return hub.Clients("s") == limit }, time.Second, 10*time.Millisecond)
}

func TestHub_FailedUpgradeReleasesSlot(t *testing.T) {
	hub, ts := newTestHub(t, 1)

	resp, err := http.Get(ts.URL + "/?session=s")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode, "plain GET is not a websocket handshake")

	_ = dial(t, ts, "s")
	require.Eventually(t, func() bool { return hub.Clients("s") == 1 }, time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastWithoutSubscribers(t *testing.T) {
	hub := NewHub(nil, 0)
	hub.OnTick(context.Background(), "nobody", monitor.TickResult{})
	require.Zero(t, hub.Clients("nobody"))
}
