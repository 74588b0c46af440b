// internal/command/server_test.go
package command

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tamzrod/ecat-master/internal/bus"
	"github.com/tamzrod/ecat-master/internal/pdo"
	"github.com/tamzrod/ecat-master/internal/registry"
)

func testServer(t *testing.T) (*Server, *httptest.Server, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	s := New(Config{}, reg, zaptest.NewLogger(t))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts, reg
}

func dialCommand(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/command"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestCommandFeedsTarget(t *testing.T) {
	s, ts, _ := testServer(t)
	conn := dialCommand(t, ts)

	require.NoError(t, conn.WriteJSON(map[string]int32{"target_position": 5000}))

	var reply commandReply
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "ok", reply.Result)
	assert.Equal(t, int32(5000), reply.TargetPosition)

	select {
	case v := <-s.Targets():
		assert.Equal(t, int32(5000), v)
	default:
		t.Fatal("target not published")
	}
}

func TestCommandLatestWins(t *testing.T) {
	s, ts, _ := testServer(t)
	conn := dialCommand(t, ts)

	var reply commandReply
	require.NoError(t, conn.WriteJSON(map[string]int32{"target_position": 1}))
	require.NoError(t, conn.ReadJSON(&reply))
	require.NoError(t, conn.WriteJSON(map[string]int32{"target_position": 2}))
	require.NoError(t, conn.ReadJSON(&reply))

	// Only the newest target remains pending.
	select {
	case v := <-s.Targets():
		assert.Equal(t, int32(2), v)
	default:
		t.Fatal("target not published")
	}
	select {
	case v := <-s.Targets():
		t.Fatalf("stale target still pending: %d", v)
	default:
	}
}

func TestCommandRejectsMalformed(t *testing.T) {
	_, ts, _ := testServer(t)
	conn := dialCommand(t, ts)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	var reply commandReply
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Result)

	require.NoError(t, conn.WriteJSON(map[string]int{"velocity": 3}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Result)
	assert.Contains(t, reply.Error, "target_position")
}

func TestStatusSnapshot(t *testing.T) {
	_, ts, reg := testServer(t)

	d := reg.AddDevice("drive-1", true)
	reg.Update(1, func(d *registry.Device) { d.State = bus.StateOperational })
	d.SetStatus(pdo.TxProcessData{
		StatusWord:     0x0027,
		ActualPosition: 123,
		ActualVelocity: -40,
		ActualTorque:   7,
	})
	reg.SetOperational(true)
	reg.SetExpectedWKC(3)
	reg.SetLastWKC(3)

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got statusReply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.True(t, got.Operational)
	assert.Equal(t, 3, got.ExpectedWKC)
	require.Len(t, got.Devices, 1)
	assert.Equal(t, "drive-1", got.Devices[0].Name)
	assert.Equal(t, "OPERATIONAL", got.Devices[0].State)
	assert.Equal(t, "0x0027", got.Devices[0].StatusWord)
	assert.Equal(t, int32(123), got.Devices[0].Position)
}
