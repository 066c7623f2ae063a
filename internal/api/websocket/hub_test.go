package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/KevinKickass/OpenRotoCore/internal/auth"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticValidator struct{}

func (staticValidator) ValidateToken(_ context.Context, token, _, _ string) (*auth.Identity, error) {
	if token != "good" {
		return nil, errors.New("bad token")
	}
	return &auth.Identity{Username: "op", Role: auth.RoleOperator, Permissions: auth.RolePermissions(auth.RoleOperator)}, nil
}

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(zap.NewNop(), staticValidator{})
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}))
	t.Cleanup(srv.Close)

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func readType(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_AuthenticateAndBroadcast(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "auth", "token": "good"}))
	assert.Equal(t, "auth_success", readType(t, conn)["type"])

	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(NewCycleMessage("RTX-1", CycleData{CycleNumber: 1, Success: true, Message: "Cycle 1 completed successfully"}))

	msg := readType(t, conn)
	assert.Equal(t, "cycle_completed", msg["type"])
	assert.Equal(t, "RTX-1", msg["machine_id"])
}

func TestHub_RejectsBadAuth(t *testing.T) {
	hub, url := startHub(t)

	conn := dial(t, url)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "auth", "token": "bad"}))
	msg := readType(t, conn)
	assert.Equal(t, "auth_failed", msg["type"])

	other := dial(t, url)
	require.NoError(t, other.WriteJSON(map[string]string{"type": "hello"}))
	assert.Equal(t, "auth_failed", readType(t, other)["type"])

	assert.Zero(t, hub.GetClientCount())
}

func TestHub_MachineSubscription(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "auth", "token": "good"}))
	readType(t, conn)
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "subscribe", "machines": []string{"RTX-2"}}))

	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for c := range hub.clients {
			if !c.wants(Message{MachineID: "RTX-1"}) {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(NewMachineMessage(MessageTypeDailyReset, "RTX-1", DailyResetData{MaxDailyCycles: 7}))
	hub.Broadcast(NewMachineMessage(MessageTypeDailyReset, "RTX-2", DailyResetData{MaxDailyCycles: 5}))
	hub.Broadcast(NewOrderProgressMessage("ORD-1", map[string]int{"X": 0}, true))

	msg := readType(t, conn)
	assert.Equal(t, "RTX-2", msg["machine_id"])
	msg = readType(t, conn)
	assert.Equal(t, "order_progress", msg["type"], "messages without a machine reach every client")
}

func TestNewCycleMessage_Type(t *testing.T) {
	assert.Equal(t, MessageTypeCycleCompleted, NewCycleMessage("M", CycleData{Success: true}).Type)
	assert.Equal(t, MessageTypeCycleRejected, NewCycleMessage("M", CycleData{Success: false}).Type)
}
