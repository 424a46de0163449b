package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeWs_EndToEndUnicast(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	userID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r, userID)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Connections(userID) == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.SendToUser(userID, []byte(`{"type":"file.stored"}`))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, body, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, msgType)
	assert.JSONEq(t, `{"type":"file.stored"}`, string(body))

	// closing the socket unregisters it
	conn.Close()
	require.Eventually(t, func() bool { return hub.Connections(userID) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServeWs_UpgradeFailure(t *testing.T) {
	hub := NewHub()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	w := httptest.NewRecorder()

	ServeWs(hub, w, req, uuid.New())

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
