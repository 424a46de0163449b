package websocket

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_SendToUser_AllConnectionsOfUser(t *testing.T) {
	h := NewHub()
	userID := uuid.New()
	first := &Client{send: make(chan []byte, 1), userID: userID}
	second := &Client{send: make(chan []byte, 1), userID: userID}
	other := &Client{send: make(chan []byte, 1), userID: uuid.New()}
	h.add(first)
	h.add(second)
	h.add(other)

	go h.Run()
	defer h.Stop()

	h.SendToUser(userID, []byte("private"))
	for _, c := range []*Client{first, second} {
		select {
		case msg := <-c.send:
			assert.Equal(t, "private", string(msg))
		case <-time.After(2 * time.Second):
			t.Fatal("expected unicast message")
		}
	}

	select {
	case <-other.send:
		t.Fatal("other users must not receive the message")
	default:
	}
	assert.Equal(t, 2, h.Connections(userID))
}

func TestHub_SlowClientIsDropped(t *testing.T) {
	h := NewHub()
	userID := uuid.New()
	slow := &Client{send: make(chan []byte), userID: userID}
	h.add(slow)

	go h.Run()
	defer h.Stop()

	h.SendToUser(userID, []byte("x"))
	require.Eventually(t, func() bool { return h.Connections(userID) == 0 }, time.Second, 5*time.Millisecond)
	_, open := <-slow.send
	assert.False(t, open)
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Stop()

	userID := uuid.New()
	c := &Client{send: make(chan []byte, 1), userID: userID}
	h.register <- c
	assert.Equal(t, 1, h.Connections(userID))

	h.unregister <- c
	assert.Equal(t, 0, h.Connections(userID))
	_, open := <-c.send
	assert.False(t, open)

	// unregistering twice is harmless
	h.unregister <- c
	assert.Equal(t, 0, h.Connections(userID))
}

func TestHub_StopClosesClients(t *testing.T) {
	h := NewHub()
	c := &Client{send: make(chan []byte, 1), userID: uuid.New()}
	h.add(c)

	done := make(chan struct{})
	go func() {
		h.Run()
		close(done)
	}()
	h.Stop()
	h.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
	_, open := <-c.send
	assert.False(t, open)

	// senders do not block once stopped
	h.SendToUser(uuid.New(), []byte("late"))
	assert.Equal(t, 0, h.Connections(uuid.New()))
}
