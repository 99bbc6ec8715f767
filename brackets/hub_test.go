package brackets

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversOnlyToRoom(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	user := &Client{Hub: hub, Send: make(chan []byte, 4), Room: UserRoom(7)}
	other := &Client{Hub: hub, Send: make(chan []byte, 4), Room: UserRoom(8)}
	hub.Register <- user
	hub.Register <- other
	require.Eventually(t, func() bool {
		return hub.ClientCount(UserRoom(7)) == 1 && hub.ClientCount(UserRoom(8)) == 1
	}, time.Second, 5*time.Millisecond)

	hub.NotifyUser(7, "LEVEL_UP", map[string]int{"level": 3})

	select {
	case raw := <-user.Send:
		var msg WebSocketMessage
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, "LEVEL_UP", msg.Type)
		assert.Equal(t, "user_7", msg.RoomID)
	case <-time.After(time.Second):
		t.Fatal("expected a message for user 7")
	}
	assert.Empty(t, other.Send)
}

func TestHubClosesClientsOnShutdown(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	client := &Client{Hub: hub, Send: make(chan []byte, 1), Room: TournamentRoom(1)}
	hub.Register <- client
	cancel()
	<-stopped

	_, open := <-client.Send
	assert.False(t, open)
	assert.Zero(t, hub.ClientCount(TournamentRoom(1)))
}
