package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/team-calendar/backend/internal/storage/models"
)

func runHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(nil)
	go hub.Run(ctx)
	return hub
}

func TestBroadcastReachesClients(t *testing.T) {
	hub := runHub(t)
	client := NewClient(hub)
	hub.Register(client)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	uid := "abc@calendar.app"
	NewEventBroadcaster(hub).EventUpdated(&models.Event{ID: "e1", ICalUID: &uid, Summary: "Sync"}, []string{"e1", "e2"})

	select {
	case data := <-client.Send():
		var msg struct {
			Type    MessageType  `json:"type"`
			Payload EventPayload `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, TypeEventUpdated, msg.Type)
		assert.Equal(t, uid, msg.Payload.ICalUID)
		assert.Equal(t, []string{"e1", "e2"}, msg.Payload.Copies)
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
}

func TestUnregisterClosesSend(t *testing.T) {
	hub := runHub(t)
	client := NewClient(hub)
	hub.Register(client)
	hub.Unregister(client)

	select {
	case _, ok := <-client.Send():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("send channel not closed")
	}
	assert.Zero(t, hub.ClientCount())
}

func TestStoppedHubDoesNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil)
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	connected := NewClient(hub)
	hub.Register(connected)
	cancel()
	<-stopped

	late := NewClient(hub)
	finished := make(chan struct{})
	go func() {
		hub.Unregister(connected)
		hub.Register(late)
		hub.Unregister(late)
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("register or unregister blocked after shutdown")
	}

	_, ok := <-connected.Send()
	assert.False(t, ok)
	_, ok = <-late.Send()
	assert.False(t, ok)
}
