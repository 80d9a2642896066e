package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pendle-watch/internal/domain"
	"pendle-watch/internal/reconcile"
)

func TestHub_BroadcastReachesSubscriber(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(NewServer(hub).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return hub.SubscriberCount() == 1
	}, time.Second, 5*time.Millisecond)

	report := &reconcile.Report{
		RunDate: "2025-06-01",
		Added:   []domain.ProjectRef{{Address: "0xa", Name: "A"}},
	}
	hub.BroadcastReport(report)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg runMessage
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Equal(t, "run_report", msg.Type)
	require.NotNil(t, msg.Report)
	assert.Equal(t, "2025-06-01", msg.Report.RunDate)
	require.Len(t, msg.Report.Added, 1)
	assert.Equal(t, "0xa", msg.Report.Added[0].Address)
}

func TestHub_DisconnectRemovesSubscriber(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(NewServer(hub).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return hub.SubscriberCount() == 1
	}, time.Second, 5*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return hub.SubscriberCount() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestHub_SlowSubscriberIsDropped(t *testing.T) {
	hub := NewHub(nil)
	sub := hub.add()
	defer hub.remove(sub)

	report := &reconcile.Report{RunDate: "2025-06-01"}
	for i := 0; i < subscriberBuffer+1; i++ {
		hub.BroadcastReport(report)
	}

	assert.Equal(t, 0, hub.SubscriberCount(), "a full buffer disconnects the subscriber")
}
