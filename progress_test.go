package cheat_report

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialProgress(t *testing.T, server *httptest.Server, connectionID string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?id=" + connectionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitConnected(t *testing.T, hub *ProgressHub, connectionID string) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Connected(connectionID) }, time.Second, 5*time.Millisecond)
}

func TestProgressHubDeliversToConnection(t *testing.T) {
	hub := NewProgressHub(testLogger())
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	conn := dialProgress(t, server, "socket-1")
	waitConnected(t, hub, "socket-1")

	hub.Emit("socket-1", EventUploadProgress, ProgressEvent{Stage: StageUploading, Percent: 10, Message: "Uploading evidence"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	var message struct {
		Event string        `json:"event"`
		Data  ProgressEvent `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&message))
	assert.Equal(t, EventUploadProgress, message.Event)
	assert.Equal(t, StageUploading, message.Data.Stage)
	assert.Equal(t, 10, message.Data.Percent)
}

func TestProgressHubUnknownConnection(t *testing.T) {
	hub := NewProgressHub(testLogger())

	assert.NotPanics(t, func() {
		hub.Emit("missing", EventReportDone, ProgressEvent{Stage: StageDone})
		hub.Emit("", EventReportDone, ProgressEvent{Stage: StageDone})
	})
	assert.False(t, hub.Connected("missing"))
}

func TestProgressHubReplacesConnection(t *testing.T) {
	hub := NewProgressHub(testLogger())
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	first := dialProgress(t, server, "socket-1")
	waitConnected(t, hub, "socket-1")
	second := dialProgress(t, server, "socket-1")

	require.NoError(t, first.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := first.ReadMessage()
	assert.Error(t, err, "replaced connection should be closed")

	hub.Emit("socket-1", EventReportDone, ProgressEvent{Stage: StageDone, Percent: 100})

	require.NoError(t, second.SetReadDeadline(time.Now().Add(time.Second)))
	var message map[string]interface{}
	require.NoError(t, second.ReadJSON(&message))
	assert.Equal(t, EventReportDone, message["event"])
}

func TestProgressHubUnregistersOnDisconnect(t *testing.T) {
	hub := NewProgressHub(testLogger())
	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dialProgress(t, server, "socket-1")
	waitConnected(t, hub, "socket-1")

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return !hub.Connected("socket-1") }, time.Second, 5*time.Millisecond)
}

func TestProgressHubRequiresID(t *testing.T) {
	hub := NewProgressHub(testLogger())

	recorder := httptest.NewRecorder()
	hub.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}
