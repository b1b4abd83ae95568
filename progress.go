package cheat_report

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	EventUploadProgress = "uploadProgress"
	EventReportDone     = "reportDone"
	EventReportError    = "reportError"

	StageUploading = "uploading"
	StageDone      = "done"
	StageError     = "error"
)

const progressWriteTimeout = 5 * time.Second

type (
	ProgressEvent struct {
		Stage   string `json:"stage"`
		Percent int    `json:"percent"`
		Message string `json:"message"`
		URL     string `json:"url,omitempty"`
		Error   string `json:"error,omitempty"`
	}

	// Emitter pushes progress to a single client connection. Delivery is
	// best effort: unknown ids are dropped.
	Emitter interface {
		Emit(connectionID, event string, payload ProgressEvent)
	}

	ProgressHub struct {
		log      *zap.SugaredLogger
		upgrader websocket.Upgrader

		mutex   sync.Mutex
		clients map[string]*progressClient
	}

	progressClient struct {
		conn  *websocket.Conn
		mutex sync.Mutex
	}

	progressMessage struct {
		Event string      `json:"event"`
		Data  interface{} `json:"data"`
	}
)

func NewProgressHub(log *zap.SugaredLogger) *ProgressHub {
	return &ProgressHub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[string]*progressClient),
	}
}

// ServeHTTP upgrades the request and registers it under the client supplied
// ?id= until the socket closes.
func (hub *ProgressHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	connectionID := r.URL.Query().Get("id")
	if connectionID == "" {
		http.Error(w, "missing connection id", http.StatusBadRequest)
		return
	}

	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.Debugw("websocket upgrade failed",
			"error", err,
		)
		return
	}

	client := &progressClient{conn: conn}
	hub.register(connectionID, client)
	defer hub.unregister(connectionID, client)

	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func (hub *ProgressHub) Emit(connectionID, event string, payload ProgressEvent) {
	if connectionID == "" {
		return
	}

	hub.mutex.Lock()
	client, ok := hub.clients[connectionID]
	hub.mutex.Unlock()
	if !ok {
		return
	}

	client.mutex.Lock()
	_ = client.conn.SetWriteDeadline(time.Now().Add(progressWriteTimeout))
	err := client.conn.WriteJSON(progressMessage{Event: event, Data: payload})
	client.mutex.Unlock()

	if err != nil {
		hub.log.Debugw("failed to emit progress",
			"connection", connectionID,
			"event", event,
			"error", err,
		)
		hub.unregister(connectionID, client)
	}
}

func (hub *ProgressHub) Connected(connectionID string) bool {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	_, ok := hub.clients[connectionID]
	return ok
}

// Close drops every registered connection.
func (hub *ProgressHub) Close() {
	hub.mutex.Lock()
	clients := hub.clients
	hub.clients = make(map[string]*progressClient)
	hub.mutex.Unlock()

	for _, client := range clients {
		_ = client.conn.Close()
	}
}

func (hub *ProgressHub) register(connectionID string, client *progressClient) {
	hub.mutex.Lock()
	previous, replaced := hub.clients[connectionID]
	hub.clients[connectionID] = client
	hub.mutex.Unlock()

	if replaced {
		_ = previous.conn.Close()
	}
	hub.log.Debugw("progress client connected",
		"connection", connectionID,
	)
}

func (hub *ProgressHub) unregister(connectionID string, client *progressClient) {
	hub.mutex.Lock()
	if current, ok := hub.clients[connectionID]; ok && current == client {
		delete(hub.clients, connectionID)
	}
	hub.mutex.Unlock()
	_ = client.conn.Close()
}
