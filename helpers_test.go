package cheat_report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/r4g3baby/cheat-report/database"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type (
	recordingNotifier struct {
		mutex         sync.Mutex
		notifications []Notification
		err           error
	}

	recordedEvent struct {
		ConnectionID string
		Event        string
		Payload      ProgressEvent
	}

	recordingEmitter struct {
		mutex  sync.Mutex
		events []recordedEvent
	}

	fakeBlobStore struct {
		url   string
		err   error
		calls int
	}

	fakeNames map[string]string
)

func (notifier *recordingNotifier) Notify(_ context.Context, notification Notification) error {
	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	notifier.notifications = append(notifier.notifications, notification)
	return notifier.err
}

func (notifier *recordingNotifier) sent() []Notification {
	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	return append([]Notification(nil), notifier.notifications...)
}

func (emitter *recordingEmitter) Emit(connectionID, event string, payload ProgressEvent) {
	emitter.mutex.Lock()
	defer emitter.mutex.Unlock()
	emitter.events = append(emitter.events, recordedEvent{connectionID, event, payload})
}

func (emitter *recordingEmitter) names() []string {
	emitter.mutex.Lock()
	defer emitter.mutex.Unlock()

	var names []string
	for _, event := range emitter.events {
		names = append(names, event.Event)
	}
	return names
}

func (emitter *recordingEmitter) last() recordedEvent {
	emitter.mutex.Lock()
	defer emitter.mutex.Unlock()
	return emitter.events[len(emitter.events)-1]
}

func (store *fakeBlobStore) Store(_ context.Context, evidence Evidence) (string, error) {
	store.calls++
	if _, err := os.Stat(evidence.Path); err != nil {
		return "", err
	}
	return store.url, store.err
}

func (names fakeNames) Name(_ context.Context, steamID string) (string, error) {
	if name, ok := names[steamID]; ok {
		return name, nil
	}
	return "", errors.New("unknown player")
}

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func openTestStore(t *testing.T) *database.Store {
	t.Helper()

	store, err := database.Open(fmt.Sprintf("sqlite://file:%s?mode=memory&cache=shared", uuid.NewString()), false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createAccount(t *testing.T, store *database.Store, username string, approved, admin bool) *database.Account {
	t.Helper()

	hash, err := hashPassword("password")
	require.NoError(t, err)

	account := &database.Account{Username: username, Password: hash, IsApproved: approved, IsAdmin: admin}
	require.NoError(t, store.CreateAccount(context.Background(), account))
	return account
}

func createReport(t *testing.T, store *database.Store, reporter *database.Account, steamID string) *database.Report {
	t.Helper()

	report := &database.Report{
		SteamID:    steamID,
		Category:   database.CategoryWallhack,
		ReporterID: reporter.ID,
	}
	require.NoError(t, store.CreateReport(context.Background(), report))
	return report
}

func stageFile(t *testing.T, name string) *Evidence {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("clip"), 0o600))
	return &Evidence{Path: path, Filename: name, ContentType: "video/mp4"}
}

func testTokens() *Tokens {
	return NewTokens(testSecret, time.Hour)
}
