package cheat_report

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/r4g3baby/cheat-report/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPipeline(t *testing.T, blobs BlobStore) (*Pipeline, *database.Store, *recordingNotifier, *recordingEmitter) {
	t.Helper()

	store := openTestStore(t)
	notifier := &recordingNotifier{}
	emitter := &recordingEmitter{}
	options := PipelineOptions{
		Notifier: notifier,
		Progress: emitter,
		Names:    fakeNames{"76561198000000001": "Speedy"},
	}
	if blobs != nil {
		options.Blobs = blobs
	}
	return NewPipeline(store, testLogger(), options), store, notifier, emitter
}

func TestSubmitWithoutEvidence(t *testing.T) {
	pipeline, store, notifier, emitter := newTestPipeline(t, nil)
	reporter := createAccount(t, store, "reporter", true, false)

	err := pipeline.Submit(reporter, Submission{
		SteamID:      "76561198000000001",
		Category:     "aimbot",
		Description:  "speedhack clip",
		ConnectionID: "socket-1",
	})
	require.NoError(t, err)
	pipeline.Wait()

	reports, err := store.Reports(context.Background(), database.ReportFilter{})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.False(t, reports[0].Approved)
	assert.Empty(t, reports[0].EvidenceURL)
	assert.Equal(t, database.CategoryAimbot, reports[0].Category)
	assert.Equal(t, "Speedy", reports[0].SteamName)

	assert.Equal(t, []string{EventReportDone}, emitter.names())
	assert.Equal(t, "socket-1", emitter.last().ConnectionID)

	sent := notifier.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, StatusPending, sent[0].Status)
	require.NotNil(t, sent[0].Report.Reporter)
	assert.Equal(t, "reporter", sent[0].Report.Reporter.Username)
}

func TestSubmitWithEvidence(t *testing.T) {
	blobs := &fakeBlobStore{url: "https://cdn.example.com/clip.mp4"}
	pipeline, store, notifier, emitter := newTestPipeline(t, blobs)
	reporter := createAccount(t, store, "reporter", true, false)
	evidence := stageFile(t, "clip.mp4")

	require.NoError(t, pipeline.Submit(reporter, Submission{
		SteamID:  "76561198000000002",
		Category: "wallhack",
		Evidence: evidence,
	}))
	pipeline.Wait()

	assert.Equal(t, []string{EventUploadProgress, EventUploadProgress, EventReportDone}, emitter.names())
	assert.Equal(t, 10, emitter.events[0].Payload.Percent)
	assert.Equal(t, 100, emitter.events[1].Payload.Percent)
	assert.Equal(t, blobs.url, emitter.events[1].Payload.URL)

	reports, err := store.Reports(context.Background(), database.ReportFilter{})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, blobs.url, reports[0].EvidenceURL)
	assert.Len(t, notifier.sent(), 1)

	_, err = os.Stat(evidence.Path)
	assert.True(t, os.IsNotExist(err), "staged evidence should be removed")
}

func TestSubmitUploadFailure(t *testing.T) {
	blobs := &fakeBlobStore{err: errors.New("cdn down")}
	pipeline, store, notifier, emitter := newTestPipeline(t, blobs)
	reporter := createAccount(t, store, "reporter", true, false)

	require.NoError(t, pipeline.Submit(reporter, Submission{
		SteamID:  "76561198000000003",
		Category: "griefing",
		Evidence: stageFile(t, "clip.mp4"),
	}))
	pipeline.Wait()

	reports, err := store.Reports(context.Background(), database.ReportFilter{})
	require.NoError(t, err)
	assert.Empty(t, reports)
	assert.Empty(t, notifier.sent())
	assert.Equal(t, EventReportError, emitter.last().Event)
	assert.Equal(t, StageError, emitter.last().Payload.Stage)
}

func TestSubmitMissingStagedFile(t *testing.T) {
	blobs := &fakeBlobStore{url: "https://cdn.example.com/x.png"}
	pipeline, store, notifier, emitter := newTestPipeline(t, blobs)
	reporter := createAccount(t, store, "reporter", true, false)

	require.NoError(t, pipeline.Submit(reporter, Submission{
		SteamID:  "76561198000000004",
		Category: "other",
		Evidence: &Evidence{Path: "/nonexistent/evidence.png", Filename: "evidence.png"},
	}))
	pipeline.Wait()

	assert.Zero(t, blobs.calls)
	assert.Equal(t, []string{EventReportError}, emitter.names())
	assert.Empty(t, notifier.sent())

	reports, err := store.Reports(context.Background(), database.ReportFilter{})
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestSubmitNotificationFailureKeepsReport(t *testing.T) {
	pipeline, store, notifier, emitter := newTestPipeline(t, nil)
	notifier.err = errors.New("discord unavailable")
	reporter := createAccount(t, store, "reporter", true, false)

	require.NoError(t, pipeline.Submit(reporter, Submission{SteamID: "76561198000000005", Category: "aimbot"}))
	pipeline.Wait()

	reports, err := store.Reports(context.Background(), database.ReportFilter{})
	require.NoError(t, err)
	assert.Len(t, reports, 1)
	assert.Len(t, notifier.sent(), 1)
	assert.Equal(t, EventReportDone, emitter.last().Event)
}

func TestSubmitValidation(t *testing.T) {
	pipeline, store, notifier, emitter := newTestPipeline(t, nil)
	approved := createAccount(t, store, "approved", true, false)
	pending := createAccount(t, store, "pending", false, false)

	tests := []struct {
		name       string
		reporter   *database.Account
		submission Submission
		want       error
	}{
		{"unapproved reporter", pending, Submission{SteamID: "1", Category: "aimbot"}, ErrNotApproved},
		{"missing reporter", nil, Submission{SteamID: "1", Category: "aimbot"}, ErrUnauthenticated},
		{"empty target", approved, Submission{SteamID: "  ", Category: "aimbot"}, ErrValidation},
		{"unknown category", approved, Submission{SteamID: "1", Category: "speedhack"}, ErrValidation},
		{"evidence without blob store", approved, Submission{SteamID: "1", Category: "aimbot", Evidence: &Evidence{Path: "x"}}, ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := pipeline.Submit(tt.reporter, tt.submission)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	pipeline.Wait()

	reports, err := store.Reports(context.Background(), database.ReportFilter{})
	require.NoError(t, err)
	assert.Empty(t, reports)
	assert.Empty(t, notifier.sent())
	assert.Empty(t, emitter.names())
}

func TestSubmitValidationErrorNamesField(t *testing.T) {
	pipeline, store, _, _ := newTestPipeline(t, nil)
	reporter := createAccount(t, store, "reporter", true, false)

	err := pipeline.Submit(reporter, Submission{SteamID: "1", Category: "nope"})

	var validation *ValidationError
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, "type", validation.Field)
}

type stalledNames struct{}

func (stalledNames) Name(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestSubmitSurvivesStalledNameLookup(t *testing.T) {
	store := openTestStore(t)
	notifier := &recordingNotifier{}
	emitter := &recordingEmitter{}
	pipeline := NewPipeline(store, testLogger(), PipelineOptions{
		Notifier: notifier,
		Progress: emitter,
		Names:    stalledNames{},
	})
	pipeline.lookupTimeout = 50 * time.Millisecond
	reporter := createAccount(t, store, "reporter", true, false)

	require.NoError(t, pipeline.Submit(reporter, Submission{SteamID: "76561198000000001", Category: "aimbot"}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, pipeline.Drain(ctx))

	reports, err := store.Reports(context.Background(), database.ReportFilter{})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Empty(t, reports[0].SteamName)
	assert.Equal(t, []string{EventReportDone}, emitter.names())
	assert.Len(t, notifier.sent(), 1)
}

func TestDrainGivesUp(t *testing.T) {
	pipeline, _, _, _ := newTestPipeline(t, nil)

	pipeline.inFlight.Add(1)
	defer pipeline.inFlight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pipeline.Drain(ctx), context.DeadlineExceeded)
}
