package cheat_report

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/r4g3baby/cheat-report/database"
	"go.uber.org/zap"
)

const defaultLookupTimeout = 5 * time.Second

type (
	// Submission is a validated-on-submit report request. Evidence, when
	// present, must already be staged on disk; the pipeline removes it.
	Submission struct {
		SteamID      string
		MatchID      string
		Category     string
		Description  string
		Evidence     *Evidence
		ConnectionID string
	}

	// NameResolver resolves a player's current display name.
	NameResolver interface {
		Name(ctx context.Context, steamID string) (string, error)
	}

	Pipeline struct {
		store    *database.Store
		blobs    BlobStore
		progress Emitter
		names    NameResolver
		fan      fanOut
		log      *zap.SugaredLogger

		lookupTimeout time.Duration
		inFlight      sync.WaitGroup
	}

	PipelineOptions struct {
		Blobs    BlobStore
		Notifier Notifier
		Progress Emitter
		Names    NameResolver
	}
)

func NewPipeline(store *database.Store, log *zap.SugaredLogger, options PipelineOptions) *Pipeline {
	return &Pipeline{
		store:    store,
		blobs:    options.Blobs,
		progress: options.Progress,
		names:    options.Names,
		fan:      fanOut{notifier: options.Notifier, log: log},
		log:      log,

		lookupTimeout: defaultLookupTimeout,
	}
}

// Submit validates the submission and, when it is acceptable, hands it to a
// background worker and returns nil at once. Everything after that point is
// only observable through progress events and the persisted report.
func (pipeline *Pipeline) Submit(reporter *database.Account, submission Submission) error {
	report, err := pipeline.validate(reporter, submission)
	if err != nil {
		return err
	}

	pipeline.inFlight.Add(1)
	go func() {
		defer pipeline.inFlight.Done()
		pipeline.process(context.Background(), report, submission)
	}()
	return nil
}

// Wait blocks until every accepted submission has finished.
func (pipeline *Pipeline) Wait() {
	pipeline.inFlight.Wait()
}

// Drain is Wait bounded by ctx.
func (pipeline *Pipeline) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		pipeline.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (pipeline *Pipeline) validate(reporter *database.Account, submission Submission) (*database.Report, error) {
	if reporter == nil {
		return nil, ErrUnauthenticated
	}
	if !reporter.IsApproved {
		return nil, ErrNotApproved
	}

	steamID := strings.TrimSpace(submission.SteamID)
	if steamID == "" {
		return nil, invalid("steamId", "is required")
	}
	if len(steamID) > 32 {
		return nil, invalid("steamId", "is too long")
	}

	category, ok := database.ParseCategory(submission.Category)
	if !ok {
		return nil, invalid("type", "must be one of aimbot, wallhack, griefing, other")
	}

	if len(submission.MatchID) > 64 {
		return nil, invalid("matchId", "is too long")
	}

	if submission.Evidence != nil && pipeline.blobs == nil {
		return nil, invalid("evidence", "uploads are disabled")
	}

	return &database.Report{
		SteamID:     steamID,
		MatchID:     strings.TrimSpace(submission.MatchID),
		Category:    category,
		Description: strings.TrimSpace(submission.Description),
		ReporterID:  reporter.ID,
	}, nil
}

func (pipeline *Pipeline) process(ctx context.Context, report *database.Report, submission Submission) {
	connectionID := submission.ConnectionID

	if submission.Evidence != nil {
		defer pipeline.discard(submission.Evidence)
	}

	defer func() {
		if r := recover(); r != nil {
			pipeline.log.Errorw("report pipeline panicked",
				"reporter", report.ReporterID,
				"panic", r,
			)
			pipeline.fail(connectionID, "Server error", fmt.Errorf("%v", r))
		}
	}()

	if submission.Evidence != nil {
		url, err := pipeline.upload(ctx, connectionID, *submission.Evidence)
		if err != nil {
			pipeline.log.Warnw("evidence upload failed",
				"reporter", report.ReporterID,
				"error", err,
			)
			return
		}
		report.EvidenceURL = url
	}

	if pipeline.names != nil {
		lookupCtx, cancel := context.WithTimeout(ctx, pipeline.lookupTimeout)
		name, err := pipeline.names.Name(lookupCtx, report.SteamID)
		cancel()
		if err == nil {
			report.SteamName = name
		} else {
			pipeline.log.Debugw("failed to resolve reported player name",
				"steamID", report.SteamID,
				"error", err,
			)
		}
	}

	if err := pipeline.store.CreateReport(ctx, report); err != nil {
		pipeline.log.Errorw("failed to create report",
			"reporter", report.ReporterID,
			"error", err,
		)
		pipeline.fail(connectionID, "Failed to save report", err)
		return
	}

	saved, err := pipeline.store.ReportWithReporter(ctx, report.ID)
	if err != nil {
		pipeline.log.Errorw("failed to reload report",
			"report", report.ID,
			"error", err,
		)
		pipeline.fail(connectionID, "Failed to load report", err)
		return
	}

	pipeline.emit(connectionID, EventReportDone, ProgressEvent{
		Stage:   StageDone,
		Percent: 100,
		Message: "Report submitted and awaiting review",
		URL:     saved.EvidenceURL,
	})

	pipeline.log.Infow("report submitted",
		"report", saved.ID,
		"reporter", saved.ReporterID,
		"steamID", saved.SteamID,
		"category", saved.Category,
	)

	pipeline.fan.send(ctx, StatusPending, saved)
}

func (pipeline *Pipeline) upload(ctx context.Context, connectionID string, evidence Evidence) (string, error) {
	if _, err := os.Stat(evidence.Path); err != nil {
		pipeline.fail(connectionID, "Uploaded file does not exist", err)
		return "", fmt.Errorf("%w: %v", ErrUploadFailure, err)
	}

	pipeline.emit(connectionID, EventUploadProgress, ProgressEvent{
		Stage:   StageUploading,
		Percent: 10,
		Message: "Uploading evidence",
	})

	url, err := pipeline.blobs.Store(ctx, evidence)
	if err != nil {
		pipeline.fail(connectionID, "Evidence upload failed", err)
		return "", fmt.Errorf("%w: %v", ErrUploadFailure, err)
	}

	pipeline.emit(connectionID, EventUploadProgress, ProgressEvent{
		Stage:   StageUploading,
		Percent: 100,
		Message: "Evidence uploaded",
		URL:     url,
	})
	return url, nil
}

func (pipeline *Pipeline) fail(connectionID, message string, err error) {
	pipeline.emit(connectionID, EventReportError, ProgressEvent{
		Stage:   StageError,
		Message: message,
		Error:   err.Error(),
	})
}

func (pipeline *Pipeline) emit(connectionID, event string, payload ProgressEvent) {
	if pipeline.progress != nil {
		pipeline.progress.Emit(connectionID, event, payload)
	}
}

func (pipeline *Pipeline) discard(evidence *Evidence) {
	if err := os.Remove(evidence.Path); err != nil && !os.IsNotExist(err) {
		pipeline.log.Warnw("failed to remove staged evidence",
			"path", evidence.Path,
			"error", err,
		)
	}
}
