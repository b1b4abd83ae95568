package cheat_report

import (
	"context"

	"github.com/r4g3baby/cheat-report/database"
	"go.uber.org/zap"
)

// Moderator moves reports out of pending. Approved and rejected are both
// terminal; a rejected report no longer exists.
type Moderator struct {
	store *database.Store
	fan   fanOut
	log   *zap.SugaredLogger
}

func NewModerator(store *database.Store, notifier Notifier, log *zap.SugaredLogger) *Moderator {
	return &Moderator{
		store: store,
		fan:   fanOut{notifier: notifier, log: log},
		log:   log,
	}
}

func (moderator *Moderator) Approve(ctx context.Context, reportID uint64) (*database.Report, error) {
	if err := moderator.store.ApproveReport(ctx, reportID); err != nil {
		return nil, err
	}

	report, err := moderator.store.ReportWithReporter(ctx, reportID)
	if err != nil {
		return nil, err
	}

	moderator.log.Infow("report approved",
		"report", report.ID,
		"steamID", report.SteamID,
	)

	moderator.fan.send(ctx, StatusApproved, report)
	return report, nil
}

// Reject deletes the report and notifies with the copy read beforehand.
func (moderator *Moderator) Reject(ctx context.Context, reportID uint64) (*database.Report, error) {
	snapshot, err := moderator.store.ReportWithReporter(ctx, reportID)
	if err != nil {
		return nil, err
	}

	if err := moderator.store.DeleteReport(ctx, reportID); err != nil {
		return nil, err
	}

	moderator.log.Infow("report rejected",
		"report", snapshot.ID,
		"steamID", snapshot.SteamID,
	)

	moderator.fan.send(ctx, StatusRejected, snapshot)
	return snapshot, nil
}

func (moderator *Moderator) Reports(ctx context.Context, filter database.ReportFilter) ([]database.Report, error) {
	return moderator.store.Reports(ctx, filter)
}
