package database

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

type (
	ReportStatus string

	// ReportFilter narrows a report listing. Query takes precedence over
	// ReporterID; an empty filter lists every report.
	ReportFilter struct {
		Query      string
		ReporterID uint64
		Status     ReportStatus
		Limit      int
	}
)

const (
	ReportStatusAll      ReportStatus = ""
	ReportStatusPending  ReportStatus = "pending"
	ReportStatusApproved ReportStatus = "approved"
)

func (store *Store) CreateReport(ctx context.Context, report *Report) error {
	return store.DB.WithContext(ctx).Omit("Reporter").Create(report).Error
}

// ReportWithReporter loads the report joined with the reporter's account.
func (store *Store) ReportWithReporter(ctx context.Context, id uint64) (*Report, error) {
	var report Report
	if result := store.DB.WithContext(ctx).Preload("Reporter").First(&report, id); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &report, nil
}

func (store *Store) Reports(ctx context.Context, filter ReportFilter) ([]Report, error) {
	query := store.DB.WithContext(ctx).Preload("Reporter").Order("created_at DESC").Order("id DESC")

	if q := strings.ToLower(strings.TrimSpace(filter.Query)); q != "" {
		like := "%" + q + "%"
		reporters := store.DB.WithContext(ctx).Model(&Account{}).Select("id").Where(
			"LOWER(steam_id) LIKE ? OR LOWER(steam_name) LIKE ? OR LOWER(discord_id) LIKE ?",
			like, like, like,
		)
		query = query.Where(
			"LOWER(steam_id) LIKE ? OR LOWER(steam_name) LIKE ? OR reporter_id IN (?)",
			like, like, reporters,
		)
	} else if filter.ReporterID != 0 {
		query = query.Where("reporter_id = ?", filter.ReporterID)
	}

	switch filter.Status {
	case ReportStatusPending:
		query = query.Where("approved = ?", false)
	case ReportStatusApproved:
		query = query.Where("approved = ?", true)
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var reports []Report
	if result := query.Find(&reports); result.Error != nil {
		return nil, result.Error
	}
	return reports, nil
}

// ApproveReport sets approved once. A second call fails with
// ErrAlreadyApproved and leaves the row untouched.
func (store *Store) ApproveReport(ctx context.Context, id uint64) error {
	result := store.DB.WithContext(ctx).Model(&Report{}).
		Where("id = ? AND approved = ?", id, false).
		Update("approved", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if result := store.DB.WithContext(ctx).Model(&Report{}).Where("id = ?", id).Count(&count); result.Error != nil {
		return result.Error
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrAlreadyApproved
}

func (store *Store) DeleteReport(ctx context.Context, id uint64) error {
	result := store.DB.WithContext(ctx).Delete(&Report{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
