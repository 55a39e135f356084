package store

import (
	"context"
	"fmt"

	"github.com/irisdrone/echallan/internal/models"
	"gorm.io/gorm"
)

// InsertViolationLog appends a raw detection event.
func (s *Store) InsertViolationLog(ctx context.Context, log *models.ViolationLog) error {
	if err := s.db.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("insert violation log: %w", err)
	}
	return nil
}

// MarkViolationLogProcessed records the final outcome of a raw event.
func (s *Store) MarkViolationLogProcessed(ctx context.Context, id string, outcome models.Outcome, challanNo, errMsg *string) error {
	updates := map[string]interface{}{
		"processed": true,
		"outcome":   outcome,
	}
	if challanNo != nil {
		updates["challan_no"] = *challanNo
	}
	if errMsg != nil {
		updates["error"] = *errMsg
	}
	res := s.db.WithContext(ctx).Model(&models.ViolationLog{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("mark violation log %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetViolationLog fetches one raw event.
func (s *Store) GetViolationLog(ctx context.Context, id string) (*models.ViolationLog, error) {
	var log models.ViolationLog
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&log).Error; err != nil {
		return nil, notFound(err)
	}
	return &log, nil
}

// ViolationLogFilter narrows a raw event listing.
type ViolationLogFilter struct {
	Processed *bool
	Outcome   string
	VehicleNo string
	Source    string
	Page
}

// ListViolationLogs returns raw events newest first plus the unpaged total.
func (s *Store) ListViolationLogs(ctx context.Context, f ViolationLogFilter) ([]models.ViolationLog, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.ViolationLog{})
	if f.Processed != nil {
		query = query.Where("processed = ?", *f.Processed)
	}
	if f.Outcome != "" {
		query = query.Where("outcome = ?", f.Outcome)
	}
	if f.VehicleNo != "" {
		query = query.Where("vehicle_no = ?", f.VehicleNo)
	}
	if f.Source != "" {
		query = query.Where("source = ?", f.Source)
	}

	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count violation logs: %w", err)
	}

	page := f.Page.Normalize()
	var logs []models.ViolationLog
	if err := query.Order("received_at DESC").Limit(page.Limit).Offset(page.Offset).Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("list violation logs: %w", err)
	}
	return logs, total, nil
}
