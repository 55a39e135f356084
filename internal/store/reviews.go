package store

import (
	"context"
	"fmt"

	"github.com/irisdrone/echallan/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InsertReviewIfAbsent queues r unless the same event fingerprint is
// already queued, in which case the stored record is returned.
func (s *Store) InsertReviewIfAbsent(ctx context.Context, r *models.ManualReview) (*models.ManualReview, bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(r)
	if res.Error != nil {
		return nil, false, fmt.Errorf("insert manual review: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return r, true, nil
	}

	var existing models.ManualReview
	if err := s.db.WithContext(ctx).Where("fingerprint = ?", r.Fingerprint).First(&existing).Error; err != nil {
		return nil, false, fmt.Errorf("load existing manual review: %w", notFound(err))
	}
	return &existing, false, nil
}

// ListReviews returns queued reviews newest first plus the unpaged total.
func (s *Store) ListReviews(ctx context.Context, status string, p Page) ([]models.ManualReview, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.ManualReview{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count reviews: %w", err)
	}

	page := p.Normalize()
	var reviews []models.ManualReview
	if err := query.Order("created_at DESC").Limit(page.Limit).Offset(page.Offset).Find(&reviews).Error; err != nil {
		return nil, 0, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, total, nil
}
