package store

import (
	"context"
	"fmt"

	"github.com/irisdrone/echallan/internal/models"
	"github.com/shopspring/decimal"
)

// Stats summarises pipeline activity for the operator dashboard.
type Stats struct {
	Events         int64            `json:"events"`
	Unprocessed    int64            `json:"unprocessed"`
	ByOutcome      map[string]int64 `json:"byOutcome"`
	Citations      int64            `json:"citations"`
	ByStatus       map[string]int64 `json:"byStatus"`
	Notified       int64            `json:"notified"`
	PendingReviews int64            `json:"pendingReviews"`
	PenaltyIssued  decimal.Decimal  `json:"penaltyIssued"`
	PenaltyPaid    decimal.Decimal  `json:"penaltyPaid"`
}

// Stats computes counts by outcome and citation status plus penalty totals.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	db := s.db.WithContext(ctx)
	stats := &Stats{
		ByOutcome: make(map[string]int64),
		ByStatus:  make(map[string]int64),
	}

	if err := db.Model(&models.ViolationLog{}).Count(&stats.Events).Error; err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	if err := db.Model(&models.ViolationLog{}).Where("processed = ?", false).Count(&stats.Unprocessed).Error; err != nil {
		return nil, fmt.Errorf("count unprocessed: %w", err)
	}

	var outcomeCounts []struct {
		Outcome string
		Count   int64
	}
	if err := db.Model(&models.ViolationLog{}).
		Select("outcome, COUNT(*) as count").
		Where("outcome IS NOT NULL").
		Group("outcome").
		Scan(&outcomeCounts).Error; err != nil {
		return nil, fmt.Errorf("count outcomes: %w", err)
	}
	for _, oc := range outcomeCounts {
		stats.ByOutcome[oc.Outcome] = oc.Count
	}

	var statusCounts []struct {
		Status string
		Count  int64
	}
	if err := db.Model(&models.Citation{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&statusCounts).Error; err != nil {
		return nil, fmt.Errorf("count citation status: %w", err)
	}
	for _, sc := range statusCounts {
		stats.ByStatus[sc.Status] = sc.Count
		stats.Citations += sc.Count
	}

	if err := db.Model(&models.Citation{}).Where("notified = ?", true).Count(&stats.Notified).Error; err != nil {
		return nil, fmt.Errorf("count notified: %w", err)
	}
	if err := db.Model(&models.ManualReview{}).Where("status = ?", models.ReviewPending).Count(&stats.PendingReviews).Error; err != nil {
		return nil, fmt.Errorf("count reviews: %w", err)
	}

	if err := db.Model(&models.Citation{}).
		Where("status <> ?", models.CitationVoid).
		Select("COALESCE(SUM(total_penalty), 0)").
		Row().Scan(&stats.PenaltyIssued); err != nil {
		return nil, fmt.Errorf("sum issued penalty: %w", err)
	}
	if err := db.Model(&models.Citation{}).
		Where("status = ?", models.CitationPaid).
		Select("COALESCE(SUM(total_penalty), 0)").
		Row().Scan(&stats.PenaltyPaid); err != nil {
		return nil, fmt.Errorf("sum paid penalty: %w", err)
	}

	return stats, nil
}
