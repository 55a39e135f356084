// Package review queues events whose owner could not be resolved.
package review

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/irisdrone/echallan/internal/models"
)

// Store persists review records idempotently by fingerprint.
type Store interface {
	InsertReviewIfAbsent(ctx context.Context, r *models.ManualReview) (*models.ManualReview, bool, error)
}

// Item is what the coordinator hands over for review.
type Item struct {
	Fingerprint string
	Source      string
	VehicleNo   string
	Detection   []byte
	Reason      string
}

// Queue is the manual review backlog.
type Queue struct {
	store Store
	now   func() time.Time
}

// NewQueue creates a Queue.
func NewQueue(s Store) *Queue {
	return &Queue{store: s, now: time.Now}
}

// Enqueue records item for human follow-up. Re-enqueueing the same event
// returns the existing record and created=false.
func (q *Queue) Enqueue(ctx context.Context, item Item) (*models.ManualReview, bool, error) {
	rec := &models.ManualReview{
		ID:          uuid.New().String(),
		Fingerprint: item.Fingerprint,
		Source:      item.Source,
		Detection:   models.RawJSONB(item.Detection),
		Status:      models.ReviewPending,
		Reason:      item.Reason,
		CreatedAt:   q.now().UTC(),
	}
	if item.VehicleNo != "" {
		v := item.VehicleNo
		rec.VehicleNo = &v
	}

	stored, created, err := q.store.InsertReviewIfAbsent(ctx, rec)
	if err != nil {
		return nil, false, fmt.Errorf("enqueue review: %w", err)
	}
	return stored, created, nil
}
