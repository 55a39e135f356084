package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/irisdrone/echallan/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InsertCitationIfAbsent inserts c unless a citation with the same
// fingerprint exists, in which case the stored row is returned and created
// is false. If c's challan number is held by another event, ErrNumberTaken
// is returned and nothing is written.
func (s *Store) InsertCitationIfAbsent(ctx context.Context, c *models.Citation) (*models.Citation, bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(c)
	if res.Error != nil {
		return nil, false, fmt.Errorf("insert citation %s: %w", c.ChallanNo, res.Error)
	}
	if res.RowsAffected > 0 {
		return c, true, nil
	}

	existing, err := s.GetCitationByFingerprint(ctx, c.Fingerprint)
	if errors.Is(err, ErrNotFound) {
		// The conflict was on challan_no
		return nil, false, fmt.Errorf("insert citation %s: %w", c.ChallanNo, ErrNumberTaken)
	}
	if err != nil {
		return nil, false, fmt.Errorf("load existing citation for %s: %w", c.ChallanNo, err)
	}
	return existing, false, nil
}

// GetCitation fetches a citation by challan number.
func (s *Store) GetCitation(ctx context.Context, challanNo string) (*models.Citation, error) {
	var c models.Citation
	if err := s.db.WithContext(ctx).Where("challan_no = ?", challanNo).First(&c).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// GetCitationByFingerprint fetches the citation issued for an event fingerprint.
func (s *Store) GetCitationByFingerprint(ctx context.Context, fingerprint string) (*models.Citation, error) {
	var c models.Citation
	if err := s.db.WithContext(ctx).Where("fingerprint = ?", fingerprint).First(&c).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// AppendNotification adds one delivery attempt to a citation's log and,
// when delivered is true, sets notified. notified never flips back.
func (s *Store) AppendNotification(ctx context.Context, challanNo string, entry models.NotificationEntry, delivered bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Citation
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("challan_no = ?", challanNo).
			First(&c).Error
		if err != nil {
			return notFound(err)
		}

		entries := append(models.JSONList[models.NotificationEntry]{}, c.NotificationLog...)
		entries = append(entries, entry)
		return tx.Model(&models.Citation{}).
			Where("id = ?", c.ID).
			Updates(map[string]interface{}{
				"notification_log": entries,
				"notified":         c.Notified || delivered,
			}).Error
	})
}

// CitationFilter narrows a citation listing.
type CitationFilter struct {
	Status    string
	VehicleNo string
	OwnerID   string
	Page
}

// ListCitations returns citations newest first plus the unpaged total.
func (s *Store) ListCitations(ctx context.Context, f CitationFilter) ([]models.Citation, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Citation{})
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.VehicleNo != "" {
		query = query.Where("vehicle_no = ?", f.VehicleNo)
	}
	if f.OwnerID != "" {
		query = query.Where("owner_id = ?", f.OwnerID)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count citations: %w", err)
	}

	page := f.Page.Normalize()
	var citations []models.Citation
	if err := query.Order("issued_at DESC").Limit(page.Limit).Offset(page.Offset).Find(&citations).Error; err != nil {
		return nil, 0, fmt.Errorf("list citations: %w", err)
	}
	return citations, total, nil
}

// CloseCitation moves an issued citation to paid or void. Any other
// transition returns ErrInvalidTransition.
func (s *Store) CloseCitation(ctx context.Context, challanNo string, to models.CitationStatus, by, note *string) (*models.Citation, error) {
	if to != models.CitationPaid && to != models.CitationVoid {
		return nil, ErrInvalidTransition
	}

	updates := map[string]interface{}{
		"status":    to,
		"closed_at": time.Now().UTC(),
	}
	if by != nil {
		updates["closed_by"] = *by
	}
	if note != nil {
		updates["status_note"] = *note
	}

	res := s.db.WithContext(ctx).Model(&models.Citation{}).
		Where("challan_no = ? AND status = ?", challanNo, models.CitationIssued).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("close citation %s: %w", challanNo, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetCitation(ctx, challanNo); err != nil {
			return nil, err
		}
		return nil, ErrInvalidTransition
	}
	return s.GetCitation(ctx, challanNo)
}
