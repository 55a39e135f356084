package store

import (
	"context"
	"fmt"

	"github.com/irisdrone/echallan/internal/models"
	"gorm.io/gorm/clause"
)

// ActiveRulesForClass returns active rules for a violation class ordered by rule_id.
func (s *Store) ActiveRulesForClass(ctx context.Context, class string) ([]models.Rule, error) {
	var rules []models.Rule
	err := s.db.WithContext(ctx).
		Where("violation_class = ? AND active = ?", class, true).
		Order("rule_id ASC").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("query rules for %q: %w", class, err)
	}
	return rules, nil
}

// ListRules returns every rule, active or not.
func (s *Store) ListRules(ctx context.Context) ([]models.Rule, error) {
	var rules []models.Rule
	if err := s.db.WithContext(ctx).Order("rule_id ASC").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rules, nil
}

// GetVehicle looks a vehicle up by canonical plate number.
func (s *Store) GetVehicle(ctx context.Context, vehicleNo string) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	if err := s.db.WithContext(ctx).Where("vehicle_no = ?", vehicleNo).First(&vehicle).Error; err != nil {
		return nil, notFound(err)
	}
	return &vehicle, nil
}

// GetOwner looks an owner up by id.
func (s *Store) GetOwner(ctx context.Context, ownerID string) (*models.Owner, error) {
	var owner models.Owner
	if err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&owner).Error; err != nil {
		return nil, notFound(err)
	}
	return &owner, nil
}

// UpsertRule creates or replaces a rule by rule_id.
func (s *Store) UpsertRule(ctx context.Context, rule *models.Rule) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "rule_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"violation_class", "min_confidence", "apply_to", "penalty", "points", "active", "updated_at"}),
	}).Create(rule).Error
}

// UpsertOwner creates or replaces an owner by owner_id.
func (s *Store) UpsertOwner(ctx context.Context, owner *models.Owner) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "phone", "email", "address", "updated_at"}),
	}).Create(owner).Error
}

// UpsertVehicle creates or replaces a vehicle by vehicle_no.
func (s *Store) UpsertVehicle(ctx context.Context, vehicle *models.Vehicle) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "vehicle_no"}},
		DoUpdates: clause.AssignmentColumns([]string{"owner_id", "make", "model", "color", "category", "updated_at"}),
	}).Create(vehicle).Error
}
