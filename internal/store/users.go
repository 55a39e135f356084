package store

import (
	"context"
	"fmt"

	"github.com/irisdrone/echallan/internal/models"
	"gorm.io/gorm/clause"
)

// GetUserByUsername fetches an operator account.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// UpsertUser creates an operator account or refreshes its password and role.
func (s *Store) UpsertUser(ctx context.Context, user *models.User) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoUpdates: clause.AssignmentColumns([]string{"password_hash", "role", "updated_at"}),
	}).Create(user).Error
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", user.Username, err)
	}
	return nil
}
