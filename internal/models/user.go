package models

import (
	"time"
)

// Operator roles
const (
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// User is an operator account for the challan browse/admin API
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"uniqueIndex;not null" json:"username" yaml:"username" validate:"required"`
	PasswordHash string    `gorm:"not null" json:"-" yaml:"-"`
	Role         string    `gorm:"column:role" json:"role" yaml:"role" validate:"omitempty,oneof=operator admin"`
	CreatedAt    time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt    time.Time `json:"updatedAt" yaml:"-"`
}

func (User) TableName() string {
	return "users"
}

// CanClose reports whether the user may mark challans paid or void.
func (u *User) CanClose() bool {
	return u.Role == RoleAdmin || u.Role == RoleOperator
}
