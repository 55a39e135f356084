// Package store is the gorm-backed persistence layer. Each pipeline
// component declares the narrow interface it needs; *Store satisfies all
// of them.
package store

import (
	"errors"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidTransition is returned when a citation status change is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNumberTaken is returned when a challan number already belongs to
	// a different event.
	ErrNumberTaken = errors.New("challan number already taken")
)

// Store wraps a gorm handle.
type Store struct {
	db *gorm.DB
}

// New creates a Store over an open database.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Page is a limit/offset window. Limit defaults to 50 and is capped at 200.
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps the window to the allowed range.
func (p Page) Normalize() Page {
	if p.Limit <= 0 || p.Limit > 200 {
		if p.Limit > 200 {
			p.Limit = 200
		} else {
			p.Limit = 50
		}
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
