// Package dbtest opens throwaway migrated databases for package tests.
package dbtest

import (
	"testing"

	"github.com/irisdrone/echallan/internal/config"
	"github.com/irisdrone/echallan/internal/database"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// New returns an in-memory sqlite database with every table migrated.
// It is closed when the test ends.
func New(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		URL:         "sqlite://:memory:",
		LogLevel:    "silent",
		AutoMigrate: true,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}
