package database

import (
	"testing"

	"github.com/irisdrone/echallan/internal/config"
	"github.com/irisdrone/echallan/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteMigratesTables(t *testing.T) {
	db, err := Open(config.DatabaseConfig{URL: "sqlite://:memory:", LogLevel: "silent", AutoMigrate: true}, nil)
	require.NoError(t, err)
	defer Close(db)

	for _, table := range []string{"violation_logs", "rules", "owners", "vehicles", "challans", "manual_reviews", "users"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}

func TestCitationJSONColumnsRoundTrip(t *testing.T) {
	db, err := Open(config.DatabaseConfig{URL: "sqlite://:memory:", LogLevel: "silent", AutoMigrate: true}, nil)
	require.NoError(t, err)
	defer Close(db)

	c := models.Citation{
		ChallanNo:   "CH20250101-ABCDEF012345",
		Fingerprint: "abcdef012345",
		VehicleNo:   "MH01AB1234",
		OwnerID:     "OWN001",
		Violations: models.JSONList[models.ViolationLine]{
			{RuleID: "r1", Penalty: decimal.RequireFromString("250.50"), Conf: 0.6},
			{RuleID: "r2", Penalty: decimal.RequireFromString("100"), Conf: 0.7},
		},
		TotalPenalty: decimal.RequireFromString("350.50"),
		Status:       models.CitationIssued,
	}
	require.NoError(t, db.Create(&c).Error)

	var got models.Citation
	require.NoError(t, db.Where("challan_no = ?", c.ChallanNo).First(&got).Error)
	require.Len(t, got.Violations, 2)
	assert.True(t, got.TotalPenalty.Equal(got.SumPenalties()))
	assert.Equal(t, "r1", got.Violations[0].RuleID)
	assert.Empty(t, got.NotificationLog)
}
