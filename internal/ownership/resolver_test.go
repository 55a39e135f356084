package ownership

import (
	"context"
	"errors"
	"testing"

	"github.com/irisdrone/echallan/internal/database/dbtest"
	"github.com/irisdrone/echallan/internal/models"
	"github.com/irisdrone/echallan/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(t *testing.T) *store.Store {
	t.Helper()
	s := store.New(dbtest.New(t))
	ctx := context.Background()
	require.NoError(t, s.UpsertOwner(ctx, &models.Owner{OwnerID: "OWN001", Name: "Aadita Nag", Phone: "+916901578022"}))
	require.NoError(t, s.UpsertVehicle(ctx, &models.Vehicle{VehicleNo: "MH01AB1234", OwnerID: "OWN001"}))
	require.NoError(t, s.UpsertVehicle(ctx, &models.Vehicle{VehicleNo: "KA05XY9999", OwnerID: "OWN404"}))
	return s
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "MH01AB1234", Canonical("mh 01 ab-1234"))
	assert.Equal(t, "MH01AB1234", Canonical(" MH01AB1234\t"))
	assert.Equal(t, "", Canonical("  - "))
}

func TestResolve(t *testing.T) {
	r := NewResolver(seeded(t))
	ctx := context.Background()

	tests := []struct {
		name     string
		input    string
		resolved bool
		reason   string
	}{
		{"known vehicle", "MH01AB1234", true, ""},
		{"known vehicle loose format", "mh01 ab 1234", true, ""},
		{"empty", "", false, ReasonNoVehicleID},
		{"unknown vehicle", "ZZ99ZZ9999", false, ReasonVehicleNotFound},
		{"dangling owner", "KA05XY9999", false, ReasonOwnerNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Resolve(ctx, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.resolved, res.Resolved())
			assert.Equal(t, tt.reason, res.Reason)
			if tt.resolved {
				assert.Equal(t, "OWN001", res.Owner.OwnerID)
				assert.Equal(t, "MH01AB1234", res.VehicleNo)
			}
		})
	}
}

type brokenStore struct{}

func (brokenStore) GetVehicle(context.Context, string) (*models.Vehicle, error) {
	return nil, errors.New("connection reset")
}

func (brokenStore) GetOwner(context.Context, string) (*models.Owner, error) {
	return nil, errors.New("connection reset")
}

func TestResolveStoreFailureIsHard(t *testing.T) {
	_, err := NewResolver(brokenStore{}).Resolve(context.Background(), "MH01AB1234")
	assert.Error(t, err)
}
