package review

import (
	"context"
	"testing"

	"github.com/irisdrone/echallan/internal/database/dbtest"
	"github.com/irisdrone/echallan/internal/models"
	"github.com/irisdrone/echallan/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueue(t *testing.T) {
	s := store.New(dbtest.New(t))
	q := NewQueue(s)
	ctx := context.Background()

	rec, created, err := q.Enqueue(ctx, Item{
		Fingerprint: "fp1",
		Source:      "web_upload",
		Detection:   []byte(`{"class":"NoHelmet","confidence":0.6}`),
		Reason:      "no_vehicle_id",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Nil(t, rec.VehicleNo)
	assert.Equal(t, models.ReviewPending, rec.Status)

	again, created, err := q.Enqueue(ctx, Item{Fingerprint: "fp1", Reason: "no_vehicle_id"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, rec.ID, again.ID)

	reviews, total, err := s.ListReviews(ctx, "", store.Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, reviews, 1)
	assert.Equal(t, map[string]interface{}{"class": "NoHelmet", "confidence": 0.6}, reviews[0].Detection.Data)
}

func TestEnqueueKeepsVehicle(t *testing.T) {
	s := store.New(dbtest.New(t))
	rec, _, err := NewQueue(s).Enqueue(context.Background(), Item{Fingerprint: "fp2", VehicleNo: "ZZ99ZZ9999", Reason: "vehicle_not_found"})
	require.NoError(t, err)
	require.NotNil(t, rec.VehicleNo)
	assert.Equal(t, "ZZ99ZZ9999", *rec.VehicleNo)
}
