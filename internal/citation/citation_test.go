package citation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/irisdrone/echallan/internal/database/dbtest"
	"github.com/irisdrone/echallan/internal/detection"
	"github.com/irisdrone/echallan/internal/models"
	"github.com/irisdrone/echallan/internal/rules"
	"github.com/irisdrone/echallan/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var eventTime = time.Date(2025, 10, 28, 18, 0, 0, 0, time.UTC)

func match(id string, penalty string, conf float64) rules.Match {
	return rules.Match{
		Rule:      models.Rule{RuleID: id, ViolationClass: "NoHelmet", Penalty: decimal.RequireFromString(penalty), Points: 2},
		Detection: detection.Detection{Class: "NoHelmet", Confidence: conf},
	}
}

func TestFingerprintIgnoresKeyOrderAndWhitespace(t *testing.T) {
	a := Fingerprint("cam1", eventTime, []byte(`{"class":"NoHelmet","confidence":0.6}`))
	b := Fingerprint("cam1", eventTime, []byte(` { "confidence": 0.6, "class": "NoHelmet" } `))
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestFingerprintSeparatesEvents(t *testing.T) {
	base := Fingerprint("cam1", eventTime, []byte(`{"class":"NoHelmet"}`))
	assert.NotEqual(t, base, Fingerprint("cam2", eventTime, []byte(`{"class":"NoHelmet"}`)))
	assert.NotEqual(t, base, Fingerprint("cam1", eventTime.Add(time.Nanosecond), []byte(`{"class":"NoHelmet"}`)))
	assert.NotEqual(t, base, Fingerprint("cam1", eventTime, []byte(`{"class":"Helmet"}`)))
	// Same instant in another zone is the same event
	ist := eventTime.In(time.FixedZone("IST", 5*3600+1800))
	assert.Equal(t, base, Fingerprint("cam1", ist, []byte(`{"class":"NoHelmet"}`)))
}

func TestNumber(t *testing.T) {
	assert.Equal(t, "CH20251028-ABCDEF012345", Number(eventTime, "abcdef0123456789"))
	assert.Regexp(t, `^CH\d{8}-[0-9A-F]{12}$`, Number(eventTime, Fingerprint("x", eventTime, nil)))
}

func TestBuildPreconditions(t *testing.T) {
	i := NewIssuer(nil)
	_, err := i.Build(Request{Fingerprint: "fp", OwnerID: "OWN001"})
	assert.ErrorIs(t, err, ErrNoViolations)
	_, err = i.Build(Request{Fingerprint: "fp", Matches: []rules.Match{match("r", "500", 0.6)}})
	assert.ErrorIs(t, err, ErrNoOwner)
}

func TestBuildTotals(t *testing.T) {
	i := NewIssuer(nil)
	c, err := i.Build(Request{
		Fingerprint: "0123456789abcdef",
		EventTime:   eventTime,
		VehicleNo:   "MH01AB1234",
		OwnerID:     "OWN001",
		Matches:     []rules.Match{match("a", "500", 0.6), match("a", "500", 0.9), match("b", "0.10", 0.5), match("c", "0.20", 0.5)},
	})
	require.NoError(t, err)
	assert.True(t, c.TotalPenalty.Equal(decimal.RequireFromString("1000.30")))
	assert.Equal(t, 8, c.TotalPoints)
	assert.Len(t, c.Violations, 4)
	assert.Equal(t, 0.9, c.Violations[1].Conf)
	assert.Equal(t, models.CitationIssued, c.Status)
	assert.False(t, c.Notified)
	assert.Empty(t, c.NotificationLog)
	assert.Equal(t, "CH20251028-0123456789AB", c.ChallanNo)
}

func TestIssueIsIdempotent(t *testing.T) {
	s := store.New(dbtest.New(t))
	i := NewIssuer(s)
	ctx := context.Background()

	fp := Fingerprint("web_upload", eventTime, []byte(`{"class":"NoHelmet","confidence":0.6}`))
	req := Request{
		Fingerprint: fp,
		EventTime:   eventTime,
		VehicleNo:   "MH01AB1234",
		OwnerID:     "OWN001",
		Matches:     []rules.Match{match("no_helmet_riding", "500", 0.6)},
	}

	first, err := i.Issue(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := i.Issue(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Citation.ChallanNo, second.Citation.ChallanNo)

	stored, err := s.GetCitation(ctx, first.Citation.ChallanNo)
	require.NoError(t, err)
	assert.True(t, stored.TotalPenalty.Equal(stored.SumPenalties()))
	assert.True(t, stored.TotalPenalty.Equal(decimal.NewFromInt(500)))

	var count int64
	require.NoError(t, s.DB().Model(&models.Citation{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestIssueLengthensClashingNumber(t *testing.T) {
	s := store.New(dbtest.New(t))
	i := NewIssuer(s)
	ctx := context.Background()

	fp := Fingerprint("cam1", eventTime, []byte(`{"class":"NoHelmet"}`))
	// Another event already holds the 12-digit number
	taken := Number(eventTime, fp)
	_, created, err := s.InsertCitationIfAbsent(ctx, &models.Citation{
		ChallanNo:   taken,
		Fingerprint: "other-event",
		VehicleNo:   "MH02CD5678",
		OwnerID:     "OWN002",
		Status:      models.CitationIssued,
		IssuedAt:    eventTime,
	})
	require.NoError(t, err)
	require.True(t, created)

	req := Request{
		Fingerprint: fp,
		EventTime:   eventTime,
		VehicleNo:   "MH01AB1234",
		OwnerID:     "OWN001",
		Matches:     []rules.Match{match("no_helmet_riding", "500", 0.6)},
	}
	first, err := i.Issue(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.NotEqual(t, taken, first.Citation.ChallanNo)
	assert.Regexp(t, `^CH20251028-[0-9A-F]{16}$`, first.Citation.ChallanNo)
	assert.True(t, strings.HasPrefix(first.Citation.ChallanNo, taken))

	again, err := i.Issue(ctx, req)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, first.Citation.ChallanNo, again.Citation.ChallanNo)

	var count int64
	require.NoError(t, s.DB().Model(&models.Citation{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}
