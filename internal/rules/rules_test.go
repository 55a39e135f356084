package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/irisdrone/echallan/internal/detection"
	"github.com/irisdrone/echallan/internal/logging"
	"github.com/irisdrone/echallan/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	byClass map[string][]models.Rule
	calls   int
	err     error
}

func (f *fakeSource) ActiveRulesForClass(_ context.Context, class string) ([]models.Rule, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.byClass[class], nil
}

func rule(id, class string, minConf float64, penalty int64) models.Rule {
	return models.Rule{RuleID: id, ViolationClass: class, MinConfidence: minConf, Penalty: decimal.NewFromInt(penalty), Active: true}
}

func TestThresholdIsInclusive(t *testing.T) {
	r := rule("no_helmet_riding", "NoHelmet", 0.45, 500)
	assert.True(t, Applies(r, detection.Detection{Class: "NoHelmet", Confidence: 0.45}))
	assert.True(t, Applies(r, detection.Detection{Class: "NoHelmet", Confidence: 0.46}))
	assert.False(t, Applies(r, detection.Detection{Class: "NoHelmet", Confidence: 0.44}))
}

func TestMatchOrderAndMultiset(t *testing.T) {
	src := &fakeSource{byClass: map[string][]models.Rule{
		"NoHelmet": {rule("a", "NoHelmet", 0.4, 500), rule("b", "NoHelmet", 0.8, 100)},
		"Triple":   {rule("c", "Triple", 0.5, 1000)},
	}}
	m := NewMatcher(src, false)

	dets := []detection.Detection{
		{Class: "NoHelmet", Confidence: 0.6},
		{Class: "", Confidence: 0.99},
		{Class: "Triple", Confidence: 0.5},
		{Class: "NoHelmet", Confidence: 0.9},
	}
	matches, err := m.Match(context.Background(), dets)
	require.NoError(t, err)

	ids := make([]string, 0, len(matches))
	for _, mt := range matches {
		ids = append(ids, mt.Rule.RuleID)
	}
	assert.Equal(t, []string{"a", "c", "a", "b"}, ids)
	assert.Equal(t, 0.9, matches[2].Detection.Confidence)
	// Empty class never reaches the store
	assert.Equal(t, 3, src.calls)
}

func TestMatchDedupe(t *testing.T) {
	src := &fakeSource{byClass: map[string][]models.Rule{
		"NoHelmet": {rule("a", "NoHelmet", 0.4, 500)},
	}}
	m := NewMatcher(src, true)

	matches, err := m.Match(context.Background(), []detection.Detection{
		{Class: "NoHelmet", Confidence: 0.6},
		{Class: "NoHelmet", Confidence: 0.9},
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 0.6, matches[0].Detection.Confidence)
}

func TestEmptyClassNeverMatches(t *testing.T) {
	src := &fakeSource{byClass: map[string][]models.Rule{
		"": {rule("catch_all", "", 0, 100)},
	}}
	matches, err := NewMatcher(src, false).Match(context.Background(), []detection.Detection{{Class: "", Confidence: 1}})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMatchStoreError(t *testing.T) {
	src := &fakeSource{err: errors.New("db down")}
	_, err := NewMatcher(src, false).Match(context.Background(), []detection.Detection{{Class: "NoHelmet", Confidence: 1}})
	assert.Error(t, err)
}

func TestBillable(t *testing.T) {
	matches := []Match{
		{Rule: rule("helmet_detected", "Helmet", 0.45, 0)},
		{Rule: rule("no_helmet_riding", "NoHelmet", 0.45, 500)},
	}
	billable := Billable(matches)
	require.Len(t, billable, 1)
	assert.Equal(t, "no_helmet_riding", billable[0].Rule.RuleID)
	assert.Empty(t, Billable(matches[:1]))
}

func TestCatalogUsesMemoryCache(t *testing.T) {
	src := &fakeSource{byClass: map[string][]models.Rule{
		"NoHelmet": {rule("a", "NoHelmet", 0.4, 500)},
	}}
	cat := NewCatalog(src, NewMemoryCache(time.Minute), logging.Discard())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rules, err := cat.ActiveRulesForClass(ctx, "NoHelmet")
		require.NoError(t, err)
		require.Len(t, rules, 1)
	}
	assert.Equal(t, 1, src.calls)

	require.NoError(t, cat.Invalidate(ctx))
	_, err := cat.ActiveRulesForClass(ctx, "NoHelmet")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestCatalogFallsBackWhenRedisUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	src := &fakeSource{byClass: map[string][]models.Rule{
		"NoHelmet": {rule("a", "NoHelmet", 0.4, 500)},
	}}
	cat := NewCatalog(src, NewRedisCache(client, time.Minute), logging.Discard())

	rules, err := cat.ActiveRulesForClass(context.Background(), "NoHelmet")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, 1, src.calls)
}

func TestRedisKey(t *testing.T) {
	assert.Equal(t, "echallan:rules:NoHelmet", redisKey("NoHelmet"))
}
