// Package rules reads the configured violation rules and matches
// detections against them.
package rules

import (
	"context"

	"github.com/irisdrone/echallan/internal/models"
	"github.com/sirupsen/logrus"
)

// Source is the durable rule store.
type Source interface {
	ActiveRulesForClass(ctx context.Context, class string) ([]models.Rule, error)
}

// Catalog answers "which active rules exist for this class", optionally
// through a cache. Cache failures degrade to a direct store read.
type Catalog struct {
	src   Source
	cache Cache
	log   logrus.FieldLogger
}

// NewCatalog creates a Catalog. cache may be nil.
func NewCatalog(src Source, cache Cache, log logrus.FieldLogger) *Catalog {
	return &Catalog{src: src, cache: cache, log: log.WithField("component", "RULES")}
}

// ActiveRulesForClass returns active rules for class ordered by rule_id.
func (c *Catalog) ActiveRulesForClass(ctx context.Context, class string) ([]models.Rule, error) {
	if c.cache != nil {
		rules, found, err := c.cache.Get(ctx, class)
		if err != nil {
			c.log.WithError(err).WithField("class", class).Warn("Rule cache read failed, using store")
		} else if found {
			return rules, nil
		}
	}

	rules, err := c.src.ActiveRulesForClass(ctx, class)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, class, rules); err != nil {
			c.log.WithError(err).WithField("class", class).Warn("Rule cache write failed")
		}
	}
	return rules, nil
}

// Invalidate drops every cached rule set.
func (c *Catalog) Invalidate(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Flush(ctx)
}
