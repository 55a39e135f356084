// Package citation issues challans for resolved, rule-triggering events.
package citation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/irisdrone/echallan/internal/models"
	"github.com/irisdrone/echallan/internal/rules"
	"github.com/irisdrone/echallan/internal/store"
	"github.com/shopspring/decimal"
)

var (
	ErrNoViolations = errors.New("citation needs at least one matched rule")
	ErrNoOwner      = errors.New("citation needs a resolved owner")
)

// Store persists citations with insert-if-absent semantics.
type Store interface {
	InsertCitationIfAbsent(ctx context.Context, c *models.Citation) (*models.Citation, bool, error)
}

// Request carries everything needed to issue one citation.
type Request struct {
	Fingerprint string
	EventTime   time.Time
	VehicleNo   string
	OwnerID     string
	Matches     []rules.Match
}

// Result is the issued citation. Duplicate is set when the event had
// already been cited and the stored citation was returned unchanged.
type Result struct {
	Citation  *models.Citation
	Duplicate bool
}

// Issuer creates citations.
type Issuer struct {
	store Store
	now   func() time.Time
}

// NewIssuer creates an Issuer.
func NewIssuer(s Store) *Issuer {
	return &Issuer{store: s, now: time.Now}
}

// Build assembles the citation for req without persisting it.
func (i *Issuer) Build(req Request) (*models.Citation, error) {
	if len(req.Matches) == 0 {
		return nil, ErrNoViolations
	}
	if req.OwnerID == "" {
		return nil, ErrNoOwner
	}

	lines := make(models.JSONList[models.ViolationLine], 0, len(req.Matches))
	total := decimal.Zero
	points := 0
	for _, m := range req.Matches {
		lines = append(lines, models.ViolationLine{
			RuleID:  m.Rule.RuleID,
			Class:   m.Detection.Class,
			Penalty: m.Rule.Penalty,
			Points:  m.Rule.Points,
			Conf:    m.Detection.Confidence,
		})
		total = total.Add(m.Rule.Penalty)
		points += m.Rule.Points
	}

	return &models.Citation{
		ChallanNo:       Number(req.EventTime, req.Fingerprint),
		Fingerprint:     req.Fingerprint,
		VehicleNo:       req.VehicleNo,
		OwnerID:         req.OwnerID,
		Violations:      lines,
		TotalPenalty:    total,
		TotalPoints:     points,
		Status:          models.CitationIssued,
		IssuedAt:        i.now().UTC(),
		Notified:        false,
		NotificationLog: models.JSONList[models.NotificationEntry]{},
	}, nil
}

// Issue persists a new citation for req. A second call for the same
// fingerprint writes nothing and returns the first citation. If the short
// challan number clashes with another event the number is lengthened with
// more fingerprint digits, so the same event always settles on the same
// number.
func (i *Issuer) Issue(ctx context.Context, req Request) (*Result, error) {
	c, err := i.Build(req)
	if err != nil {
		return nil, err
	}
	for n := numberSuffixLen; ; n += 4 {
		c.ID = 0
		c.ChallanNo = numberWithSuffix(req.EventTime, req.Fingerprint, n)
		stored, created, err := i.store.InsertCitationIfAbsent(ctx, c)
		if errors.Is(err, store.ErrNumberTaken) && n < len(req.Fingerprint) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("persist citation: %w", err)
		}
		return &Result{Citation: stored, Duplicate: !created}, nil
	}
}
