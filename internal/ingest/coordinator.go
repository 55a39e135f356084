// Package ingest drives one detection event from arrival to a terminal
// outcome: logged, matched, resolved, then issued, queued for review or
// dropped as no-rule-triggered.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/irisdrone/echallan/internal/citation"
	"github.com/irisdrone/echallan/internal/metrics"
	"github.com/irisdrone/echallan/internal/models"
	"github.com/irisdrone/echallan/internal/notify"
	"github.com/irisdrone/echallan/internal/ownership"
	"github.com/irisdrone/echallan/internal/review"
	"github.com/irisdrone/echallan/internal/rules"
	"github.com/sirupsen/logrus"
)

// Response statuses returned to producers.
const (
	StatusOK             = "ok"
	StatusChallanCreated = "challan_created"
	StatusManualReview   = "manual_review"
)

// LogStore is the append-only raw event log.
type LogStore interface {
	InsertViolationLog(ctx context.Context, log *models.ViolationLog) error
	MarkViolationLogProcessed(ctx context.Context, id string, outcome models.Outcome, challanNo, errMsg *string) error
}

// Notifier delivers the owner notice for a new challan.
type Notifier interface {
	Notify(ctx context.Context, c *models.Citation, owner *models.Owner) notify.Result
}

// Publisher is told about every newly issued challan.
type Publisher interface {
	PublishIssued(c *models.Citation)
}

// Response is the producer-facing result of one event.
type Response struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	ChallanNo string `json:"challan_no,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	EventID   string `json:"event_id,omitempty"`

	Outcome models.Outcome `json:"-"`
}

// Deps wires the coordinator's collaborators.
type Deps struct {
	Logs       LogStore
	Matcher    *rules.Matcher
	Resolver   *ownership.Resolver
	Issuer     *citation.Issuer
	Notifier   Notifier
	Reviews    *review.Queue
	Publishers []Publisher
	Log        logrus.FieldLogger
	Metrics    *metrics.Metrics
}

// Coordinator runs the per-event pipeline. It holds no per-event state and
// is safe for concurrent use.
type Coordinator struct {
	deps Deps
	log  logrus.FieldLogger
	now  func() time.Time
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(deps Deps) *Coordinator {
	return &Coordinator{
		deps: deps,
		log:  deps.Log.WithField("component", "EVENT_INGEST"),
		now:  time.Now,
	}
}

// Process handles one event. The raw event is always logged first; a
// failure to log it, or any later persistence failure, is returned.
func (c *Coordinator) Process(ctx context.Context, ev *Event) (*Response, error) {
	start := c.now()
	receivedAt := start.UTC()
	eventTime := receivedAt
	// A resubmitted event without a timestamp must fingerprint the same,
	// so the arrival time stays out of its identity.
	var fingerprintTime time.Time
	if ev.Timestamp.Set {
		eventTime = ev.Timestamp.Time.UTC()
		fingerprintTime = eventTime
	}

	raw := []byte(ev.Detection.Raw)
	fingerprint := citation.Fingerprint(ev.Source, fingerprintTime, raw)
	entry := &models.ViolationLog{
		ID:          uuid.New().String(),
		Source:      ev.Source,
		Timestamp:   eventTime,
		ReceivedAt:  receivedAt,
		VehicleNo:   ev.VehicleNo,
		ImagePath:   ev.ImagePath,
		Detection:   models.RawJSONB(raw),
		Fingerprint: fingerprint,
	}

	logger := c.log.WithFields(logrus.Fields{
		"event_id":    entry.ID,
		"source":      ev.Source,
		"fingerprint": fingerprint[:12],
	})

	if err := c.deps.Logs.InsertViolationLog(ctx, entry); err != nil {
		logger.WithError(err).Error("Failed to log raw event")
		c.deps.Metrics.ObserveEvent(string(models.OutcomeFailed), c.now().Sub(start))
		return nil, fmt.Errorf("log raw event: %w", err)
	}

	// Once logged, the event runs to a terminal outcome even if the
	// caller goes away.
	ctx = context.WithoutCancel(ctx)

	resp, err := c.run(ctx, logger, ev, entry, eventTime)
	outcome := models.OutcomeFailed
	var challanNo, errMsg *string
	if err != nil {
		msg := err.Error()
		errMsg = &msg
		logger.WithError(err).Error("Event processing failed")
	} else {
		outcome = resp.Outcome
		if resp.ChallanNo != "" {
			no := resp.ChallanNo
			challanNo = &no
		}
		resp.EventID = entry.ID
	}

	if markErr := c.deps.Logs.MarkViolationLogProcessed(ctx, entry.ID, outcome, challanNo, errMsg); markErr != nil {
		logger.WithError(markErr).Warn("Failed to mark raw event processed")
	}
	c.deps.Metrics.ObserveEvent(string(outcome), c.now().Sub(start))

	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Coordinator) run(ctx context.Context, logger logrus.FieldLogger, ev *Event, entry *models.ViolationLog, eventTime time.Time) (*Response, error) {
	dets := ev.Detection.Detections()
	matches, err := c.deps.Matcher.Match(ctx, dets)
	if err != nil {
		return nil, err
	}
	billable := rules.Billable(matches)
	if len(billable) == 0 {
		logger.WithFields(logrus.Fields{
			"detections": len(dets),
			"matches":    len(matches),
		}).Info("No rule triggered")
		return &Response{Status: StatusOK, Message: "no rule triggered", Outcome: models.OutcomeNoRuleTriggered}, nil
	}

	vehicleNo := ev.vehicleNo()
	if vehicleNo == "" {
		vehicleNo = ev.Detection.FirstPlate()
	}
	res, err := c.deps.Resolver.Resolve(ctx, vehicleNo)
	if err != nil {
		return nil, err
	}

	if !res.Resolved() {
		rec, created, err := c.deps.Reviews.Enqueue(ctx, review.Item{
			Fingerprint: entry.Fingerprint,
			Source:      ev.Source,
			VehicleNo:   res.VehicleNo,
			Detection:   []byte(ev.Detection.Raw),
			Reason:      res.Reason,
		})
		if err != nil {
			return nil, err
		}
		if created {
			c.deps.Metrics.ReviewQueued()
		}
		logger.WithFields(logrus.Fields{
			"vehicle_no": res.VehicleNo,
			"reason":     res.Reason,
			"review_id":  rec.ID,
		}).Info("Owner not found, queued for manual review")
		return &Response{
			Status:  StatusManualReview,
			Message: "owner not found; logged for review",
			Outcome: models.OutcomeManualReview,
		}, nil
	}

	issued, err := c.deps.Issuer.Issue(ctx, citation.Request{
		Fingerprint: entry.Fingerprint,
		EventTime:   eventTime,
		VehicleNo:   res.VehicleNo,
		OwnerID:     res.Owner.OwnerID,
		Matches:     billable,
	})
	if err != nil {
		return nil, err
	}
	ch := issued.Citation
	logger = logger.WithFields(logrus.Fields{"challan_no": ch.ChallanNo, "vehicle_no": ch.VehicleNo})

	if issued.Duplicate {
		c.deps.Metrics.DuplicateEvent()
		logger.Info("Duplicate event, returning existing challan")
	} else {
		c.deps.Metrics.CitationIssued(ch.TotalPenalty)
		logger.WithField("total_penalty", ch.TotalPenalty.String()).Info("Challan issued")

		result := c.deps.Notifier.Notify(ctx, ch, res.Owner)
		ch.Notified = result.Delivered
		ch.NotificationLog = append(ch.NotificationLog, result.Entries...)
		for _, p := range c.deps.Publishers {
			p.PublishIssued(ch)
		}
	}

	return &Response{
		Status:    StatusChallanCreated,
		ChallanNo: ch.ChallanNo,
		Duplicate: issued.Duplicate,
		Outcome:   models.OutcomeChallanCreated,
	}, nil
}
