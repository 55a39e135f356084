package notify

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/irisdrone/echallan/internal/metrics"
	"github.com/irisdrone/echallan/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const method = "sms"

// A recipient limiter is dropped once it has been idle long enough to
// refill completely, so eviction never resets a live budget.
const limiterSweepEvery = time.Minute

// LogStore records delivery attempts on a challan.
type LogStore interface {
	AppendNotification(ctx context.Context, challanNo string, entry models.NotificationEntry, delivered bool) error
}

// Options tune the dispatcher.
type Options struct {
	SendTimeout     time.Duration
	MaxAttempts     int
	RetryDelay      time.Duration
	DefaultRegion   string
	RateLimitPerMin int // per recipient; 0 disables
}

// Result summarises one Notify call. Entries are the log entries written
// by the call, in order.
type Result struct {
	Delivered bool
	Attempts  int
	Status    string
	Entries   []models.NotificationEntry
}

type recipientLimiter struct {
	lim *rate.Limiter
	// until is when the last reservation on lim falls due
	until time.Time
}

type deferredSend struct {
	timer *time.Timer
	run   func()
}

// Dispatcher sends owner notices with bounded retries and logs every attempt.
// Notices over a recipient's rate limit are deferred, not dropped; Close
// flushes whatever is still waiting.
type Dispatcher struct {
	ch      Channel
	store   LogStore
	opts    Options
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	now     func() time.Time

	mu        sync.Mutex
	limiters  map[string]*recipientLimiter
	lastSweep time.Time
	pending   map[uint64]deferredSend
	seq       uint64
	closed    bool
	wg        sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. m may be nil.
func NewDispatcher(ch Channel, s LogStore, opts Options, log logrus.FieldLogger, m *metrics.Metrics) *Dispatcher {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	if opts.DefaultRegion == "" {
		opts.DefaultRegion = "IN"
	}
	return &Dispatcher{
		ch:       ch,
		store:    s,
		opts:     opts,
		log:      log.WithField("component", "NOTIFY"),
		metrics:  m,
		now:      time.Now,
		limiters: make(map[string]*recipientLimiter),
		pending:  make(map[uint64]deferredSend),
	}
}

// ChannelName reports which transport was selected at startup.
func (d *Dispatcher) ChannelName() string {
	return d.ch.Name()
}

// Notify sends the challan notice to owner. Failures are recorded on the
// notification log and never affect the challan itself.
func (d *Dispatcher) Notify(ctx context.Context, c *models.Citation, owner *models.Owner) Result {
	logger := d.log.WithFields(logrus.Fields{
		"challan_no": c.ChallanNo,
		"owner_id":   owner.OwnerID,
		"channel":    d.ch.Name(),
	})
	body := Message(c)

	// The mock transport reaches nobody, so it needs neither a dialable
	// number nor a rate budget.
	if isMock(d.ch) {
		to, err := NormalizePhone(owner.Phone, d.opts.DefaultRegion)
		if err != nil {
			to = owner.Phone
		}
		return d.send(ctx, logger, c.ChallanNo, to, body)
	}

	to, err := NormalizePhone(owner.Phone, d.opts.DefaultRegion)
	if err != nil {
		entry := d.record(ctx, logger, c.ChallanNo, owner.Phone, 1, Delivery{}, err)
		return Result{Attempts: 1, Status: models.DeliveryError, Entries: []models.NotificationEntry{entry}}
	}

	if delay := d.reserve(to); delay > 0 {
		if res, ok := d.deferSend(ctx, logger, c.ChallanNo, to, body, delay); ok {
			return res
		}
	}
	return d.send(ctx, logger, c.ChallanNo, to, body)
}

// Close sends every deferred notice immediately and waits for them. Notices
// deferred after Close are sent without waiting.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	var flush []func()
	for id, p := range d.pending {
		if p.timer.Stop() {
			flush = append(flush, p.run)
		}
		delete(d.pending, id)
	}
	d.mu.Unlock()

	for _, run := range flush {
		run()
	}
	d.wg.Wait()
}

func isMock(ch Channel) bool {
	switch ch.(type) {
	case MockChannel, *MockChannel:
		return true
	}
	return false
}

func (d *Dispatcher) send(ctx context.Context, logger logrus.FieldLogger, challanNo, to, body string) Result {
	res := Result{Status: models.DeliveryError}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.opts.RetryDelay
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = time.Millisecond
	}
	policy.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(d.opts.MaxAttempts-1)), ctx)

	_ = backoff.Retry(func() error {
		res.Attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, d.opts.SendTimeout)
		delivery, sendErr := d.ch.Send(attemptCtx, to, body)
		cancel()

		res.Entries = append(res.Entries, d.record(ctx, logger, challanNo, to, res.Attempts, delivery, sendErr))
		if sendErr != nil {
			return sendErr
		}
		res.Delivered = true
		res.Status = delivery.Status
		return nil
	}, b)

	if !res.Delivered {
		logger.WithField("attempts", res.Attempts).Warn("Notification not delivered, challan stays issued")
	}
	return res
}

// deferSend logs a deferred entry and schedules the send after delay. It
// reports false once the dispatcher is closed.
func (d *Dispatcher) deferSend(ctx context.Context, logger logrus.FieldLogger, challanNo, to, body string, delay time.Duration) (Result, bool) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return Result{}, false
	}

	logger.WithField("delay", delay.String()).Info("Notification deferred by recipient rate limit")
	entry := d.record(ctx, logger, challanNo, to, 0, Delivery{Status: models.DeliveryDeferred}, nil)
	res := Result{Status: models.DeliveryDeferred, Entries: []models.NotificationEntry{entry}}

	sendCtx := context.WithoutCancel(ctx)
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.send(sendCtx, logger, challanNo, to, body)
		return res, true
	}
	d.seq++
	id := d.seq
	run := func() {
		defer d.wg.Done()
		d.mu.Lock()
		delete(d.pending, id)
		d.mu.Unlock()
		d.send(sendCtx, logger, challanNo, to, body)
	}
	d.wg.Add(1)
	d.pending[id] = deferredSend{timer: time.AfterFunc(delay, run), run: run}
	d.mu.Unlock()
	return res, true
}

func (d *Dispatcher) record(ctx context.Context, logger logrus.FieldLogger, challanNo, to string, attempt int, delivery Delivery, sendErr error) models.NotificationEntry {
	entry := models.NotificationEntry{
		Method:  method,
		To:      to,
		Ts:      d.now().UTC(),
		Status:  delivery.Status,
		SID:     delivery.SID,
		Attempt: attempt,
	}
	if sendErr != nil {
		entry.Status = models.DeliveryError
		entry.Error = sendErr.Error()
		logger.WithError(sendErr).WithField("attempt", attempt).Warn("Notification attempt failed")
	} else if entry.Status != models.DeliveryDeferred {
		logger.WithFields(logrus.Fields{"attempt": attempt, "status": entry.Status, "sid": entry.SID}).Info("Notification sent")
	}
	d.metrics.NotificationAttempt(d.ch.Name(), entry.Status)

	delivered := sendErr == nil && entry.Status != models.DeliveryDeferred
	// The log write must land even if the caller's context is already done
	writeCtx := context.WithoutCancel(ctx)
	if err := d.store.AppendNotification(writeCtx, challanNo, entry, delivered); err != nil {
		logger.WithError(err).Error("Failed to append notification log")
	}
	return entry
}

// reserve takes one token from the recipient's budget and returns how long
// the send has to wait for it.
func (d *Dispatcher) reserve(recipient string) time.Duration {
	if d.opts.RateLimitPerMin <= 0 {
		return 0
	}
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if now.Sub(d.lastSweep) >= limiterSweepEvery {
		for k, l := range d.limiters {
			if now.Sub(l.until) > limiterSweepEvery {
				delete(d.limiters, k)
			}
		}
		d.lastSweep = now
	}

	l, ok := d.limiters[recipient]
	if !ok {
		l = &recipientLimiter{lim: rate.NewLimiter(rate.Limit(d.opts.RateLimitPerMin)/60, d.opts.RateLimitPerMin)}
		d.limiters[recipient] = l
	}
	delay := l.lim.ReserveN(now, 1).DelayFrom(now)
	if until := now.Add(delay); until.After(l.until) {
		l.until = until
	}
	return delay
}
