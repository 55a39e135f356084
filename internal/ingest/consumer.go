package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/irisdrone/echallan/internal/metrics"
	"github.com/irisdrone/echallan/internal/models"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// ConsumerOptions configure the NATS detection consumer.
type ConsumerOptions struct {
	Subject        string
	QueueGroup     string
	Workers        int
	QueueSize      int
	RequestTimeout time.Duration
}

// Consumer pulls detection events off NATS and runs them through the
// coordinator on a fixed pool of workers. Several service instances in the
// same queue group share the stream.
type Consumer struct {
	conn    *nats.Conn
	coord   *Coordinator
	opts    ConsumerOptions
	log     logrus.FieldLogger
	metrics *metrics.Metrics

	msgs chan *nats.Msg
	done chan struct{}
	sub  *nats.Subscription
	wg   sync.WaitGroup
	once sync.Once
}

// NewConsumer creates a Consumer. Call Start to begin receiving.
func NewConsumer(conn *nats.Conn, coord *Coordinator, opts ConsumerOptions, log logrus.FieldLogger, m *metrics.Metrics) *Consumer {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 64
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	return &Consumer{
		conn:    conn,
		coord:   coord,
		opts:    opts,
		log:     log.WithField("component", "NATS_INGEST"),
		metrics: m,
		msgs:    make(chan *nats.Msg, opts.QueueSize),
		done:    make(chan struct{}),
	}
}

// Start subscribes and launches the workers.
func (c *Consumer) Start() error {
	sub, err := c.conn.ChanQueueSubscribe(c.opts.Subject, c.opts.QueueGroup, c.msgs)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.opts.Subject, err)
	}
	c.sub = sub

	for i := 0; i < c.opts.Workers; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}
	c.log.WithFields(logrus.Fields{
		"subject": c.opts.Subject,
		"queue":   c.opts.QueueGroup,
		"workers": c.opts.Workers,
	}).Info("Detection consumer started")
	return nil
}

// Stop unsubscribes, lets the workers finish every buffered event and waits
// for them.
func (c *Consumer) Stop() {
	c.once.Do(func() {
		if c.sub != nil {
			if err := c.sub.Unsubscribe(); err != nil {
				c.log.WithError(err).Warn("Unsubscribe failed")
			}
		}
		close(c.done)
		c.wg.Wait()
		c.log.Info("Detection consumer stopped")
	})
}

func (c *Consumer) worker(id int) {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			c.drain(id)
			return
		case msg := <-c.msgs:
			c.metrics.SetIngestQueueDepth(len(c.msgs))
			c.handle(id, msg)
		}
	}
}

// drain handles what was delivered before the unsubscribe took effect.
func (c *Consumer) drain(id int) {
	for {
		select {
		case msg := <-c.msgs:
			c.handle(id, msg)
		default:
			return
		}
	}
}

func (c *Consumer) handle(worker int, msg *nats.Msg) {
	logger := c.log.WithField("worker", worker)

	ev, err := DecodeEvent(msg.Data)
	if err != nil {
		logger.WithError(err).Warn("Dropping malformed detection message")
		c.reply(msg, map[string]string{"status": "error", "error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.RequestTimeout)
	defer cancel()

	resp, err := c.coord.Process(ctx, ev)
	if err != nil {
		c.reply(msg, map[string]string{"status": "error", "error": err.Error()})
		return
	}
	c.reply(msg, resp)
}

func (c *Consumer) reply(msg *nats.Msg, body interface{}) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(body)
	if err != nil {
		c.log.WithError(err).Error("Failed to encode reply")
		return
	}
	if err := msg.Respond(data); err != nil {
		c.log.WithError(err).Warn("Failed to send reply")
	}
}

// IssuedPublisher announces new challans on a NATS subject.
type IssuedPublisher struct {
	conn    *nats.Conn
	subject string
	log     logrus.FieldLogger
}

// NewIssuedPublisher creates an IssuedPublisher.
func NewIssuedPublisher(conn *nats.Conn, subject string, log logrus.FieldLogger) *IssuedPublisher {
	return &IssuedPublisher{conn: conn, subject: subject, log: log.WithField("component", "NATS_INGEST")}
}

// PublishIssued implements Publisher.
func (p *IssuedPublisher) PublishIssued(c *models.Citation) {
	data, err := json.Marshal(c)
	if err != nil {
		p.log.WithError(err).Error("Failed to encode challan")
		return
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		p.log.WithError(err).WithField("challan_no", c.ChallanNo).Warn("Failed to publish issued challan")
	}
}
