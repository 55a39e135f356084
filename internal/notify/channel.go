// Package notify delivers challan notices to vehicle owners and records
// every attempt on the challan's notification log.
package notify

import (
	"context"

	"github.com/irisdrone/echallan/internal/models"
)

// Delivery is what a channel reports for a successful send.
type Delivery struct {
	Status string // models.DeliverySent or models.DeliveryMocked
	SID    string
}

// Channel sends one message. Implementations must honour ctx cancellation.
type Channel interface {
	Name() string
	Send(ctx context.Context, to, body string) (Delivery, error)
}

// MockChannel accepts every message without contacting any transport.
type MockChannel struct{}

func (MockChannel) Name() string { return "mock" }

func (MockChannel) Send(ctx context.Context, _, _ string) (Delivery, error) {
	if err := ctx.Err(); err != nil {
		return Delivery{}, err
	}
	return Delivery{Status: models.DeliveryMocked}, nil
}
