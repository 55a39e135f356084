package notify

import (
	"context"
	"fmt"

	"github.com/irisdrone/echallan/internal/models"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// messageCreator is the slice of the Twilio REST API we use.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioChannel sends SMS through Twilio's Messages API.
type TwilioChannel struct {
	api  messageCreator
	from string
}

// NewTwilioChannel creates a channel from account credentials.
func NewTwilioChannel(accountSID, authToken, from string) *TwilioChannel {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioChannel{api: client.Api, from: from}
}

func (t *TwilioChannel) Name() string { return "twilio" }

// Send posts the message. The Twilio client has no context support, so the
// call runs in its own goroutine and Send returns as soon as ctx is done.
func (t *TwilioChannel) Send(ctx context.Context, to, body string) (Delivery, error) {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(t.from)
	params.SetBody(body)

	type result struct {
		msg *twilioApi.ApiV2010Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := t.api.CreateMessage(params)
		done <- result{msg: msg, err: err}
	}()

	select {
	case <-ctx.Done():
		return Delivery{}, fmt.Errorf("twilio send: %w", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return Delivery{}, fmt.Errorf("failed to send SMS via Twilio: %w", r.err)
		}
		d := Delivery{Status: models.DeliverySent}
		if r.msg != nil && r.msg.Sid != nil {
			d.SID = *r.msg.Sid
		}
		return d, nil
	}
}
