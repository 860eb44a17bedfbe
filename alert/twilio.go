package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fall-detection/utils"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// ErrMissingCredentials is returned when the Twilio settings are incomplete.
var ErrMissingCredentials = errors.New("twilio credentials not configured")

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioNotifier sends alerts as SMS.
type TwilioNotifier struct {
	api  messageCreator
	from string
	to   string
}

// NewTwilioNotifier requires all four settings.
func NewTwilioNotifier(accountSID, authToken, from, to string) (*TwilioNotifier, error) {
	if accountSID == "" || authToken == "" || from == "" || to == "" {
		return nil, ErrMissingCredentials
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioNotifier{api: client.Api, from: from, to: to}, nil
}

func (n *TwilioNotifier) Name() string { return "twilio" }

func (n *TwilioNotifier) Send(ctx context.Context, msg Message) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(n.to)
	params.SetFrom(n.from)
	params.SetBody(msg.Body)

	resp, err := n.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("error sending SMS: %w", err)
	}

	sid := ""
	if resp != nil && resp.Sid != nil {
		sid = *resp.Sid
	}
	utils.GetLogger().InfoContext(ctx, "SMS alert sent", slog.String("sid", sid))
	return nil
}
