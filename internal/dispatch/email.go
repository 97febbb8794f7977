package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// sesAPI is the slice of the SES client the channel uses.
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// EmailChannel delivers reminders over SES. The channel is only registered
// when SES_EMAIL is configured.
type EmailChannel struct {
	client sesAPI
	sender string
}

func NewEmailChannel(ctx context.Context, region, sender string) (*EmailChannel, error) {
	if sender == "" {
		return nil, errors.New("sender address is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("aws config load failed: %w", err)
	}
	return &EmailChannel{client: ses.NewFromConfig(cfg), sender: sender}, nil
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(ctx context.Context, target Target, payload Payload) error {
	if target.User.Email == "" {
		return nil
	}

	input := &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{target.User.Email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(payload.Title),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(payload.Body),
				},
			},
		},
		Source: aws.String(c.sender),
	}

	if _, err := c.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("email send failed: %w", err)
	}
	return nil
}
