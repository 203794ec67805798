package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/rs/zerolog/log"

	"github.com/codr1/Kickabout/internal/config"
)

type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, opts ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SES rejects messages with more destinations than this.
const maxRecipients = 50

// SESClient wraps AWS SESv2 sending.
type SESClient struct {
	client sesAPI
	sender string
}

// NewSESClient initializes an SES client using static credentials and region.
func NewSESClient(ctx context.Context, cfg config.EmailConfig) (*SESClient, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("ses credentials, region and sender are required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &SESClient{
		client: sesv2.NewFromConfig(awsCfg),
		sender: cfg.Sender,
	}, nil
}

// Send delivers a plain-text email to every address in the comma-separated
// recipient list.
func (c *SESClient) Send(ctx context.Context, recipient, subject, body string) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("ses client is not initialized")
	}
	to := splitRecipients(recipient)
	switch {
	case len(to) == 0:
		return fmt.Errorf("recipient is required")
	case len(to) > maxRecipients:
		return fmt.Errorf("too many recipients: %d (max %d)", len(to), maxRecipients)
	}

	input := &sesv2.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: to,
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body)},
				},
			},
		},
		FromEmailAddress: aws.String(c.sender),
	}

	if _, err := c.client.SendEmail(ctx, input); err != nil {
		log.Ctx(ctx).Error().
			Err(err).
			Int("recipients", len(to)).
			Str("subject", subject).
			Msg("Failed to send ledger email")
		return fmt.Errorf("send ses email: %w", err)
	}

	return nil
}

func splitRecipients(raw string) []string {
	var out []string
	for _, addr := range strings.Split(raw, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
