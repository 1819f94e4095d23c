package mailer

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	appconfig "github.com/ignite/outreach-engine/internal/config"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// SESMailer sends email through AWS SES v2.
type SESMailer struct {
	client      *sesv2.Client
	senderEmail string
	senderName  string
}

// NewSESMailer creates an SES v2 mailer from config.
func NewSESMailer(ctx context.Context, cfg appconfig.SESConfig) (*SESMailer, error) {
	creds := credentials.NewStaticCredentialsProvider(
		cfg.AccessKey,
		cfg.SecretKey,
		"",
	)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &SESMailer{
		client:      sesv2.NewFromConfig(awsCfg),
		senderEmail: cfg.SenderEmail,
		senderName:  cfg.SenderName,
	}, nil
}

// Send delivers one message through SES. The provider message id doubles as
// the thread id for the first message in a thread.
func (s *SESMailer) Send(ctx context.Context, msg Message) (*Result, error) {
	from := s.senderEmail
	if s.senderName != "" {
		from = fmt.Sprintf("%s <%s>", s.senderName, s.senderEmail)
	}

	headers := make([]types.MessageHeader, 0, len(msg.Headers))
	for name, value := range msg.Headers {
		headers = append(headers, types.MessageHeader{
			Name:  aws.String(name),
			Value: aws.String(value),
		})
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.Body)},
				},
				Headers: headers,
			},
		},
	}

	output, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("sending email via SES: %w", err)
	}

	messageID := aws.ToString(output.MessageId)
	threadID := msg.ThreadID
	if threadID == "" {
		threadID = messageID
	}

	logger.Info("email sent", "message_id", messageID, "recipient", msg.To)
	return &Result{MessageID: messageID, ThreadID: threadID}, nil
}
