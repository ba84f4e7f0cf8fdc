package sender

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// snsPublisher is the slice of the SNS client the sender needs.
type snsPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSender delivers SMS messages through AWS SNS.
type SNSSender struct {
	client snsPublisher
}

// SNSConfig holds AWS connection settings for the SMS sender.
type SNSConfig struct {
	Region    string `env:"AWS_REGION" envDefault:"us-east-1"`
	AccessKey string `env:"AWS_ACCESS_KEY_ID"`
	SecretKey string `env:"AWS_SECRET_ACCESS_KEY"`
}

// NewSNSSender creates an SMS sender from AWS configuration. Static
// credentials are optional; when absent the default AWS credential chain
// applies.
func NewSNSSender(ctx context.Context, cfg SNSConfig) (*SNSSender, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("%w: AWS region is required", ErrInvalidConfig)
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return &SNSSender{client: sns.NewFromConfig(awsCfg)}, nil
}

// NewSNSSenderFromClient wraps an existing SNS client. Used by tests.
func NewSNSSenderFromClient(client snsPublisher) *SNSSender {
	return &SNSSender{client: client}
}

// Send publishes the message directly to the phone number.
func (s *SNSSender) Send(ctx context.Context, phoneNumber, message string) error {
	if phoneNumber == "" {
		return ErrEmptyPhoneNumber
	}

	_, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(phoneNumber),
		Message:     aws.String(message),
	})
	if err != nil {
		return errors.Join(ErrDeliveryFailed, err)
	}
	return nil
}
