package sms

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

var phoneRegex = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// SNSClient defines the SNS operations used by Sender.
type SNSClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Sender publishes SMS messages. It is safe for concurrent use.
type Sender struct {
	client SNSClient
	config Config
}

// Option configures NewSender.
type Option func(*options)

type options struct {
	httpClient    *http.Client
	snsClient     SNSClient
	configOptions []func(*config.LoadOptions) error
}

// WithSNSClient sets a pre-configured SNS client.
// Useful for testing with mocks.
func WithSNSClient(client SNSClient) Option {
	return func(o *options) {
		o.snsClient = client
	}
}

// WithHTTPClient sets a custom HTTP client for SNS requests.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithConfigOption adds a custom AWS config option.
func WithConfigOption(option func(*config.LoadOptions) error) Option {
	return func(o *options) {
		o.configOptions = append(o.configOptions, option)
	}
}

// NewSender creates an SNS backed sender.
func NewSender(ctx context.Context, cfg Config, opts ...Option) (*Sender, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("%w: region is required", ErrInvalidConfig)
	}
	switch cfg.Type {
	case "":
		cfg.Type = TypeTransactional
	case TypeTransactional, TypePromotional:
	default:
		return nil, fmt.Errorf("%w: unknown message type %q", ErrInvalidConfig, cfg.Type)
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if o.snsClient != nil {
		return &Sender{client: o.snsClient, config: cfg}, nil
	}

	awsOptions := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
		awsOptions = append(awsOptions,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretKey,
				"",
			)),
		)
	}
	if o.httpClient != nil {
		awsOptions = append(awsOptions, config.WithHTTPClient(o.httpClient))
	}
	awsOptions = append(awsOptions, o.configOptions...)

	awsConfig, err := config.LoadDefaultConfig(ctx, awsOptions...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToLoadConfig, err)
	}

	client := sns.NewFromConfig(awsConfig, func(o *sns.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Sender{client: client, config: cfg}, nil
}

// Send publishes text to phone and returns the SNS message ID. Text longer
// than MaxLength runes is truncated.
func (s *Sender) Send(ctx context.Context, phone, text string) (string, error) {
	if !ValidPhone(phone) {
		return "", ErrInvalidPhone
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	text = truncate(text, s.config.MaxLength)

	attrs := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {
			DataType:    aws.String("String"),
			StringValue: aws.String(s.config.Type),
		},
	}
	if s.config.SenderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(s.config.SenderID),
		}
	}

	out, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(phone),
		Message:           aws.String(text),
		MessageAttributes: attrs,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFailedToSend, err)
	}
	return aws.ToString(out.MessageId), nil
}

// ValidPhone reports whether phone is an E.164 number.
func ValidPhone(phone string) bool {
	return phoneRegex.MatchString(phone)
}

func truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	if limit <= 3 {
		return string(r[:limit])
	}
	return string(r[:limit-3]) + "..."
}
