package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSPublisher is the subset of the SNS client used by SNSSink.
type SNSPublisher interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSink publishes alerts to an SNS topic as JSON messages.
type SNSSink struct {
	client   SNSPublisher
	topicARN string
}

// NewSNSSink builds an SNS client from the default AWS credential chain.
func NewSNSSink(ctx context.Context, region, topicARN string) (*SNSSink, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("alerts: load aws config: %w", err)
	}
	return NewSNSSinkWithClient(sns.NewFromConfig(cfg), topicARN), nil
}

// NewSNSSinkWithClient wraps an existing client.
func NewSNSSinkWithClient(client SNSPublisher, topicARN string) *SNSSink {
	return &SNSSink{client: client, topicARN: topicARN}
}

// Send publishes a. The severity is also set as a message attribute so
// subscriptions can filter on it.
func (s *SNSSink) Send(ctx context.Context, a Alert) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("alerts: encode: %w", err)
	}
	_, err = s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Subject:  aws.String(subject(a)),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"severity": {DataType: aws.String("String"), StringValue: aws.String(string(a.Severity))},
		},
	})
	if err != nil {
		return fmt.Errorf("alerts: sns publish: %w", err)
	}
	return nil
}

// subject is limited to 100 characters by SNS.
func subject(a Alert) string {
	s := fmt.Sprintf("[stencil][%s] %s", a.Severity, a.Message)
	if r := []rune(s); len(r) > 100 {
		return string(r[:97]) + "..."
	}
	return s
}
