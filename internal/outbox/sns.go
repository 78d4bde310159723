package outbox

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/josh-kwaku/settlement/internal/domain"
)

type snsAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSPublisher publishes the raw event JSON to a topic. Subscribers filter on
// the event_type message attribute.
type SNSPublisher struct {
	client   snsAPI
	topicARN string
}

// NewSNSPublisher loads credentials and region from the default AWS chain.
func NewSNSPublisher(ctx context.Context, topicARN string) (*SNSPublisher, error) {
	if topicARN == "" {
		return nil, fmt.Errorf("NewSNSPublisher: empty topic ARN")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewSNSPublisher: load aws config: %w", err)
	}
	return &SNSPublisher{client: sns.NewFromConfig(cfg), topicARN: topicARN}, nil
}

func (p *SNSPublisher) Name() string { return "sns" }

func (p *SNSPublisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	_, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(msg.Payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(msg.EventType)),
			},
			"message_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.ID.String()),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("SNSPublisher: topic %s: %w", p.topicARN, err)
	}
	return nil
}
