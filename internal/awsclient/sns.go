package awsclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SNSAPI is the subset of the SNS client used here.
type SNSAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSTopic publishes messages to one topic.
type SNSTopic struct {
	api   SNSAPI
	topic string
}

// NewSNSTopic creates a topic publisher.
func NewSNSTopic(api SNSAPI, topicARN string) *SNSTopic {
	return &SNSTopic{api: api, topic: topicARN}
}

// Publish sends body with subject. SNS limits subjects to 100 characters.
func (s *SNSTopic) Publish(ctx context.Context, subject, body string) error {
	if len(subject) > 100 {
		subject = subject[:100]
	}
	_, err := s.api.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.topic),
		Subject:  aws.String(subject),
		Message:  aws.String(body),
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}
