package notify

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SNS rejects subjects over 100 characters or containing line breaks.
const maxSubjectLen = 100

// Message is one plaintext notification.
type Message struct {
	Subject string
	Body    string
}

type api interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Publisher sends notifications to a single SNS topic.
type Publisher struct {
	api      api
	topicARN string
}

// New builds a Publisher from the default AWS credential chain.
func New(ctx context.Context, region, topicARN string) (*Publisher, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Publisher{api: sns.NewFromConfig(cfg), topicARN: topicARN}, nil
}

// Notify publishes msg to the topic.
func (p *Publisher) Notify(ctx context.Context, msg Message) error {
	_, err := p.api.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Subject:  aws.String(Subject(msg.Subject)),
		Message:  aws.String(msg.Body),
	})
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Subject sanitizes s into a valid SNS subject: printable ASCII on a single
// line, truncated to the service limit.
func Subject(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			return ' '
		case r > unicode.MaxASCII || !unicode.IsPrint(r):
			return -1
		default:
			return r
		}
	}, s)
	s = strings.TrimSpace(s)
	if len(s) > maxSubjectLen {
		s = s[:maxSubjectLen-3] + "..."
	}
	if s == "" {
		s = "Video compression notification"
	}
	return s
}
