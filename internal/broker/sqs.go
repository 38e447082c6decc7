package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	log "github.com/sirupsen/logrus"

	"docq/internal/config"
	"docq/internal/models"
)

// SQSBroker implements Broker on Amazon SQS. Each queue type maps to one SQS
// queue plus its dead-letter queue; the DLQ redrive policy is what enforces
// the max-receive-count demotion.
type SQSBroker struct {
	client *sqs.Client
	queues map[models.QueueType]config.QueueConfig

	mu   sync.Mutex
	urls map[string]string // queue name -> URL, resolved lazily
}

// NewSQSBroker builds the SQS client and validates that every queue type has
// a configuration. Queue URLs are resolved (and queues created) on first use.
func NewSQSBroker(ctx context.Context, cfg *config.Config) (*SQSBroker, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Broker.Region),
	}
	if cfg.Broker.AccessKey != "" && cfg.Broker.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.Broker.AccessKey, cfg.Broker.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var clientOpts []func(*sqs.Options)
	if cfg.Broker.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(cfg.Broker.Endpoint)
		})
	}

	queues := make(map[models.QueueType]config.QueueConfig, len(models.AllQueueTypes))
	for _, qt := range models.AllQueueTypes {
		qc, err := cfg.QueueFor(qt)
		if err != nil {
			return nil, err
		}
		queues[qt] = qc
	}

	return &SQSBroker{
		client: sqs.NewFromConfig(awsCfg, clientOpts...),
		queues: queues,
		urls:   make(map[string]string),
	}, nil
}

var _ Broker = (*SQSBroker)(nil)

func (b *SQSBroker) Publish(ctx context.Context, queue models.QueueType, body []byte, delay time.Duration, attrs map[string]string) (string, error) {
	qc, ok := b.queues[queue]
	if !ok {
		return "", fmt.Errorf("unknown queue type %q", queue)
	}
	url, err := b.queueURL(ctx, qc, qc.QueueName)
	if err != nil {
		return "", err
	}

	msgAttrs := make(map[string]types.MessageAttributeValue, len(attrs))
	for k, v := range attrs {
		dataType := "String"
		if k == AttrPriority {
			dataType = "Number"
		}
		msgAttrs[k] = types.MessageAttributeValue{
			DataType:    aws.String(dataType),
			StringValue: aws.String(v),
		}
	}

	out, err := b.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(url),
		MessageBody:       aws.String(string(body)),
		DelaySeconds:      int32(delay / time.Second),
		MessageAttributes: msgAttrs,
	})
	if err != nil {
		return "", fmt.Errorf("sqs send to %s: %w", qc.QueueName, err)
	}
	return aws.ToString(out.MessageId), nil
}

func (b *SQSBroker) Receive(ctx context.Context, queue models.QueueType, wait time.Duration) (*Message, error) {
	qc, ok := b.queues[queue]
	if !ok {
		return nil, fmt.Errorf("unknown queue type %q", queue)
	}
	url, err := b.queueURL(ctx, qc, qc.QueueName)
	if err != nil {
		return nil, err
	}

	out, err := b.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(url),
		MaxNumberOfMessages:   1,
		WaitTimeSeconds:       int32(wait / time.Second),
		VisibilityTimeout:     int32(qc.VisibilitySeconds),
		MessageAttributeNames: []string{"All"},
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqs receive from %s: %w", qc.QueueName, err)
	}
	if len(out.Messages) == 0 {
		return nil, nil // queue empty within the poll window
	}

	m := out.Messages[0]
	msg := &Message{
		MessageID:     aws.ToString(m.MessageId),
		ReceiptHandle: aws.ToString(m.ReceiptHandle),
		Body:          []byte(aws.ToString(m.Body)),
		Attributes:    make(map[string]string, len(m.MessageAttributes)),
		ReceiveCount:  1,
	}
	for k, v := range m.MessageAttributes {
		msg.Attributes[k] = aws.ToString(v.StringValue)
	}
	if rc, ok := m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
		if n, err := strconv.Atoi(rc); err == nil {
			msg.ReceiveCount = n
		}
	}
	return msg, nil
}

func (b *SQSBroker) Ack(ctx context.Context, queue models.QueueType, receiptHandle string) error {
	qc, ok := b.queues[queue]
	if !ok {
		return fmt.Errorf("unknown queue type %q", queue)
	}
	url, err := b.queueURL(ctx, qc, qc.QueueName)
	if err != nil {
		return err
	}
	_, err = b.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(url),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("sqs delete from %s: %w", qc.QueueName, err)
	}
	return nil
}

func (b *SQSBroker) Depth(ctx context.Context, queue models.QueueType) (Depth, error) {
	qc, ok := b.queues[queue]
	if !ok {
		return Depth{}, fmt.Errorf("unknown queue type %q", queue)
	}

	var d Depth
	attrs, err := b.queueAttributes(ctx, qc, qc.QueueName)
	if err != nil {
		return Depth{}, err
	}
	d.Visible = atoiAttr(attrs, types.QueueAttributeNameApproximateNumberOfMessages)
	d.InFlight = atoiAttr(attrs, types.QueueAttributeNameApproximateNumberOfMessagesNotVisible)
	d.Delayed = atoiAttr(attrs, types.QueueAttributeNameApproximateNumberOfMessagesDelayed)

	dlqAttrs, err := b.queueAttributes(ctx, qc, qc.DLQName)
	if err != nil {
		return Depth{}, err
	}
	d.DeadLetter = atoiAttr(dlqAttrs, types.QueueAttributeNameApproximateNumberOfMessages)
	return d, nil
}

func (b *SQSBroker) queueAttributes(ctx context.Context, qc config.QueueConfig, name string) (map[string]string, error) {
	url, err := b.queueURL(ctx, qc, name)
	if err != nil {
		return nil, err
	}
	out, err := b.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(url),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameAll},
	})
	if err != nil {
		return nil, fmt.Errorf("sqs attributes for %s: %w", name, err)
	}
	return out.Attributes, nil
}

// queueURL resolves (and caches) the URL for a queue name, creating the
// queue when it does not exist yet.
func (b *SQSBroker) queueURL(ctx context.Context, qc config.QueueConfig, name string) (string, error) {
	b.mu.Lock()
	if url, ok := b.urls[name]; ok {
		b.mu.Unlock()
		return url, nil
	}
	b.mu.Unlock()

	out, err := b.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(name)})
	if err != nil {
		var notExist *types.QueueDoesNotExist
		if !errors.As(err, &notExist) {
			return "", fmt.Errorf("sqs queue url for %s: %w", name, err)
		}
		url, cerr := b.createQueue(ctx, qc, name)
		if cerr != nil {
			return "", cerr
		}
		b.cacheURL(name, url)
		return url, nil
	}

	b.cacheURL(name, aws.ToString(out.QueueUrl))
	return aws.ToString(out.QueueUrl), nil
}

// createQueue provisions a missing queue. The main queue also gets its DLQ
// created and a redrive policy attached, so the receive-count cap dead-letters
// poison messages on auto-created queues the same way it does on
// pre-provisioned ones.
func (b *SQSBroker) createQueue(ctx context.Context, qc config.QueueConfig, name string) (string, error) {
	log.Warnf("SQS queue %s does not exist, creating it", name)

	attrs := make(map[string]string)
	if name == qc.QueueName {
		if qc.VisibilitySeconds > 0 {
			attrs[string(types.QueueAttributeNameVisibilityTimeout)] = strconv.Itoa(qc.VisibilitySeconds)
		}
		if qc.DLQName != "" {
			dlqURL, err := b.queueURL(ctx, qc, qc.DLQName)
			if err != nil {
				return "", err
			}
			arnOut, err := b.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
				QueueUrl:       aws.String(dlqURL),
				AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
			})
			if err != nil {
				return "", fmt.Errorf("sqs dlq arn for %s: %w", qc.DLQName, err)
			}
			arn := arnOut.Attributes[string(types.QueueAttributeNameQueueArn)]
			attrs[string(types.QueueAttributeNameRedrivePolicy)] = redrivePolicy(arn, qc.MaxReceiveCount)
		}
	}

	input := &sqs.CreateQueueInput{QueueName: aws.String(name)}
	if len(attrs) > 0 {
		input.Attributes = attrs
	}
	created, err := b.client.CreateQueue(ctx, input)
	if err != nil {
		return "", fmt.Errorf("sqs create queue %s: %w", name, err)
	}
	return aws.ToString(created.QueueUrl), nil
}

// redrivePolicy renders the SQS redrive policy document. A receive count of
// zero falls back to 3, matching the default queue configuration.
func redrivePolicy(dlqARN string, maxReceiveCount int) string {
	if maxReceiveCount <= 0 {
		maxReceiveCount = 3
	}
	policy, _ := json.Marshal(map[string]string{
		"deadLetterTargetArn": dlqARN,
		"maxReceiveCount":     strconv.Itoa(maxReceiveCount),
	})
	return string(policy)
}

func (b *SQSBroker) cacheURL(name, url string) {
	b.mu.Lock()
	b.urls[name] = url
	b.mu.Unlock()
}

func atoiAttr(attrs map[string]string, key types.QueueAttributeName) int {
	n, _ := strconv.Atoi(attrs[string(key)])
	return n
}
