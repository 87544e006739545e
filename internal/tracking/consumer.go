package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/engagement-tracker/internal/domain"
)

// Consumer long-polls the tracking queue and records every hit.
type Consumer struct {
	sqsClient SQSAPI
	queueURL  string
	rec       *Recorder
	done      chan struct{}
	stopped   chan struct{}
	backoff   time.Duration
}

func NewConsumer(sqsClient SQSAPI, queueURL string, rec *Recorder) *Consumer {
	return &Consumer{
		sqsClient: sqsClient,
		queueURL:  queueURL,
		rec:       rec,
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
		backoff:   5 * time.Second,
	}
}

func (c *Consumer) Start(ctx context.Context) {
	log.Printf("SQS tracking consumer started (queue=%s)", c.queueURL)
	go c.poll(ctx)
}

// Stop signals the poll loop and waits for the in-flight batch to finish.
func (c *Consumer) Stop() {
	close(c.done)
	<-c.stopped
}

func (c *Consumer) poll(ctx context.Context) {
	defer close(c.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		out, err := c.sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("SQS receive error: %v", err)
			select {
			case <-time.After(c.backoff):
			case <-ctx.Done():
				return
			case <-c.done:
				return
			}
			continue
		}

		for _, msg := range out.Messages {
			if c.handleMessage(ctx, aws.ToString(msg.Body)) {
				c.deleteMessage(ctx, msg.ReceiptHandle)
			}
		}
	}
}

// handleMessage records one message body and reports whether the message
// should be deleted. Transient store failures leave it on the queue for
// redelivery. The event id makes the redelivered insert a no-op while
// the recipient update is retried.
func (c *Consumer) handleMessage(ctx context.Context, body string) bool {
	var evt domain.TrackingEvent
	if err := json.Unmarshal([]byte(body), &evt); err != nil {
		log.Printf("SQS bad message: %v", err)
		return true
	}

	if _, err := c.rec.Record(ctx, &evt); err != nil {
		logRecordError(evt, err)
		if errors.Is(err, ErrRecipientNotFound) || errors.Is(err, domain.ErrInvalidEvent) {
			return true
		}
		return false
	}
	return true
}

func (c *Consumer) deleteMessage(ctx context.Context, handle *string) {
	if _, err := c.sqsClient.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: handle,
	}); err != nil {
		log.Printf("SQS delete error: %v", err)
	}
}
