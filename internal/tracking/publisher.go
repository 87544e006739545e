package tracking

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/engagement-tracker/internal/domain"
)

// SQSAPI is the subset of *sqs.Client used by the publisher and consumer.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Publisher is a Dispatcher that forwards hits to an SQS queue; a Consumer
// on the other side classifies and records them.
type Publisher struct {
	client   SQSAPI
	queueURL string
	timeout  time.Duration

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

func NewPublisher(client SQSAPI, queueURL string) *Publisher {
	return &Publisher{client: client, queueURL: queueURL, timeout: 5 * time.Second}
}

// Dispatch publishes asynchronously; the request context is not used so a
// client disconnect cannot cancel the send.
func (p *Publisher) Dispatch(_ context.Context, evt domain.TrackingEvent) {
	body, err := json.Marshal(evt)
	if err != nil {
		log.Printf("ERROR marshal tracking event: %v", err)
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		log.Printf("ERROR publisher closed, dropping %s event (campaign=%s)", evt.Type, evt.CampaignID)
		return
	}
	p.inflight.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		if err := p.send(ctx, body); err != nil {
			log.Printf("ERROR publishing to SQS (campaign=%s type=%s): %v", evt.CampaignID, evt.Type, err)
		}
	}()
}

// Close stops accepting events and waits for in-flight sends, each of which
// is bounded by the publish timeout.
func (p *Publisher) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.inflight.Wait()
}

func (p *Publisher) send(ctx context.Context, body []byte) error {
	_, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	return err
}
