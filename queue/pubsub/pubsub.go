// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package pubsub

import (
	"context"
	"log/slog"
	"sync"

	"github.com/z5labs/stitch/internal/try"
	"github.com/z5labs/stitch/pkg/noop"
	"github.com/z5labs/stitch/pkg/otelslog"
	"github.com/z5labs/stitch/pkg/slogfield"
	"github.com/z5labs/stitch/pkg/span"
	"github.com/z5labs/stitch/queue"

	pubsubpb "cloud.google.com/go/pubsub/apiv1/pubsubpb"
	"github.com/googleapis/gax-go/v2"
	"golang.org/x/sync/errgroup"
)

type pubsubPullClient interface {
	Pull(context.Context, *pubsubpb.PullRequest, ...gax.CallOption) (*pubsubpb.PullResponse, error)
}

type consumerOptions struct {
	subscriptionOptions

	maxNumOfMessages int32
}

// ConsumerOption configures a Consumer.
type ConsumerOption interface {
	applyConsumer(*consumerOptions)
}

type consumerOptionFunc func(*consumerOptions)

func (f consumerOptionFunc) applyConsumer(co *consumerOptions) {
	f(co)
}

// MaxNumOfMessages
func MaxNumOfMessages(n int32) ConsumerOption {
	return consumerOptionFunc(func(co *consumerOptions) {
		co.maxNumOfMessages = n
	})
}

// Consumer pulls batches of messages from a single subscription.
type Consumer struct {
	log    *slog.Logger
	pubsub pubsubPullClient

	subscription     string
	maxNumOfMessages int32
}

// NewConsumer
func NewConsumer(opts ...ConsumerOption) *Consumer {
	co := &consumerOptions{
		subscriptionOptions: subscriptionOptions{
			logHandler: noop.LogHandler{},
		},
	}
	for _, opt := range opts {
		opt.applyConsumer(co)
	}
	return &Consumer{
		log:              otelslog.New(co.logHandler),
		pubsub:           co.client,
		subscription:     co.subscription,
		maxNumOfMessages: co.maxNumOfMessages,
	}
}

// Consume implements the queue.Consumer interface. It returns queue.ErrNoItem
// when the pull returned no messages.
func (c *Consumer) Consume(ctx context.Context) ([]*pubsubpb.ReceivedMessage, error) {
	resp, err := c.pubsub.Pull(ctx, &pubsubpb.PullRequest{
		Subscription: c.subscription,
		MaxMessages:  c.maxNumOfMessages,
	})
	if err != nil {
		c.log.ErrorContext(ctx, "failed to pull pubsub for messages", slogfield.Error(err))
		return nil, err
	}
	c.log.DebugContext(ctx, "received messages", slogfield.Int("num_of_messages", len(resp.ReceivedMessages)))
	if len(resp.ReceivedMessages) == 0 {
		return nil, queue.ErrNoItem
	}
	return resp.ReceivedMessages, nil
}

type pubsubAckClient interface {
	Acknowledge(context.Context, *pubsubpb.AcknowledgeRequest, ...gax.CallOption) error
}

type batchAcknowledgeProcessorOptions struct {
	subscriptionOptions

	inner   queue.Processor[*pubsubpb.ReceivedMessage]
	factory *span.Factory
}

// BatchAcknowledgeProcessorOption configures a BatchAcknowledgeProcessor.
type BatchAcknowledgeProcessorOption interface {
	applyProcessor(*batchAcknowledgeProcessorOptions)
}

type batchAckProcessorOptionFunc func(*batchAcknowledgeProcessorOptions)

func (f batchAckProcessorOptionFunc) applyProcessor(bo *batchAcknowledgeProcessorOptions) {
	f(bo)
}

// Processor configures the processor every message is handed to.
func Processor(p queue.Processor[*pubsubpb.ReceivedMessage]) BatchAcknowledgeProcessorOption {
	return batchAckProcessorOptionFunc(func(bo *batchAcknowledgeProcessorOptions) {
		bo.inner = p
	})
}

// Tracing processes every message under a new root span created by f.
func Tracing(f *span.Factory) BatchAcknowledgeProcessorOption {
	return batchAckProcessorOptionFunc(func(bo *batchAcknowledgeProcessorOptions) {
		bo.factory = f
	})
}

// BatchAcknowledgeProcessor processes every message of a batch concurrently
// and then acknowledges the successfully processed ones with a single request.
type BatchAcknowledgeProcessor struct {
	log    *slog.Logger
	pubsub pubsubAckClient

	subscription string
	inner        queue.Processor[*pubsubpb.ReceivedMessage]
}

// NewBatchAcknowledgeProcessor
func NewBatchAcknowledgeProcessor(opts ...BatchAcknowledgeProcessorOption) *BatchAcknowledgeProcessor {
	bo := &batchAcknowledgeProcessorOptions{
		subscriptionOptions: subscriptionOptions{
			logHandler: noop.LogHandler{},
		},
	}
	for _, opt := range opts {
		opt.applyProcessor(bo)
	}

	log := otelslog.New(bo.logHandler)
	var inner queue.Processor[*pubsubpb.ReceivedMessage] = logFailures(log, bo.inner)
	if bo.factory != nil {
		inner = queue.Traced(bo.factory, inner)
	}
	return &BatchAcknowledgeProcessor{
		log:          log,
		pubsub:       bo.client,
		subscription: bo.subscription,
		inner:        inner,
	}
}

func logFailures(log *slog.Logger, p queue.Processor[*pubsubpb.ReceivedMessage]) queue.Processor[*pubsubpb.ReceivedMessage] {
	return queue.ProcessorFunc[*pubsubpb.ReceivedMessage](func(ctx context.Context, msg *pubsubpb.ReceivedMessage) (err error) {
		defer func() {
			if err == nil {
				return
			}
			log.ErrorContext(
				ctx,
				"failed to process message",
				slogfield.String("pubsub_message_id", msg.GetMessage().GetMessageId()),
				slogfield.Error(err),
			)
		}()
		defer try.Recover(&err)

		return p.Process(ctx, msg)
	})
}

// Process implements the queue.Processor interface.
func (p *BatchAcknowledgeProcessor) Process(ctx context.Context, msgs []*pubsubpb.ReceivedMessage) error {
	var mu sync.Mutex
	ackIds := make([]string, 0, len(msgs))

	var g errgroup.Group
	for _, msg := range msgs {
		msg := msg
		g.Go(func() error {
			err := p.inner.Process(ctx, msg)
			if err != nil {
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			ackIds = append(ackIds, msg.GetAckId())
			return nil
		})
	}

	// messages are acknowledged even if ctx was cancelled while processing
	_ = g.Wait()
	if len(ackIds) == 0 {
		return nil
	}

	err := p.pubsub.Acknowledge(ctx, &pubsubpb.AcknowledgeRequest{
		Subscription: p.subscription,
		AckIds:       ackIds,
	})
	if err != nil {
		p.log.ErrorContext(
			ctx,
			"failed to batch acknowledge messages",
			slogfield.Int("num_of_ack_ids", len(ackIds)),
			slogfield.Error(err),
		)
		return err
	}
	return nil
}
