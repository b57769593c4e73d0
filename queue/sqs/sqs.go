// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package sqs provides default implementations for using AWS SQS with the runtimes in the queue package.
//
// Every received message is handled under its own "queue consumer" root
// span. SQS message attributes are never read for trace context.
package sqs

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
	"github.com/z5labs/stitch/queue/sqs/sqsslog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"golang.org/x/sync/errgroup"
)

type consumerOptions struct {
	queueOptions

	maxNumOfMessages  int32
	visibilityTimeout int32
	waitTimeSeconds   int32
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

// VisibilityTimeout
func VisibilityTimeout(n int32) ConsumerOption {
	return consumerOptionFunc(func(co *consumerOptions) {
		co.visibilityTimeout = n
	})
}

// WaitTimeSeconds
func WaitTimeSeconds(n int32) ConsumerOption {
	return consumerOptionFunc(func(co *consumerOptions) {
		co.waitTimeSeconds = n
	})
}

type sqsReceiveClient interface {
	ReceiveMessage(context.Context, *sqs.ReceiveMessageInput, ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
}

// Consumer receives batches of messages from a single SQS queue.
type Consumer struct {
	log *slog.Logger
	sqs sqsReceiveClient

	queueUrl          string
	maxNumOfMessages  int32
	visibilityTimeout int32
	waitTimeSeconds   int32
}

// NewConsumer
func NewConsumer(opts ...ConsumerOption) *Consumer {
	co := &consumerOptions{
		queueOptions: queueOptions{
			logHandler: noop.LogHandler{},
		},
	}
	for _, opt := range opts {
		opt.applyConsumer(co)
	}
	return &Consumer{
		log:               otelslog.New(co.logHandler),
		sqs:               co.client,
		queueUrl:          co.url,
		maxNumOfMessages:  co.maxNumOfMessages,
		visibilityTimeout: co.visibilityTimeout,
		waitTimeSeconds:   co.waitTimeSeconds,
	}
}

// Consume implements the queue.Consumer interface. It returns queue.ErrNoItem
// when SQS had no messages to deliver.
func (c *Consumer) Consume(ctx context.Context) ([]types.Message, error) {
	resp, err := c.sqs.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueUrl),
		MaxNumberOfMessages: c.maxNumOfMessages,
		VisibilityTimeout:   c.visibilityTimeout,
		WaitTimeSeconds:     c.waitTimeSeconds,
	})
	if err != nil {
		c.log.ErrorContext(ctx, "failed to receive messages", slogfield.Error(err))
		return nil, err
	}

	c.log.DebugContext(ctx, "received messages", slogfield.Int("num_of_messages", len(resp.Messages)))
	if len(resp.Messages) == 0 {
		return nil, queue.ErrNoItem
	}
	return resp.Messages, nil
}

type batchDeleteProcessorOptions struct {
	queueOptions

	inner   queue.Processor[types.Message]
	factory *span.Factory
}

// BatchDeleteProcessorOption configures a BatchDeleteProcessor.
type BatchDeleteProcessorOption interface {
	applyProcessor(*batchDeleteProcessorOptions)
}

type batchDeleteProcessorOptionFunc func(*batchDeleteProcessorOptions)

func (f batchDeleteProcessorOptionFunc) applyProcessor(bo *batchDeleteProcessorOptions) {
	f(bo)
}

// Processor configures the processor every message is handed to.
func Processor(p queue.Processor[types.Message]) BatchDeleteProcessorOption {
	return batchDeleteProcessorOptionFunc(func(bo *batchDeleteProcessorOptions) {
		bo.inner = p
	})
}

// Tracing processes every message under a new root span created by f.
func Tracing(f *span.Factory) BatchDeleteProcessorOption {
	return batchDeleteProcessorOptionFunc(func(bo *batchDeleteProcessorOptions) {
		bo.factory = f
	})
}

type sqsBatchDeleteClient interface {
	DeleteMessageBatch(context.Context, *sqs.DeleteMessageBatchInput, ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error)
}

// BatchDeleteProcessor processes every message of a batch concurrently and
// then deletes the successfully processed ones with a single request.
type BatchDeleteProcessor struct {
	log *slog.Logger
	sqs sqsBatchDeleteClient

	queueUrl string
	inner    queue.Processor[types.Message]
}

// NewBatchDeleteProcessor
func NewBatchDeleteProcessor(opts ...BatchDeleteProcessorOption) *BatchDeleteProcessor {
	bo := &batchDeleteProcessorOptions{
		queueOptions: queueOptions{
			logHandler: noop.LogHandler{},
		},
	}
	for _, opt := range opts {
		opt.applyProcessor(bo)
	}

	log := otelslog.New(bo.logHandler)
	var inner queue.Processor[types.Message] = logFailures(log, bo.inner)
	if bo.factory != nil {
		inner = queue.Traced(bo.factory, inner)
	}
	return &BatchDeleteProcessor{
		log:      log,
		sqs:      bo.client,
		queueUrl: bo.url,
		inner:    inner,
	}
}

// logFailures logs from inside the message's span so the record carries
// the message's trace ids.
func logFailures(log *slog.Logger, p queue.Processor[types.Message]) queue.Processor[types.Message] {
	return queue.ProcessorFunc[types.Message](func(ctx context.Context, msg types.Message) (err error) {
		defer func() {
			if err == nil {
				return
			}
			log.ErrorContext(
				ctx,
				"failed to process message",
				sqsslog.MessageId(aws.ToString(msg.MessageId)),
				slogfield.Error(err),
			)
		}()
		defer try.Recover(&err)

		return p.Process(ctx, msg)
	})
}

// Process implements the queue.Processor interface.
func (p *BatchDeleteProcessor) Process(ctx context.Context, msgs []types.Message) error {
	var mu sync.Mutex
	deleteEntries := make([]types.DeleteMessageBatchRequestEntry, 0, len(msgs))

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
			deleteEntries = append(deleteEntries, types.DeleteMessageBatchRequestEntry{
				Id:            msg.MessageId,
				ReceiptHandle: msg.ReceiptHandle,
			})
			return nil
		})
	}

	// messages are deleted even if ctx was cancelled while processing
	_ = g.Wait()
	if len(deleteEntries) == 0 {
		return nil
	}

	resp, err := p.sqs.DeleteMessageBatch(ctx, &sqs.DeleteMessageBatchInput{
		QueueUrl: aws.String(p.queueUrl),
		Entries:  deleteEntries,
	})
	if err != nil {
		p.log.ErrorContext(
			ctx,
			"failed to batch delete messages",
			slogfield.Int("num_of_delete_entries", len(deleteEntries)),
			slogfield.Error(err),
		)
		return err
	}
	if resp == nil {
		return nil
	}
	for _, entry := range resp.Failed {
		p.log.ErrorContext(
			ctx,
			"failed to delete message",
			sqsslog.MessageId(aws.ToString(entry.Id)),
			sqsslog.ErrorCode(aws.ToString(entry.Code)),
			sqsslog.ErrorMessage(aws.ToString(entry.Message)),
			sqsslog.SenderFault(entry.SenderFault),
		)
	}
	return nil
}
