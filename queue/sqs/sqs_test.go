// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package sqs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/z5labs/stitch/pkg/noop"
	"github.com/z5labs/stitch/pkg/span"
	"github.com/z5labs/stitch/pkg/tracecontext"
	"github.com/z5labs/stitch/queue"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withSqsClient(c sqsClient) CommonOption {
	return CommonOption(func(qo *queueOptions) {
		qo.client = c
	})
}

type sqsReceiveClientFunc func(context.Context, *sqs.ReceiveMessageInput, ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)

func (f sqsReceiveClientFunc) ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, opts ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	return f(ctx, in, opts...)
}

func (f sqsReceiveClientFunc) DeleteMessageBatch(_ context.Context, _ *sqs.DeleteMessageBatchInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error) {
	panic("unimplemented")
}

func TestConsumer_Consume(t *testing.T) {
	t.Run("will return an error", func(t *testing.T) {
		t.Run("if sqs fails to receive messages", func(t *testing.T) {
			receiveErr := errors.New("failed to receive messages")
			client := sqsReceiveClientFunc(func(ctx context.Context, rmi *sqs.ReceiveMessageInput, f ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
				return nil, receiveErr
			})

			c := NewConsumer(
				LogHandler(noop.LogHandler{}),
				QueueURL("example"),
				MaxNumOfMessages(10),
				VisibilityTimeout(10),
				WaitTimeSeconds(10),
				withSqsClient(client),
			)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			msgs, err := c.Consume(ctx)
			if !assert.Equal(t, receiveErr, err) {
				return
			}
			if !assert.Len(t, msgs, 0) {
				return
			}
		})

		t.Run("if sqs receives no messages", func(t *testing.T) {
			client := sqsReceiveClientFunc(func(ctx context.Context, rmi *sqs.ReceiveMessageInput, f ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
				resp := &sqs.ReceiveMessageOutput{}
				return resp, nil
			})

			c := NewConsumer(
				QueueURL("example"),
				withSqsClient(client),
			)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			msgs, err := c.Consume(ctx)
			if !assert.Equal(t, queue.ErrNoItem, err) {
				return
			}
			if !assert.Len(t, msgs, 0) {
				return
			}
		})
	})

	t.Run("will not return an error", func(t *testing.T) {
		t.Run("if sqs successfully receives messages", func(t *testing.T) {
			var input *sqs.ReceiveMessageInput
			client := sqsReceiveClientFunc(func(ctx context.Context, rmi *sqs.ReceiveMessageInput, f ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
				input = rmi
				resp := &sqs.ReceiveMessageOutput{
					Messages: make([]types.Message, 10),
				}
				return resp, nil
			})

			c := NewConsumer(
				QueueURL("example"),
				MaxNumOfMessages(10),
				WaitTimeSeconds(20),
				withSqsClient(client),
			)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			msgs, err := c.Consume(ctx)
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Len(t, msgs, 10) {
				return
			}
			if !assert.Equal(t, "example", aws.ToString(input.QueueUrl)) {
				return
			}
			if !assert.Equal(t, int32(10), input.MaxNumberOfMessages) {
				return
			}
			assert.Equal(t, int32(20), input.WaitTimeSeconds)
		})
	})
}

type sqsBatchDeleteClientFunc func(context.Context, *sqs.DeleteMessageBatchInput, ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error)

func (f sqsBatchDeleteClientFunc) ReceiveMessage(_ context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	panic("unimplemented")
}

func (f sqsBatchDeleteClientFunc) DeleteMessageBatch(ctx context.Context, in *sqs.DeleteMessageBatchInput, opts ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error) {
	return f(ctx, in, opts...)
}

func newMessages(n int) []types.Message {
	msgs := make([]types.Message, 0, n)
	for i := 0; i < n; i++ {
		msgs = append(msgs, types.Message{
			MessageId:     aws.String(fmt.Sprintf("msg-%d", i)),
			ReceiptHandle: aws.String(fmt.Sprintf("receipt-%d", i)),
		})
	}
	return msgs
}

func TestBatchDeleteProcessor_Process(t *testing.T) {
	t.Run("will return an error", func(t *testing.T) {
		t.Run("if sqs fails to batch delete messages", func(t *testing.T) {
			deleteErr := errors.New("failed to delete")
			client := sqsBatchDeleteClientFunc(func(ctx context.Context, dmbi *sqs.DeleteMessageBatchInput, f ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error) {
				return nil, deleteErr
			})

			var called atomic.Bool
			proc := queue.ProcessorFunc[types.Message](func(ctx context.Context, m types.Message) error {
				called.Store(true)
				return nil
			})

			p := NewBatchDeleteProcessor(
				QueueURL("example"),
				Processor(proc),
				withSqsClient(client),
			)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			err := p.Process(ctx, newMessages(10))
			if !assert.Equal(t, deleteErr, err) {
				return
			}
			if !assert.True(t, called.Load()) {
				return
			}
		})
	})

	t.Run("will not return an error", func(t *testing.T) {
		t.Run("if the inner processor fails", func(t *testing.T) {
			client := sqsBatchDeleteClientFunc(func(ctx context.Context, dmbi *sqs.DeleteMessageBatchInput, f ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error) {
				return nil, errors.New("should not be called")
			})

			var called atomic.Bool
			proc := queue.ProcessorFunc[types.Message](func(ctx context.Context, m types.Message) error {
				called.Store(true)
				return errors.New("failed")
			})

			p := NewBatchDeleteProcessor(
				QueueURL("example"),
				Processor(proc),
				withSqsClient(client),
			)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			err := p.Process(ctx, newMessages(10))
			if !assert.Nil(t, err) {
				return
			}
			if !assert.True(t, called.Load()) {
				return
			}
		})

		t.Run("if the inner processor panics", func(t *testing.T) {
			client := sqsBatchDeleteClientFunc(func(ctx context.Context, dmbi *sqs.DeleteMessageBatchInput, f ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error) {
				return &sqs.DeleteMessageBatchOutput{}, nil
			})

			proc := queue.ProcessorFunc[types.Message](func(ctx context.Context, m types.Message) error {
				panic("boom")
			})

			p := NewBatchDeleteProcessor(
				QueueURL("example"),
				Processor(proc),
				withSqsClient(client),
			)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			err := p.Process(ctx, newMessages(3))
			if !assert.Nil(t, err) {
				return
			}
		})

		t.Run("if sqs failed to delete some messages", func(t *testing.T) {
			client := sqsBatchDeleteClientFunc(func(ctx context.Context, dmbi *sqs.DeleteMessageBatchInput, f ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error) {
				resp := &sqs.DeleteMessageBatchOutput{
					Failed: []types.BatchResultErrorEntry{
						{
							Id:          aws.String("msg-0"),
							Code:        aws.String("ReceiptHandleIsInvalid"),
							Message:     aws.String("invalid receipt handle"),
							SenderFault: true,
						},
					},
				}
				return resp, nil
			})

			proc := queue.ProcessorFunc[types.Message](func(ctx context.Context, m types.Message) error {
				return nil
			})

			var buf bytes.Buffer
			p := NewBatchDeleteProcessor(
				LogHandler(slog.NewJSONHandler(&buf, nil)),
				QueueURL("example"),
				Processor(proc),
				withSqsClient(client),
			)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			err := p.Process(ctx, newMessages(10))
			if !assert.Nil(t, err) {
				return
			}

			var record struct {
				Msg         string `json:"msg"`
				MessageId   string `json:"sqs_message_id"`
				ErrorCode   string `json:"sqs_error_code"`
				SenderFault bool   `json:"sqs_sender_fault"`
			}
			err = json.Unmarshal(buf.Bytes(), &record)
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, "failed to delete message", record.Msg) {
				return
			}
			if !assert.Equal(t, "msg-0", record.MessageId) {
				return
			}
			if !assert.Equal(t, "ReceiptHandleIsInvalid", record.ErrorCode) {
				return
			}
			assert.True(t, record.SenderFault)
		})
	})

	t.Run("will only delete successfully processed messages", func(t *testing.T) {
		var deleted []string
		client := sqsBatchDeleteClientFunc(func(ctx context.Context, dmbi *sqs.DeleteMessageBatchInput, f ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error) {
			for _, entry := range dmbi.Entries {
				deleted = append(deleted, aws.ToString(entry.Id))
			}
			return &sqs.DeleteMessageBatchOutput{}, nil
		})

		proc := queue.ProcessorFunc[types.Message](func(ctx context.Context, m types.Message) error {
			if aws.ToString(m.MessageId) == "msg-1" {
				return errors.New("failed")
			}
			return nil
		})

		p := NewBatchDeleteProcessor(
			QueueURL("example"),
			Processor(proc),
			withSqsClient(client),
		)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := p.Process(ctx, newMessages(3))
		if !assert.Nil(t, err) {
			return
		}
		assert.ElementsMatch(t, []string{"msg-0", "msg-2"}, deleted)
	})

	t.Run("will process every message under its own root span", func(t *testing.T) {
		sr := tracetest.NewSpanRecorder()
		tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
		f := span.NewFactory(tp, "sqs-test")

		client := sqsBatchDeleteClientFunc(func(ctx context.Context, dmbi *sqs.DeleteMessageBatchInput, f ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error) {
			return &sqs.DeleteMessageBatchOutput{}, nil
		})

		var mu sync.Mutex
		var handled []tracecontext.TraceContext
		proc := queue.ProcessorFunc[types.Message](func(ctx context.Context, m types.Message) error {
			tc, _ := tracecontext.FromContext(ctx)

			mu.Lock()
			defer mu.Unlock()
			handled = append(handled, tc)
			return nil
		})

		p := NewBatchDeleteProcessor(
			QueueURL("example"),
			Processor(proc),
			Tracing(f),
			withSqsClient(client),
		)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := p.Process(ctx, newMessages(5))
		if !assert.Nil(t, err) {
			return
		}
		if !assert.Len(t, handled, 5) {
			return
		}

		traceIDs := make(map[string]struct{})
		for _, tc := range handled {
			traceIDs[tc.TraceIDString()] = struct{}{}
		}
		if !assert.Len(t, traceIDs, 5) {
			return
		}

		spans := sr.Ended()
		if !assert.Len(t, spans, 5) {
			return
		}
		for _, s := range spans {
			if !assert.Equal(t, queue.DefaultSpanName, s.Name()) {
				return
			}
			if !assert.False(t, s.Parent().IsValid()) {
				return
			}
		}
	})
}
