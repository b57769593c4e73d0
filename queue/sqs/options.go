// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package sqs

import (
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type sqsClient interface {
	sqsBatchDeleteClient
	sqsReceiveClient
}

// queueOptions are shared by the Consumer and the BatchDeleteProcessor of a queue.
type queueOptions struct {
	logHandler slog.Handler
	client     sqsClient
	url        string
}

// CommonOption configures both a Consumer and a BatchDeleteProcessor.
type CommonOption func(*queueOptions)

func (f CommonOption) applyConsumer(co *consumerOptions) {
	f(&co.queueOptions)
}

func (f CommonOption) applyProcessor(bo *batchDeleteProcessorOptions) {
	f(&bo.queueOptions)
}

// LogHandler configures the underlying slog.Handler.
func LogHandler(h slog.Handler) CommonOption {
	return func(qo *queueOptions) {
		qo.logHandler = h
	}
}

// Client configures the underlying SQS client.
func Client(c *sqs.Client) CommonOption {
	return func(qo *queueOptions) {
		qo.client = c
	}
}

// QueueURL configures the url of the queue messages are received from
// and deleted on.
func QueueURL(url string) CommonOption {
	return func(qo *queueOptions) {
		qo.url = url
	}
}
