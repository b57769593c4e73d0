// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package pubsub

import (
	"log/slog"

	pubsub "cloud.google.com/go/pubsub/apiv1"
)

type pubsubClient interface {
	pubsubPullClient
	pubsubAckClient
}

// subscriptionOptions are shared by the Consumer and the
// BatchAcknowledgeProcessor of a subscription.
type subscriptionOptions struct {
	logHandler   slog.Handler
	client       pubsubClient
	subscription string
}

// CommonOption configures both a Consumer and a BatchAcknowledgeProcessor.
type CommonOption func(*subscriptionOptions)

func (f CommonOption) applyConsumer(co *consumerOptions) {
	f(&co.subscriptionOptions)
}

func (f CommonOption) applyProcessor(bo *batchAcknowledgeProcessorOptions) {
	f(&bo.subscriptionOptions)
}

// LogHandler configures the underlying slog.Handler.
func LogHandler(h slog.Handler) CommonOption {
	return func(so *subscriptionOptions) {
		so.logHandler = h
	}
}

// Client configures the underlying PubSub subscriber client.
func Client(c *pubsub.SubscriberClient) CommonOption {
	return func(so *subscriptionOptions) {
		so.client = c
	}
}

// Subscription configures the fully qualified subscription name,
// e.g. projects/my-project/subscriptions/my-sub.
func Subscription(s string) CommonOption {
	return func(so *subscriptionOptions) {
		so.subscription = s
	}
}
