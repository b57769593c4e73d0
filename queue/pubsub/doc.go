// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package pubsub provides default implementations for using Google Cloud PubSub with the runtimes in the queue package.
//
// Every pulled message is handled under its own "queue consumer" root span.
// Trace context found in message attributes is ignored.
package pubsub
