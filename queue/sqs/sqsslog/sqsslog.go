// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package sqsslog provides slog attrs for AWS SQS message fields.
package sqsslog

import (
	"log/slog"
	"sort"

	"github.com/z5labs/stitch/pkg/slogfield"
)

// MessageId
func MessageId(s string) slog.Attr {
	return slogfield.String("sqs_message_id", s)
}

// MessageIds
func MessageIds(ss []string) slog.Attr {
	return slogfield.Strings("sqs_message_ids", ss)
}

// ReceiptHandle
func ReceiptHandle(s string) slog.Attr {
	return slogfield.String("sqs_receipt_handle", s)
}

// ErrorCode is the code SQS reports for a failed batch entry.
func ErrorCode(s string) slog.Attr {
	return slogfield.String("sqs_error_code", s)
}

// ErrorMessage is the message SQS reports for a failed batch entry.
func ErrorMessage(s string) slog.Attr {
	return slogfield.String("sqs_error_message", s)
}

// SenderFault
func SenderFault(b bool) slog.Attr {
	return slogfield.Bool("sqs_sender_fault", b)
}

// MessageAttributes groups m under a single key with its keys sorted.
func MessageAttributes(m map[string]string) slog.Attr {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	attrs := make([]any, 0, len(m))
	for _, key := range keys {
		attrs = append(attrs, slog.String(key, m[key]))
	}
	return slog.Group("sqs_message_attributes", attrs...)
}
