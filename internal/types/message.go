// Package types defines shared types used across the application
package types

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// Message is a raw message fetched from the inbound stream.
// Key and Value are kept as bytes; decoding happens in the pipeline.
type Message struct {
	Key   []byte
	Value []byte
	Meta  *MessageMeta

	// Raw is the broker message used to acknowledge (commit) the offset.
	Raw kafka.Message
}

// MessageMeta holds the broker coordinates of a message
type MessageMeta struct {
	Topic     string
	Partition int
	Offset    int64
	Time      time.Time
}

// NewMessage wraps a kafka message fetched by a consumer-group reader
func NewMessage(msg kafka.Message) *Message {
	return &Message{
		Key:   msg.Key,
		Value: msg.Value,
		Meta: &MessageMeta{
			Topic:     msg.Topic,
			Partition: msg.Partition,
			Offset:    msg.Offset,
			Time:      msg.Time,
		},
		Raw: msg,
	}
}

// Partition returns the source partition, or 0 when metadata is missing
func (m *Message) Partition() int {
	if m == nil || m.Meta == nil {
		return 0
	}
	return m.Meta.Partition
}
