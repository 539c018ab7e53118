package lag

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaSource reads offsets from a Kafka cluster through the admin protocol
type KafkaSource struct {
	client *kafka.Client
	topics []string
}

// NewKafkaSource creates an offset source for the group's subscribed topics
func NewKafkaSource(brokers []string, topics []string, timeout time.Duration) *KafkaSource {
	return &KafkaSource{
		client: &kafka.Client{Addr: kafka.TCP(brokers...), Timeout: timeout},
		topics: topics,
	}
}

// CommittedOffsets fetches the group's committed offsets for every partition of the topics.
// Partitions the group never committed to are reported with a negative offset.
func (s *KafkaSource) CommittedOffsets(ctx context.Context, group string) (map[Partition]int64, error) {
	meta, err := s.client.Metadata(ctx, &kafka.MetadataRequest{Topics: s.topics})
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}

	request := make(map[string][]int, len(meta.Topics))
	for _, t := range meta.Topics {
		if t.Error != nil {
			return nil, fmt.Errorf("topic %s: %w", t.Name, t.Error)
		}
		for _, p := range t.Partitions {
			request[t.Name] = append(request[t.Name], p.ID)
		}
	}

	resp, err := s.client.OffsetFetch(ctx, &kafka.OffsetFetchRequest{GroupID: group, Topics: request})
	if err != nil {
		return nil, fmt.Errorf("offset fetch: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("offset fetch: %w", resp.Error)
	}

	out := make(map[Partition]int64)
	for topic, partitions := range resp.Topics {
		for _, p := range partitions {
			if p.Error != nil {
				return nil, fmt.Errorf("offset fetch %s/%d: %w", topic, p.Partition, p.Error)
			}
			out[Partition{Topic: topic, ID: p.Partition}] = p.CommittedOffset
		}
	}
	return out, nil
}

// EndOffsets lists the log-end offset of each partition
func (s *KafkaSource) EndOffsets(ctx context.Context, partitions []Partition) (map[Partition]int64, error) {
	requests := make(map[string][]kafka.OffsetRequest)
	for _, p := range partitions {
		requests[p.Topic] = append(requests[p.Topic], kafka.LastOffsetOf(p.ID))
	}

	resp, err := s.client.ListOffsets(ctx, &kafka.ListOffsetsRequest{Topics: requests})
	if err != nil {
		return nil, fmt.Errorf("list offsets: %w", err)
	}

	out := make(map[Partition]int64, len(partitions))
	for topic, offsets := range resp.Topics {
		for _, po := range offsets {
			if po.Error != nil {
				return nil, fmt.Errorf("list offsets %s/%d: %w", topic, po.Partition, po.Error)
			}
			out[Partition{Topic: topic, ID: po.Partition}] = po.LastOffset
		}
	}
	return out, nil
}
