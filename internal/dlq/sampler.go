package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/types"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Sample limits
const (
	DefaultSampleLimit = 20
	MaxSampleLimit     = 500
)

// PartitionRange is the readable offset window of one partition: [First, Last).
type PartitionRange struct {
	Partition int
	First     int64
	Last      int64
}

// PartitionReader reads messages from one partition starting at a fixed offset
type PartitionReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Sampler reads the newest dead-letter records without joining a consumer group
// or committing anything.
type Sampler struct {
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time

	ranges func(ctx context.Context) ([]PartitionRange, error)
	open   func(partition int, offset int64) (PartitionReader, error)
}

// NewSampler creates a sampler for the DLQ topic on the given brokers
func NewSampler(brokers []string, topic string, timeout time.Duration, logger *zap.Logger) *Sampler {
	client := &kafka.Client{Addr: kafka.TCP(brokers...), Timeout: timeout}
	s := newSampler(timeout, logger)
	s.ranges = func(ctx context.Context) ([]PartitionRange, error) {
		return topicRanges(ctx, client, topic)
	}
	s.open = func(partition int, offset int64) (PartitionReader, error) {
		r := kafka.NewReader(kafka.ReaderConfig{
			Brokers:   brokers,
			Topic:     topic,
			Partition: partition,
			MinBytes:  1,
			MaxBytes:  10e6,
			MaxWait:   250 * time.Millisecond,
		})
		if err := r.SetOffset(offset); err != nil {
			_ = r.Close()
			return nil, err
		}
		return r, nil
	}
	return s
}

func newSampler(timeout time.Duration, logger *zap.Logger) *Sampler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Sampler{timeout: timeout, logger: logger, now: time.Now}
}

// ClampLimit bounds a requested sample size to [1, MaxSampleLimit]
func ClampLimit(limit int) int {
	switch {
	case limit < 1:
		return 1
	case limit > MaxSampleLimit:
		return MaxSampleLimit
	default:
		return limit
	}
}

// Sample returns up to limit of the most recent dead-letter records, newest first.
// It is bounded by the sampler timeout; errors are logged and partial results returned.
func (s *Sampler) Sample(ctx context.Context, limit int) []types.DeadLetter {
	limit = ClampLimit(limit)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ranges, err := s.ranges(ctx)
	if err != nil {
		s.logger.Error("Failed to list DLQ offsets", zap.Error(err))
		return []types.DeadLetter{}
	}

	type sampled struct {
		record types.DeadLetter
		time   time.Time
	}
	var out []sampled

	for _, pr := range ranges {
		start := max(pr.First, pr.Last-int64(limit))
		if start >= pr.Last {
			continue
		}
		reader, err := s.open(pr.Partition, start)
		if err != nil {
			s.logger.Warn("Failed to open DLQ partition", zap.Int("partition", pr.Partition), zap.Error(err))
			continue
		}
		for offset := start; offset < pr.Last; offset++ {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				s.logger.Warn("Stopped reading DLQ partition",
					zap.Int("partition", pr.Partition),
					zap.Int64("offset", offset),
					zap.Error(err),
				)
				break
			}
			out = append(out, sampled{record: s.parse(msg.Value), time: msg.Time})
			if msg.Offset >= pr.Last-1 {
				break
			}
		}
		_ = reader.Close()
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].time.After(out[j].time) })
	if len(out) > limit {
		out = out[:limit]
	}
	records := make([]types.DeadLetter, len(out))
	for i, o := range out {
		records[i] = o.record
	}
	return records
}

func (s *Sampler) parse(value []byte) types.DeadLetter {
	var dl types.DeadLetter
	if err := json.Unmarshal(value, &dl); err != nil {
		s.logger.Warn("Failed to parse DLQ message", zap.Error(err))
		return types.DeadLetter{
			FailedAt: s.now().UTC().Format(time.RFC3339Nano),
			Reason:   "Parse error",
			Original: string(value),
			TenantID: types.TenantUnknown,
		}
	}
	return dl
}

// topicRanges looks up the first and last offsets of every partition of topic
func topicRanges(ctx context.Context, client *kafka.Client, topic string) ([]PartitionRange, error) {
	meta, err := client.Metadata(ctx, &kafka.MetadataRequest{Topics: []string{topic}})
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	var partitions []int
	for _, t := range meta.Topics {
		if t.Name != topic {
			continue
		}
		if t.Error != nil {
			return nil, fmt.Errorf("topic %s: %w", topic, t.Error)
		}
		for _, p := range t.Partitions {
			partitions = append(partitions, p.ID)
		}
	}
	if len(partitions) == 0 {
		return nil, nil
	}

	requests := make([]kafka.OffsetRequest, 0, 2*len(partitions))
	for _, p := range partitions {
		requests = append(requests, kafka.FirstOffsetOf(p), kafka.LastOffsetOf(p))
	}
	resp, err := client.ListOffsets(ctx, &kafka.ListOffsetsRequest{
		Addr:   client.Addr,
		Topics: map[string][]kafka.OffsetRequest{topic: requests},
	})
	if err != nil {
		return nil, fmt.Errorf("list offsets: %w", err)
	}

	out := make([]PartitionRange, 0, len(partitions))
	for _, po := range resp.Topics[topic] {
		if po.Error != nil {
			return nil, fmt.Errorf("partition %d offsets: %w", po.Partition, po.Error)
		}
		out = append(out, PartitionRange{Partition: po.Partition, First: po.FirstOffset, Last: po.LastOffset})
	}
	return out, nil
}
