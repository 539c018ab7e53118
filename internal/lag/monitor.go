// Package lag computes consumer-group lag: the sum over partitions of log-end offset
// minus committed offset.
package lag

import (
	"context"
	"fmt"

	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/obs"
	"go.uber.org/zap"
)

// Lag statuses
const (
	StatusOK      = "ok"
	StatusWarning = "warning"
	StatusUnknown = "unknown"
)

// DefaultWarnThreshold is the total lag above which the status turns to warning
const DefaultWarnThreshold int64 = 1000

// Partition identifies a topic partition
type Partition struct {
	Topic string
	ID    int
}

// OffsetSource answers offset queries against the cluster
type OffsetSource interface {
	// CommittedOffsets returns the committed offset of every partition the group has committed to
	CommittedOffsets(ctx context.Context, group string) (map[Partition]int64, error)
	// EndOffsets returns the log-end offset of each given partition
	EndOffsets(ctx context.Context, partitions []Partition) (map[Partition]int64, error)
}

// Monitor computes consumer lag on demand. It is read-only and safe for concurrent use.
type Monitor struct {
	source    OffsetSource
	threshold int64
	metrics   *obs.Metrics
	logger    *zap.Logger
}

// NewMonitor creates a lag monitor. A threshold <= 0 uses DefaultWarnThreshold.
func NewMonitor(source OffsetSource, threshold int64, metrics *obs.Metrics, logger *zap.Logger) *Monitor {
	if threshold <= 0 {
		threshold = DefaultWarnThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{source: source, threshold: threshold, metrics: metrics, logger: logger}
}

// Lag returns the total lag of group. Partitions without a committed offset are skipped and
// a partition whose committed offset is past the log end contributes 0.
func (m *Monitor) Lag(ctx context.Context, group string) (int64, error) {
	committed, err := m.source.CommittedOffsets(ctx, group)
	if err != nil {
		return 0, fmt.Errorf("committed offsets for group %s: %w", group, err)
	}

	partitions := make([]Partition, 0, len(committed))
	for p, offset := range committed {
		if offset < 0 {
			continue
		}
		partitions = append(partitions, p)
	}
	if len(partitions) == 0 {
		m.metrics.SetConsumerLag(0)
		return 0, nil
	}

	ends, err := m.source.EndOffsets(ctx, partitions)
	if err != nil {
		return 0, fmt.Errorf("end offsets for group %s: %w", group, err)
	}

	var total int64
	for _, p := range partitions {
		end, ok := ends[p]
		if !ok {
			continue
		}
		total += max(0, end-committed[p])
	}

	m.metrics.SetConsumerLag(total)
	return total, nil
}

// ComputeTotalLag is Lag that never fails: query errors are logged and reported as 0.
func (m *Monitor) ComputeTotalLag(ctx context.Context, group string) int64 {
	total, err := m.Lag(ctx, group)
	if err != nil {
		m.logger.Error("Failed to compute consumer lag", zap.String("group", group), zap.Error(err))
		return 0
	}
	return total
}

// Report is the lag summary exposed by the admin API and the CLI
type Report struct {
	ConsumerGroup string `json:"consumerGroup"`
	TotalLag      int64  `json:"totalLag"`
	Status        string `json:"status"`
}

// Report computes the lag of group and classifies it
func (m *Monitor) Report(ctx context.Context, group string) Report {
	total, err := m.Lag(ctx, group)
	if err != nil {
		m.logger.Error("Failed to compute consumer lag", zap.String("group", group), zap.Error(err))
	}
	return Report{ConsumerGroup: group, TotalLag: total, Status: Status(total, err, m.threshold)}
}

// Status classifies a lag query result
func Status(total int64, err error, threshold int64) string {
	switch {
	case err != nil:
		return StatusUnknown
	case total > threshold:
		return StatusWarning
	default:
		return StatusOK
	}
}
