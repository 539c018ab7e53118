package lag

import (
	"context"
	"errors"
	"testing"

	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/obs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeSource struct {
	committed    map[Partition]int64
	ends         map[Partition]int64
	committedErr error
	endErr       error
	asked        []Partition
}

func (f *fakeSource) CommittedOffsets(context.Context, string) (map[Partition]int64, error) {
	return f.committed, f.committedErr
}

func (f *fakeSource) EndOffsets(_ context.Context, partitions []Partition) (map[Partition]int64, error) {
	f.asked = partitions
	return f.ends, f.endErr
}

func p(id int) Partition { return Partition{Topic: "events.raw", ID: id} }

func TestLag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		committed map[Partition]int64
		ends      map[Partition]int64
		want      int64
	}{
		{
			name:      "single_partition",
			committed: map[Partition]int64{p(0): 40},
			ends:      map[Partition]int64{p(0): 55},
			want:      15,
		},
		{
			name:      "sums_partitions",
			committed: map[Partition]int64{p(0): 40, p(1): 10, p(2): 0},
			ends:      map[Partition]int64{p(0): 55, p(1): 12, p(2): 3},
			want:      20,
		},
		{
			name:      "committed_past_end_is_clamped",
			committed: map[Partition]int64{p(0): 60, p(1): 5},
			ends:      map[Partition]int64{p(0): 55, p(1): 8},
			want:      3,
		},
		{
			name:      "uncommitted_partition_is_skipped",
			committed: map[Partition]int64{p(0): -1, p(1): 5},
			ends:      map[Partition]int64{p(0): 100, p(1): 8},
			want:      3,
		},
		{
			name:      "no_commits",
			committed: map[Partition]int64{},
			want:      0,
		},
		{
			name:      "missing_end_offset",
			committed: map[Partition]int64{p(0): 1, p(1): 1},
			ends:      map[Partition]int64{p(1): 4},
			want:      3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			metrics := obs.NewMetrics("test", prometheus.NewRegistry())
			m := NewMonitor(&fakeSource{committed: tt.committed, ends: tt.ends}, 0, metrics, zap.NewNop())

			got, err := m.Lag(context.Background(), "event-processor")
			if err != nil {
				t.Fatalf("expected nil error, got %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected lag %d, got %d", tt.want, got)
			}
			if v := testutil.ToFloat64(metrics.ConsumerLag); v != float64(tt.want) {
				t.Fatalf("expected consumer_lag gauge %d, got %v", tt.want, v)
			}
		})
	}
}

func TestLag_SkipsUncommittedInEndQuery(t *testing.T) {
	t.Parallel()
	src := &fakeSource{
		committed: map[Partition]int64{p(0): -1, p(1): 5},
		ends:      map[Partition]int64{p(1): 8},
	}
	_, err := NewMonitor(src, 0, nil, nil).Lag(context.Background(), "g")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(src.asked) != 1 || src.asked[0] != p(1) {
		t.Fatalf("expected end offsets to be asked for partition 1 only, got %v", src.asked)
	}
}

func TestComputeTotalLag_FailsOpen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  *fakeSource
	}{
		{name: "group_not_found", src: &fakeSource{committedErr: errors.New("group coordinator not available")}},
		{name: "end_offsets_fail", src: &fakeSource{committed: map[Partition]int64{p(0): 1}, endErr: errors.New("timeout")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			core, logs := observer.New(zapcore.ErrorLevel)
			m := NewMonitor(tt.src, 0, nil, zap.New(core))

			if got := m.ComputeTotalLag(context.Background(), "g"); got != 0 {
				t.Fatalf("expected 0, got %d", got)
			}
			if logs.FilterMessage("Failed to compute consumer lag").Len() != 1 {
				t.Fatalf("expected the failure to be logged")
			}
		})
	}
}

func TestReport(t *testing.T) {
	t.Parallel()

	ok := NewMonitor(&fakeSource{committed: map[Partition]int64{p(0): 40}, ends: map[Partition]int64{p(0): 55}}, 10, nil, nil)
	if r := ok.Report(context.Background(), "g"); r != (Report{ConsumerGroup: "g", TotalLag: 15, Status: StatusWarning}) {
		t.Fatalf("unexpected report %+v", r)
	}

	failing := NewMonitor(&fakeSource{committedErr: errors.New("unreachable")}, 10, nil, nil)
	if r := failing.Report(context.Background(), "g"); r != (Report{ConsumerGroup: "g", TotalLag: 0, Status: StatusUnknown}) {
		t.Fatalf("unexpected report %+v", r)
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		total int64
		err   error
		want  string
	}{
		{total: 0, want: StatusOK},
		{total: 1000, want: StatusOK},
		{total: 1001, want: StatusWarning},
		{total: 0, err: errors.New("x"), want: StatusUnknown},
	}
	for _, tt := range tests {
		if got := Status(tt.total, tt.err, DefaultWarnThreshold); got != tt.want {
			t.Errorf("Status(%d, %v) = %q, want %q", tt.total, tt.err, got, tt.want)
		}
	}
}
