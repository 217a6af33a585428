package kafka

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"playrelay/internal/config"
)

// Client is the part of *kgo.Client the consume loop drives. Tests swap in
// a fake returning hand-built fetches.
//
// A poll blocks rebalances that would take partitions away until
// AllowRebalance, so everything stored and committed between the two belongs
// to partitions this member still owns.
type Client interface {
	PollFetches(ctx context.Context) kgo.Fetches
	CommitRecords(ctx context.Context, rs ...*kgo.Record) error
	AllowRebalance()
	CloseAllowingRebalance()
}

var _ Client = (*kgo.Client)(nil)

// Options builds the group consumer settings: cooperative-sticky balancing,
// manual commits, rebalances held off between a poll and AllowRebalance, and
// the configured reset policy for a fresh group.
func Options(cfg config.Config, obs RebalanceObserver) []kgo.Opt {
	reset := kgo.NewOffset().AtEnd()
	if cfg.Kafka.OffsetReset == config.ResetEarliest {
		reset = kgo.NewOffset().AtStart()
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Kafka.Brokers...),
		kgo.ClientID(cfg.Kafka.ClientID),
		kgo.ConsumerGroup(cfg.Kafka.GroupID),
		kgo.ConsumeTopics(cfg.Kafka.Topic),
		kgo.Balancers(kgo.CooperativeStickyBalancer()),
		kgo.DisableAutoCommit(),
		kgo.BlockRebalanceOnPoll(),
		kgo.ConsumeResetOffset(reset),
	}
	if obs != nil {
		opts = append(opts,
			kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, m map[string][]int32) {
				obs.OnPartitionsAssigned(m)
			}),
			kgo.OnPartitionsRevoked(func(_ context.Context, _ *kgo.Client, m map[string][]int32) {
				obs.OnPartitionsRevoked(m)
			}),
			kgo.OnPartitionsLost(func(_ context.Context, _ *kgo.Client, m map[string][]int32) {
				obs.OnPartitionsLost(m)
			}),
		)
	}
	return opts
}

// NewClient joins the group lazily: membership starts with the first poll.
func NewClient(cfg config.Config, obs RebalanceObserver) (*kgo.Client, error) {
	cl, err := kgo.NewClient(Options(cfg, obs)...)
	if err != nil {
		return nil, fmt.Errorf("kafka-subscriber: %w", err)
	}
	return cl, nil
}
