package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"playrelay/internal/config"
	"playrelay/internal/event"
	"playrelay/internal/logging"
	"playrelay/internal/telemetry"
	"playrelay/sink"
	"playrelay/source/kafka"
)

// Consumer moves records from the group client into the sink and commits
// each offset only after the sink acknowledged it and every earlier offset
// of its partition.
type Consumer struct {
	client       kafka.Client
	sink         sink.Adapter
	checkpoint   *kafka.Checkpoint
	pollTimeout  time.Duration
	writeTimeout time.Duration
	batchSize    int
}

// NewConsumer wires the loop. cp must be the checkpoint registered as the
// client's rebalance observer; nil creates a private one.
func NewConsumer(cl kafka.Client, s sink.Adapter, cp *kafka.Checkpoint, cfg config.ConsumerCfg) *Consumer {
	if cp == nil {
		cp = kafka.NewCheckpoint()
	}
	batch := cfg.BatchSize
	if batch < 1 {
		batch = 1
	}
	return &Consumer{
		client:       cl,
		sink:         s,
		checkpoint:   cp,
		pollTimeout:  cfg.PollTimeout,
		writeTimeout: cfg.WriteTimeout,
		batchSize:    batch,
	}
}

// Run pulls until ctx is cancelled, then leaves the group. Cancellation is
// only observed between pulls: records already pulled are stored and
// committed first, each within the write timeout.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.client.CloseAllowingRebalance()
	logging.For("consumer").Info("polling...")

	for {
		if ctx.Err() != nil {
			return nil
		}
		fetches := c.poll(ctx)
		if ctx.Err() != nil || fetches.IsClientClosed() {
			return nil
		}
		c.process(ctx, fetches)
		c.client.AllowRebalance()
	}
}

// poll blocks for at most pollTimeout so a stop is noticed promptly.
func (c *Consumer) poll(ctx context.Context) kgo.Fetches {
	if c.pollTimeout <= 0 {
		return c.client.PollFetches(ctx)
	}
	pctx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()
	return c.client.PollFetches(pctx)
}

func (c *Consumer) process(ctx context.Context, fetches kgo.Fetches) {
	fetches.EachError(func(topic string, partition int32, err error) {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return
		}
		telemetry.PullErrors.Inc()
		logging.For("consumer").Error("pull error", "topic", topic, "partition", partition, "err", err)
	})

	recs := fetches.Records()
	if len(recs) == 0 {
		return
	}
	telemetry.Consumed.Add(float64(len(recs)))

	// Pulled work is finished even if a stop arrives meanwhile.
	wctx := context.WithoutCancel(ctx)
	if c.batchSize == 1 {
		for _, rec := range recs {
			report(c.handle(wctx, rec), rec)
		}
		return
	}
	c.handleBatch(wctx, recs)
}

// bounded limits one write and its commit.
func (c *Consumer) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.writeTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.writeTimeout)
}

func (c *Consumer) handle(ctx context.Context, rec *kgo.Record) Outcome {
	ev, err := decode(rec)
	if err != nil {
		return Outcome{Kind: KindSkipped, Err: err}
	}
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	if err := c.sink.InsertOne(ctx, ev); err != nil {
		c.checkpoint.Fail(rec)
		return Outcome{Kind: KindSinkFailed, Err: err}
	}
	if _, held := c.checkpoint.Split([]*kgo.Record{rec}); len(held) > 0 {
		return Outcome{Kind: KindHeld}
	}
	return c.commit(ctx, rec)
}

// handleBatch writes decoded records in chunks of batchSize; a chunk is
// committed only once InsertMany acknowledged all of it.
func (c *Consumer) handleBatch(ctx context.Context, recs []*kgo.Record) {
	evs := make([]event.TrackEvent, 0, c.batchSize)
	ok := make([]*kgo.Record, 0, c.batchSize)

	flush := func() {
		if len(evs) == 0 {
			return
		}
		defer func() { evs, ok = evs[:0], ok[:0] }()

		wctx, cancel := c.bounded(ctx)
		defer cancel()
		if err := c.sink.InsertMany(wctx, evs); err != nil {
			c.checkpoint.Fail(ok...)
			for _, rec := range ok {
				report(Outcome{Kind: KindSinkFailed, Err: err}, rec)
			}
			return
		}

		ready, held := c.checkpoint.Split(ok)
		for _, rec := range held {
			report(Outcome{Kind: KindHeld}, rec)
		}
		if len(ready) == 0 {
			return
		}
		out := c.commit(wctx, ready...)
		for _, rec := range ready {
			report(out, rec)
		}
	}

	for _, rec := range recs {
		ev, err := decode(rec)
		if err != nil {
			report(Outcome{Kind: KindSkipped, Err: err}, rec)
			continue
		}
		evs = append(evs, ev)
		ok = append(ok, rec)
		if len(evs) >= c.batchSize {
			flush()
		}
	}
	flush()
}

func (c *Consumer) commit(ctx context.Context, recs ...*kgo.Record) Outcome {
	if err := c.client.CommitRecords(ctx, recs...); err != nil {
		return Outcome{Kind: KindCommitFailed, Err: fmt.Errorf("commit: %w", err)}
	}
	return Outcome{Kind: KindCommitted}
}

func decode(rec *kgo.Record) (event.TrackEvent, error) {
	return event.Decode(rec.Key, rec.Value, event.Position{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Timestamp: rec.Timestamp,
	})
}

func report(out Outcome, rec *kgo.Record) {
	l := logging.For("consumer").With("topic", rec.Topic, "partition", rec.Partition, "offset", rec.Offset)
	switch out.Kind {
	case KindCommitted:
		telemetry.Commits.Inc()
		l.Info("message stored and committed", "key", string(rec.Key))
	case KindHeld:
		telemetry.CommitsHeld.Inc()
		l.Warn("message stored; commit held behind an earlier failed write", "key", string(rec.Key))
	case KindSkipped:
		telemetry.Skipped.Inc()
		l.Warn("skipping malformed message", "err", out.Err)
	case KindSinkFailed:
		telemetry.SinkFailures.Inc()
		l.Error("store write failed; offset not committed", "err", out.Err)
	case KindCommitFailed:
		telemetry.CommitFailures.Inc()
		l.Error("commit error", "err", out.Err)
	}
}
