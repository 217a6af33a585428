package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"playrelay/internal/event"
	"playrelay/internal/logging"
	"playrelay/internal/telemetry"
	"playrelay/sink/kafka"
	"playrelay/source/playback"
)

// Producer polls the session API and publishes what is playing.
type Producer struct {
	session playback.Session
	pub     kafka.Publisher
	sleep   func(context.Context, time.Duration) error
}

func NewProducer(s playback.Session, p kafka.Publisher) *Producer {
	return &Producer{session: s, pub: p, sleep: sleepCtx}
}

// Run loops until the session API fails, the poll delay cannot be computed,
// or ctx is cancelled. Only the first two are returned as errors.
func (p *Producer) Run(ctx context.Context) error {
	for {
		delay, out := p.iterate(ctx)
		switch out.Kind {
		case KindFatal:
			if ctx.Err() != nil {
				return nil
			}
			return out.Err
		case KindDropped:
			logging.For("producer").Error("publish failed; event dropped", "err", out.Err)
		}

		logging.For("producer").Debug("next poll", "in", delay)
		if err := p.sleep(ctx, delay); err != nil {
			return nil
		}
	}
}

func (p *Producer) iterate(ctx context.Context) (time.Duration, Outcome) {
	snap, err := p.session.CurrentlyPlaying(ctx)
	if err != nil {
		if errors.Is(err, playback.ErrNoSession) {
			telemetry.Polls.WithLabelValues("no_session").Inc()
			return 0, Outcome{Kind: KindFatal, Err: fmt.Errorf("cannot retrieve currently playing, perhaps it has been a while since a track was played: %w", err)}
		}
		telemetry.Polls.WithLabelValues("error").Inc()
		return 0, Outcome{Kind: KindFatal, Err: fmt.Errorf("fetch currently playing: %w", err)}
	}
	telemetry.Polls.WithLabelValues("ok").Inc()
	logging.For("producer").Info("currently playing received", "track", snap.TrackID, "progress_ms", snap.ProgressMS, "duration_ms", snap.DurationMS, "playing", snap.Playing)

	ev, err := event.New(snap.Metadata)
	if err != nil {
		return 0, Outcome{Kind: KindFatal, Err: fmt.Errorf("build event: %w", err)}
	}

	out := p.publish(ev)

	delay, err := playback.NextDelay(snap)
	if err != nil {
		return 0, Outcome{Kind: KindFatal, Err: err}
	}
	return delay, out
}

// publish never retries; a failed event is gone.
func (p *Producer) publish(ev event.TrackEvent) Outcome {
	pos, err := p.pub.Publish(ev)
	if err != nil {
		telemetry.PublishFailures.Inc()
		return Outcome{Kind: KindDropped, Err: fmt.Errorf("publish %s: %w", ev.Key, err)}
	}
	telemetry.Published.Inc()
	logging.For("producer").Info("message delivered", "topic", pos.Topic, "partition", pos.Partition, "offset", pos.Offset, "track", ev.Key)
	return Outcome{Kind: KindPublished}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
