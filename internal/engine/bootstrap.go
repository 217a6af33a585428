package engine

import (
	"context"
	"fmt"
	"time"

	"playrelay/internal/config"
	"playrelay/internal/logging"
	"playrelay/internal/pipeline"
	"playrelay/internal/telemetry"
	"playrelay/internal/transport"
	"playrelay/sink"
	"playrelay/sink/kafka"
	srckafka "playrelay/source/kafka"
	"playrelay/source/playback"
)

const (
	ProducerService = "playrelay.producer"
	ConsumerService = "playrelay.consumer"
)

// Bootstrap starts the metrics endpoint and the health service.
func Bootstrap(ctx context.Context, cfg config.Config, service string) (*Engine, error) {
	e := &Engine{}
	if cfg.Telemetry.HealthAddr != "" {
		srv, err := transport.StartServer(cfg.Telemetry.HealthAddr, service)
		if err != nil {
			return nil, fmt.Errorf("transport: %w", err)
		}
		e.transport = srv
	}
	telemetry.Expose(ctx, cfg.Telemetry.MetricsAddr)
	return e, nil
}

// RunProducer polls the session API and publishes until a fatal error or
// ctx is cancelled.
func RunProducer(ctx context.Context, cfg config.Config) error {
	if err := cfg.ValidateProducer(); err != nil {
		return err
	}
	tok, err := playback.LoadToken(cfg.Spotify.CredentialsPath)
	if err != nil {
		return fmt.Errorf("%w (complete the login flow first)", err)
	}
	session := playback.NewSpotifyClient(cfg.Spotify.BaseURL, cfg.Spotify.Market, tok, cfg.Spotify.Timeout)
	if cfg.Spotify.ClientID != "" {
		session.WithRefresh(playback.NewRefresher(cfg.Spotify.TokenURL, cfg.Spotify.ClientID, cfg.Spotify.CredentialsPath, cfg.Spotify.Timeout))
	} else {
		logging.L().Warn("spotify.client_id not set; the stored token will not be refreshed")
	}

	user, err := session.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("current user: %w", err)
	}
	logging.L().Info("auditing user", "name", user.DisplayName, "id", user.ID)

	pub, err := kafka.Dial(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := pub.Close(); err != nil {
			logging.L().Error("producer close", "err", err)
		}
	}()

	e, err := Bootstrap(ctx, cfg, ProducerService)
	if err != nil {
		return err
	}
	return e.Run(ctx, pipeline.NewProducer(session, pub).Run)
}

// RunConsumer stores relayed events until ctx is cancelled.
func RunConsumer(ctx context.Context, cfg config.Config) error {
	if err := cfg.ValidateConsumer(); err != nil {
		return err
	}
	st, err := sink.NewAdapter(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("sink: %w", err)
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := st.Close(cctx); err != nil {
			logging.L().Error("sink close", "err", err)
		}
	}()

	cp := srckafka.NewCheckpoint()
	cl, err := srckafka.NewClient(cfg, srckafka.Observers{srckafka.NewAssignment(), cp})
	if err != nil {
		return err
	}

	e, err := Bootstrap(ctx, cfg, ConsumerService)
	if err != nil {
		cl.Close()
		return err
	}
	c := pipeline.NewConsumer(cl, st, cp, cfg.Consumer)
	return e.Run(ctx, c.Run)
}
