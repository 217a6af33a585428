// Package postgres stores track events as JSONB rows.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"playrelay/internal/config"
	"playrelay/internal/event"
	"playrelay/internal/logging"
	"playrelay/sink"
)

type Driver struct {
	db    *sql.DB
	table string
}

// Open connects and makes sure the table exists.
func Open(ctx context.Context, cfg config.StoreCfg) (*Driver, error) {
	db, err := sql.Open("postgres", cfg.URI)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	d := New(db, cfg.Collection)
	if err := d.InitSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return d, nil
}

// New wraps an existing connection pool.
func New(db *sql.DB, table string) *Driver {
	return &Driver{db: db, table: table}
}

// InitSchema creates the table if it doesn't exist. There is deliberately no
// unique index: redelivered events are stored again.
func (d *Driver) InitSchema(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id BIGSERIAL PRIMARY KEY,
		track_id VARCHAR(255) NOT NULL,
		document JSONB NOT NULL,
		topic VARCHAR(255),
		kafka_partition INTEGER,
		kafka_offset BIGINT,
		inserted_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS %s ON %s(track_id);
	`, pq.QuoteIdentifier(d.table),
		pq.QuoteIdentifier("idx_"+d.table+"_track_id"), pq.QuoteIdentifier(d.table)))
	return err
}

func (d *Driver) insertSQL() string {
	return fmt.Sprintf(`INSERT INTO %s (track_id, document, topic, kafka_partition, kafka_offset)
		VALUES ($1, $2, $3, $4, $5)`, pq.QuoteIdentifier(d.table))
}

func (d *Driver) InsertOne(ctx context.Context, ev event.TrackEvent) error {
	if _, err := d.db.ExecContext(ctx, d.insertSQL(), args(ev)...); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	logging.For("postgres-sink").Debug("inserted 1 document", "track", ev.Key)
	return nil
}

// InsertMany writes all events in one transaction.
func (d *Driver) InsertMany(ctx context.Context, evs []event.TrackEvent) error {
	if len(evs) == 0 {
		return nil
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, d.insertSQL())
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, ev := range evs {
		if _, err := stmt.ExecContext(ctx, args(ev)...); err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	logging.For("postgres-sink").Debug("inserted documents", "count", len(evs))
	return nil
}

func (d *Driver) Close(context.Context) error {
	return d.db.Close()
}

func args(ev event.TrackEvent) []any {
	var topic sql.NullString
	var part sql.NullInt32
	var off sql.NullInt64
	if ev.Pos.Topic != "" {
		topic = sql.NullString{String: ev.Pos.Topic, Valid: true}
		part = sql.NullInt32{Int32: ev.Pos.Partition, Valid: true}
		off = sql.NullInt64{Int64: ev.Pos.Offset, Valid: true}
	}
	return []any{ev.Key, string(ev.Payload), topic, part, off}
}

func init() {
	sink.Register("postgres", func(ctx context.Context, cfg config.StoreCfg) (sink.Adapter, error) {
		return Open(ctx, cfg)
	})
}
