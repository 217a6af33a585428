// Package mongo appends track documents to a MongoDB collection.
package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"playrelay/internal/config"
	"playrelay/internal/event"
	"playrelay/internal/logging"
	"playrelay/sink"
)

// collection is the part of *mongo.Collection the driver uses.
type collection interface {
	InsertOne(ctx context.Context, doc interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	InsertMany(ctx context.Context, docs []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error)
}

type Driver struct {
	client *mongo.Client
	coll   collection
}

func Open(ctx context.Context, cfg config.StoreCfg) (*Driver, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo-sink: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo-sink: ping: %w", err)
	}
	return &Driver{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

func (d *Driver) InsertOne(ctx context.Context, ev event.TrackEvent) error {
	doc, err := toDocument(ev)
	if err != nil {
		return err
	}
	if _, err := d.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("mongo-sink: insert: %w", err)
	}
	logging.For("mongo-sink").Debug("inserted 1 document", "track", ev.Key)
	return nil
}

func (d *Driver) InsertMany(ctx context.Context, evs []event.TrackEvent) error {
	if len(evs) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(evs))
	for _, ev := range evs {
		doc, err := toDocument(ev)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}
	res, err := d.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	if err != nil {
		return fmt.Errorf("mongo-sink: insert many: %w", err)
	}
	logging.For("mongo-sink").Debug("inserted documents", "count", len(res.InsertedIDs))
	return nil
}

func (d *Driver) Close(ctx context.Context) error {
	if d.client == nil {
		return nil
	}
	return d.client.Disconnect(ctx)
}

// toDocument turns the JSON payload into a BSON document. The driver adds
// _id on insert, so a redelivered event becomes a second document.
func toDocument(ev event.TrackEvent) (bson.D, error) {
	var doc bson.D
	if err := bson.UnmarshalExtJSON(ev.Payload, false, &doc); err != nil {
		return nil, fmt.Errorf("mongo-sink: payload for %s: %w", ev.Key, err)
	}
	return doc, nil
}

func init() {
	sink.Register("mongo", func(ctx context.Context, cfg config.StoreCfg) (sink.Adapter, error) {
		return Open(ctx, cfg)
	})
}
