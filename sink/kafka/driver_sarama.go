// Package kafka publishes track events with a sarama sync producer.
package kafka

import (
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"playrelay/internal/config"
	"playrelay/internal/event"
)

// Publisher hands one event to the broker and reports where it landed.
type Publisher interface {
	Publish(ev event.TrackEvent) (event.Position, error)
	Close() error
}

type driver struct {
	topic string
	p     sarama.SyncProducer
}

// NewConfig builds the producer settings: key-hash partitioning, leader-only
// acks and a linger window of cfg.Producer.Linger.
func NewConfig(cfg config.Config) (*sarama.Config, error) {
	ver, err := sarama.ParseKafkaVersion(cfg.Kafka.Version)
	if err != nil {
		return nil, err
	}
	sc := sarama.NewConfig()
	sc.Version = ver
	sc.ClientID = cfg.Kafka.ClientID
	sc.Producer.RequiredAcks = sarama.WaitForLocal
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	sc.Producer.Flush.Frequency = cfg.Producer.Linger
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Timeout = 10 * time.Second
	return sc, sc.Validate()
}

func Dial(cfg config.Config) (Publisher, error) {
	sc, err := NewConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka-publisher: config: %w", err)
	}
	p, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("kafka-publisher: %w", err)
	}
	return NewPublisher(p, cfg.Kafka.Topic), nil
}

// NewPublisher wraps an existing producer; the caller's producer is closed
// by Close.
func NewPublisher(p sarama.SyncProducer, topic string) Publisher {
	return &driver{topic: topic, p: p}
}

// Publish blocks until the partition leader acknowledged the write.
func (d *driver) Publish(ev event.TrackEvent) (event.Position, error) {
	msg := &sarama.ProducerMessage{
		Topic: d.topic,
		Key:   sarama.StringEncoder(ev.Key),
		Value: sarama.ByteEncoder(ev.Payload),
	}
	part, off, err := d.p.SendMessage(msg)
	if err != nil {
		return event.Position{}, err
	}
	return event.Position{Topic: d.topic, Partition: part, Offset: off, Timestamp: msg.Timestamp}, nil
}

func (d *driver) Close() error {
	return d.p.Close()
}
