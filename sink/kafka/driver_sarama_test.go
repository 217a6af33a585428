package kafka

import (
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"playrelay/internal/config"
	"playrelay/internal/event"
)

func testConfig() config.Config {
	return config.Config{
		Kafka:    config.KafkaCfg{Topic: "spotify-records", ClientID: "test", Version: "2.8.0"},
		Producer: config.ProducerCfg{Linger: 300 * time.Millisecond},
	}
}

func TestNewConfig_LeaderAcksAndLinger(t *testing.T) {
	sc, err := NewConfig(testConfig())
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if sc.Producer.RequiredAcks != sarama.WaitForLocal {
		t.Fatalf("want leader-only acks, got %v", sc.Producer.RequiredAcks)
	}
	if sc.Producer.Flush.Frequency != 300*time.Millisecond {
		t.Fatalf("want 300ms linger, got %s", sc.Producer.Flush.Frequency)
	}
	if !sc.Producer.Return.Successes {
		t.Fatal("sync producer needs Return.Successes")
	}
}

func TestNewConfig_BadVersion(t *testing.T) {
	cfg := testConfig()
	cfg.Kafka.Version = "banana"
	if _, err := NewConfig(cfg); err == nil {
		t.Fatal("expected version parse error")
	}
}

func TestHashPartitioner_KeyDecidesPartition(t *testing.T) {
	sc, err := NewConfig(testConfig())
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	p := sc.Producer.Partitioner("spotify-records")
	route := func(key, value string) int32 {
		part, err := p.Partition(&sarama.ProducerMessage{Key: sarama.StringEncoder(key), Value: sarama.StringEncoder(value)}, 12)
		if err != nil {
			t.Fatalf("Partition: %v", err)
		}
		return part
	}
	for _, key := range []string{"4uLU6hMCjMI75M1A2tKUQC", "0VjIjW4GlUZAMYd2vXMi3b", "7qiZfU4dY1lWllzX7mPBI3"} {
		first := route(key, `{"progress":1}`)
		if again := route(key, `{"progress":2,"other":"metadata"}`); again != first {
			t.Fatalf("key %s routed to %d then %d", key, first, again)
		}
	}
}

func TestPublish_KeyedByTrack(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "spotify-records" {
			return errors.New("wrong topic " + msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "t1" {
			return errors.New("wrong key " + string(key))
		}
		return nil
	})

	pub := NewPublisher(sp, "spotify-records")
	ev := event.TrackEvent{Key: "t1", Payload: []byte(`{"id":"t1"}`)}
	pos, err := pub.Publish(ev)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if pos.Topic != "spotify-records" {
		t.Fatalf("unexpected position %+v", pos)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPublish_Failure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)

	pub := NewPublisher(sp, "spotify-records")
	if _, err := pub.Publish(event.TrackEvent{Key: "t1", Payload: []byte(`{}`)}); !errors.Is(err, sarama.ErrNotLeaderForPartition) {
		t.Fatalf("want ErrNotLeaderForPartition, got %v", err)
	}
	_ = pub.Close()
}
