package kafka

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/twmb/franz-go/pkg/kfake"
	"github.com/twmb/franz-go/pkg/kgo"

	"playrelay/internal/config"
)

// member polls like the consume loop does: one pull, then rebalances are
// allowed again.
func member(ctx context.Context, wg *sync.WaitGroup, cl *kgo.Client) {
	defer wg.Done()
	defer cl.CloseAllowingRebalance()
	for ctx.Err() == nil {
		pctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		cl.PollFetches(pctx)
		cancel()
		cl.AllowRebalance()
	}
}

// ownership reports how many members own each partition.
func ownership(members ...*Assignment) map[int32]int {
	owners := map[int32]int{}
	for _, m := range members {
		for _, p := range m.Partitions()[topic] {
			owners[p]++
		}
	}
	return owners
}

func TestGroup_CooperativeMembersPartitionTheTopic(t *testing.T) {
	if testing.Short() {
		t.Skip("joins a consumer group on an in-process cluster")
	}
	const partitions = 6

	cluster, err := kfake.NewCluster(kfake.NumBrokers(1), kfake.SeedTopics(partitions, topic))
	if err != nil {
		t.Fatalf("cluster: %v", err)
	}
	defer cluster.Close()

	cfg := config.Config{Kafka: config.KafkaCfg{
		Brokers:     cluster.ListenAddrs(),
		Topic:       topic,
		GroupID:     "relay-group",
		OffsetReset: config.ResetEarliest,
		ClientID:    "relay-test",
	}}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	join := func() *Assignment {
		a := NewAssignment()
		cl, err := NewClient(cfg, a)
		if err != nil {
			t.Fatalf("client: %v", err)
		}
		wg.Add(1)
		go member(ctx, &wg, cl)
		return a
	}

	waitFor := func(what string, cond func(map[int32]int) bool, members ...*Assignment) {
		t.Helper()
		deadline := time.Now().Add(30 * time.Second)
		for {
			owners := ownership(members...)
			if cond(owners) {
				return
			}
			if time.Now().After(deadline) {
				t.Fatalf("%s: ownership %v", what, owners)
			}
			time.Sleep(20 * time.Millisecond)
		}
	}
	covered := func(owners map[int32]int) bool { return len(owners) == partitions }

	a := join()
	waitFor("first member owns the topic", covered, a)

	b := join()
	waitFor("second member receives partitions", func(owners map[int32]int) bool {
		return covered(owners) && len(a.Partitions()[topic]) > 0 && len(b.Partitions()[topic]) > 0
	}, a, b)

	for p := int32(0); p < partitions; p++ {
		if n := ownership(a, b)[p]; n != 1 {
			t.Fatalf("partition %d owned by %d members after the rebalance settled", p, n)
		}
	}
}
