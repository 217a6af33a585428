package kafka

import (
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"

	"playrelay/internal/logging"
)

type partitionKey struct {
	topic     string
	partition int32
}

// Checkpoint decides which stored records may have their offsets committed.
//
// A commit for offset M moves the group's position of the whole partition to
// M+1, so once the write at offset N failed no offset above N may be
// committed: the partition is pinned at N and later records are stored but
// held back. A pin lasts until the partition changes hands. The next owner,
// or this member after a restart, resumes at N and redelivers it.
type Checkpoint struct {
	mu     sync.Mutex
	pinned map[partitionKey]int64 // lowest failed offset
}

func NewCheckpoint() *Checkpoint {
	return &Checkpoint{pinned: map[partitionKey]int64{}}
}

// Fail pins the record's partition at its offset unless an earlier offset is
// already pinned.
func (c *Checkpoint) Fail(recs ...*kgo.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range recs {
		k := partitionKey{r.Topic, r.Partition}
		if cur, ok := c.pinned[k]; ok && cur <= r.Offset {
			continue
		}
		c.pinned[k] = r.Offset
		logging.For("checkpoint").Warn("partition pinned below failed write",
			"topic", r.Topic, "partition", r.Partition, "offset", r.Offset)
	}
}

// Split separates records that can be committed from those held behind a
// pinned offset. Order is preserved in both halves.
func (c *Checkpoint) Split(recs []*kgo.Record) (ready, held []*kgo.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range recs {
		if pin, ok := c.pinned[partitionKey{r.Topic, r.Partition}]; ok && r.Offset >= pin {
			held = append(held, r)
			continue
		}
		ready = append(ready, r)
	}
	return ready, held
}

// Pinned reports the lowest failed offset of a partition, if any.
func (c *Checkpoint) Pinned(topic string, partition int32) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	off, ok := c.pinned[partitionKey{topic, partition}]
	return off, ok
}

func (c *Checkpoint) release(parts map[string][]int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for topic, ps := range parts {
		for _, p := range ps {
			k := partitionKey{topic, p}
			if off, ok := c.pinned[k]; ok {
				delete(c.pinned, k)
				logging.For("checkpoint").Info("pin released", "topic", topic, "partition", p, "offset", off)
			}
		}
	}
}

// A freshly assigned partition starts from the group's committed position,
// which is at or below any old pin.
func (c *Checkpoint) OnPartitionsAssigned(assigned map[string][]int32) { c.release(assigned) }
func (c *Checkpoint) OnPartitionsRevoked(revoked map[string][]int32)   { c.release(revoked) }
func (c *Checkpoint) OnPartitionsLost(lost map[string][]int32)         { c.release(lost) }
