package kafka

import (
	"sort"
	"sync"

	"playrelay/internal/logging"
	"playrelay/internal/telemetry"
)

// RebalanceObserver is told about incremental ownership changes. Rebalances
// are blocked while polled records are processed, so methods run only inside
// a poll or AllowRebalance, never while a record is being stored. They must
// not block.
type RebalanceObserver interface {
	OnPartitionsAssigned(assigned map[string][]int32)
	OnPartitionsRevoked(revoked map[string][]int32)
	OnPartitionsLost(lost map[string][]int32)
}

// Observers fans every callback out to each observer in order.
type Observers []RebalanceObserver

func (obs Observers) OnPartitionsAssigned(m map[string][]int32) {
	for _, o := range obs {
		o.OnPartitionsAssigned(m)
	}
}

func (obs Observers) OnPartitionsRevoked(m map[string][]int32) {
	for _, o := range obs {
		o.OnPartitionsRevoked(m)
	}
}

func (obs Observers) OnPartitionsLost(m map[string][]int32) {
	for _, o := range obs {
		o.OnPartitionsLost(m)
	}
}

// Assignment tracks the partitions this member owns. It only logs and keeps
// the set for diagnostics; consumption never seeks on assignment.
type Assignment struct {
	mu    sync.Mutex
	owned map[string]map[int32]struct{}
}

func NewAssignment() *Assignment {
	return &Assignment{owned: map[string]map[int32]struct{}{}}
}

func (a *Assignment) OnPartitionsAssigned(assigned map[string][]int32) {
	a.mu.Lock()
	for topic, parts := range assigned {
		set := a.owned[topic]
		if set == nil {
			set = map[int32]struct{}{}
			a.owned[topic] = set
		}
		for _, p := range parts {
			set[p] = struct{}{}
		}
	}
	all, n := a.snapshotLocked()
	a.mu.Unlock()

	telemetry.AssignedPartitions.Set(float64(n))
	logging.For("assignment").Info("partitions incrementally assigned", "added", sorted(assigned), "all", all)
}

func (a *Assignment) OnPartitionsRevoked(revoked map[string][]int32) {
	a.mu.Lock()
	a.removeLocked(revoked)
	remaining, n := a.snapshotLocked()
	a.mu.Unlock()

	telemetry.AssignedPartitions.Set(float64(n))
	logging.For("assignment").Info("partitions incrementally revoked", "revoked", sorted(revoked), "remaining", remaining)
}

// OnPartitionsLost fires when the member fell out of the group; whatever was
// owned is gone, not handed over.
func (a *Assignment) OnPartitionsLost(lost map[string][]int32) {
	a.mu.Lock()
	a.removeLocked(lost)
	remaining, n := a.snapshotLocked()
	a.mu.Unlock()

	telemetry.AssignedPartitions.Set(float64(n))
	logging.For("assignment").Warn("partitions were lost", "lost", sorted(lost), "remaining", remaining)
}

// Partitions returns the owned set, each topic's partitions sorted.
func (a *Assignment) Partitions() map[string][]int32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out, _ := a.snapshotLocked()
	return out
}

func (a *Assignment) removeLocked(parts map[string][]int32) {
	for topic, ps := range parts {
		set := a.owned[topic]
		for _, p := range ps {
			delete(set, p)
		}
		if len(set) == 0 {
			delete(a.owned, topic)
		}
	}
}

// must be called with a.mu held
func (a *Assignment) snapshotLocked() (map[string][]int32, int) {
	out := make(map[string][]int32, len(a.owned))
	n := 0
	for topic, set := range a.owned {
		ps := make([]int32, 0, len(set))
		for p := range set {
			ps = append(ps, p)
		}
		sort.Slice(ps, func(i, j int) bool { return ps[i] < ps[j] })
		out[topic] = ps
		n += len(ps)
	}
	return out, n
}

func sorted(m map[string][]int32) map[string][]int32 {
	out := make(map[string][]int32, len(m))
	for topic, ps := range m {
		cp := append([]int32(nil), ps...)
		sort.Slice(cp, func(i, j int) bool { return cp[i] < cp[j] })
		out[topic] = cp
	}
	return out
}
