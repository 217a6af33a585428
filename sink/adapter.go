package sink

import (
	"context"
	"fmt"
	"sort"

	"playrelay/internal/config"
	"playrelay/internal/event"
)

// Adapter durably stores track events. A nil error is the acknowledgement
// the consumer waits for before committing offsets. Adapters do not retry.
type Adapter interface {
	InsertOne(ctx context.Context, ev event.TrackEvent) error
	InsertMany(ctx context.Context, evs []event.TrackEvent) error
	Close(ctx context.Context) error
}

/*──────── registry ───────*/

type Factory func(ctx context.Context, cfg config.StoreCfg) (Adapter, error)

var reg = map[string]Factory{}

// Register is called from each driver's init().
func Register(name string, f Factory) { reg[name] = f }

func NewAdapter(ctx context.Context, cfg config.StoreCfg) (Adapter, error) {
	if f, ok := reg[cfg.Driver]; ok {
		return f(ctx, cfg)
	}
	return nil, fmt.Errorf("unknown sink %q (registered: %v)", cfg.Driver, Drivers())
}

func Drivers() []string {
	out := make([]string, 0, len(reg))
	for name := range reg {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
