// Package event defines the record that travels from the publisher through
// the broker into the store.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformed marks payloads that cannot become a TrackEvent.
var ErrMalformed = errors.New("malformed track event")

type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Album struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Track is the decoded view of an event payload. The payload itself is
// stored verbatim, so fields not listed here survive the relay.
type Track struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Artists    []Artist `json:"artists"`
	Album      Album    `json:"album"`
	DurationMS int64    `json:"duration_ms"`
	URI        string   `json:"uri,omitempty"`
	Popularity int      `json:"popularity,omitempty"`
	Explicit   bool     `json:"explicit,omitempty"`
}

// Position is where the broker placed an event. Zero for events that have
// not been published yet.
type Position struct {
	Topic     string
	Partition int32
	Offset    int64
	Timestamp time.Time
}

type TrackEvent struct {
	Key     string
	Payload json.RawMessage
	Track   Track
	Pos     Position
}

// New builds an event keyed by the track id found in payload.
func New(payload []byte) (TrackEvent, error) {
	var tr Track
	if err := json.Unmarshal(payload, &tr); err != nil {
		return TrackEvent{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if tr.ID == "" {
		return TrackEvent{}, fmt.Errorf("%w: missing track id", ErrMalformed)
	}
	return TrackEvent{
		Key:     tr.ID,
		Payload: append(json.RawMessage(nil), payload...),
		Track:   tr,
	}, nil
}

// Decode rebuilds an event from a consumed message. A key that disagrees with
// the payload's track id is rejected since routing depends on it.
func Decode(key, value []byte, pos Position) (TrackEvent, error) {
	ev, err := New(value)
	if err != nil {
		return TrackEvent{}, err
	}
	if len(key) > 0 && string(key) != ev.Key {
		return TrackEvent{}, fmt.Errorf("%w: key %q does not match track id %q", ErrMalformed, key, ev.Key)
	}
	ev.Pos = pos
	return ev, nil
}
