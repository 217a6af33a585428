package playback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoSession is returned when the user has nothing playing.
	ErrNoSession = errors.New("playback: no active session")
	// ErrMissingProgress is returned when the session reports no progress.
	ErrMissingProgress = errors.New("playback: progress missing")
	// ErrNegativeDelay is returned when progress runs past the track duration.
	ErrNegativeDelay = errors.New("playback: negative poll delay")
)

// Snapshot is one observation of the player. It lives for a single poll.
type Snapshot struct {
	TrackID     string
	Metadata    json.RawMessage // the track object, verbatim
	ProgressMS  int64
	HasProgress bool
	DurationMS  int64
	Playing     bool
	At          time.Time
}

// Session is the external playback API the poller reads from.
type Session interface {
	CurrentlyPlaying(ctx context.Context) (Snapshot, error)
}

// NextDelay paces the next poll to the end of the current track.
func NextDelay(s Snapshot) (time.Duration, error) {
	if !s.HasProgress {
		return 0, ErrMissingProgress
	}
	left := s.DurationMS - s.ProgressMS
	if left < 0 {
		return 0, fmt.Errorf("%w: duration %dms, progress %dms", ErrNegativeDelay, s.DurationMS, s.ProgressMS)
	}
	return time.Duration(left) * time.Millisecond, nil
}
