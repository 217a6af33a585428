package pipeline

// Kind tells a loop what to do after one unit of work.
type Kind int

const (
	KindPublished    Kind = iota // producer: leader acknowledged
	KindCommitted                // consumer: stored, then offset committed
	KindFatal                    // producer: stop the process
	KindDropped                  // producer: publish failed, event lost
	KindSkipped                  // consumer: malformed payload, not stored
	KindSinkFailed               // consumer: write failed, offset not committed
	KindCommitFailed             // consumer: stored, commit rejected; will be redelivered
	KindHeld                     // consumer: stored, commit held behind an earlier failed write
)

func (k Kind) String() string {
	switch k {
	case KindPublished:
		return "published"
	case KindCommitted:
		return "committed"
	case KindFatal:
		return "fatal"
	case KindDropped:
		return "dropped"
	case KindSkipped:
		return "skipped"
	case KindSinkFailed:
		return "sink_failed"
	case KindCommitFailed:
		return "commit_failed"
	case KindHeld:
		return "held"
	default:
		return "unknown"
	}
}

type Outcome struct {
	Kind Kind
	Err  error
}
