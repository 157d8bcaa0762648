package process

// EventKind tags what a reader or watcher observed.
type EventKind int

const (
	Stdout EventKind = iota
	Stderr
	StdoutChunk
	StderrChunk
	Exit
)

func (k EventKind) String() string {
	switch k {
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	case StdoutChunk:
		return "stdout-chunk"
	case StderrChunk:
		return "stderr-chunk"
	case Exit:
		return "exit"
	default:
		return "unknown"
	}
}

// IsChunk reports whether the event carries raw stream bytes.
func (k EventKind) IsChunk() bool { return k == StdoutChunk || k == StderrChunk }

// Event is one observation about a managed process.
// Payload holds line text (including the trailing newline when one was read)
// or the exit diagnostic; Chunk holds the exact bytes for chunk kinds.
// Instance numbers the run of Process that produced the event: 1 for the
// first spawn, plus one per restart.
type Event struct {
	Process  string
	Instance int
	Kind     EventKind
	Payload  string
	Chunk    []byte
}
