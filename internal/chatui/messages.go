package chatui

// fragmentMsg carries one streamed text increment. Gen identifies the request
// so fragments from an abandoned stream can be discarded.
type fragmentMsg struct {
	Text string
	Gen  uint64
}

// streamDoneMsg signals that the stream goroutine finished. Err is nil on a
// complete answer.
type streamDoneMsg struct {
	Err error
	Gen uint64
}
