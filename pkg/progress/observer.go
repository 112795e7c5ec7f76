package progress

import "strconv"

// MsgType is the lifecycle marker carried by emitted progress messages
type MsgType string

const (
	MsgStarted  MsgType = "STARTED"
	MsgProgress MsgType = "PROGRESS"
	MsgFinished MsgType = "FINISHED"
	MsgAborted  MsgType = "ABORTED"
)

// Message is the wire shape of one progress emission
type Message struct {
	Type          string   `json:"type"`
	MsgType       MsgType  `json:"msg_type"`
	ADID          int64    `json:"adid"`
	DomainName    string   `json:"domain_name"`
	Finished      []string `json:"finished,omitempty"`
	Running       []string `json:"running,omitempty"`
	TotalFinished int64    `json:"total_finished,omitempty"`
	Speed         string   `json:"speed,omitempty"`
}

// Snapshot is the per-item state the manager reports: which categories
// have drained and which are in flight
type Snapshot struct {
	Finished []string
	Running  []string
}

// Observer receives enumeration lifecycle events and one Item call per
// stored object. Implementations throttle on their own; callers never
// batch.
type Observer interface {
	Started(adID int64, domainName string)
	Item(snap Snapshot)
	Finished()
	Aborted()
}

// Nop is an Observer that discards everything
type Nop struct{}

func (Nop) Started(int64, string) {}
func (Nop) Item(Snapshot)         {}
func (Nop) Finished()             {}
func (Nop) Aborted()              {}

// formatSpeed renders items/sec as a bare float string with no forced
// precision or exponent
func formatSpeed(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
