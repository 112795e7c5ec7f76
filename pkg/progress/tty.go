package progress

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	barRefreshEvery  = 100
	descRefreshEvery = 5000
)

var (
	barStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("36"))
	descStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// TTY renders enumeration progress on a terminal: a compact counter line
// refreshed every 100 items and a category description refreshed every
// 5000. Not safe for concurrent use; the manager calls it from its routing
// loop only.
type TTY struct {
	w     io.Writer
	count int64
	desc  string
}

// NewTTY creates a terminal observer writing to w
func NewTTY(w io.Writer) *TTY {
	return &TTY{w: w}
}

func (t *TTY) Started(adID int64, domainName string) {
	fmt.Fprintf(t.w, "%s\n", descStyle.Render(fmt.Sprintf("enumerating %s (ad_id=%d)", domainName, adID)))
}

func (t *TTY) Item(snap Snapshot) {
	t.count++
	if t.count%descRefreshEvery == 0 {
		t.desc = fmt.Sprintf("FINISHED: %s RUNNING: %s",
			strings.Join(snap.Finished, ","), strings.Join(snap.Running, ","))
		fmt.Fprintf(t.w, "\n%s\n", descStyle.Render(t.desc))
	}
	if t.count%barRefreshEvery == 0 {
		fmt.Fprintf(t.w, "\r%s", barStyle.Render(fmt.Sprintf("objects: %d", t.count)))
	}
}

func (t *TTY) Finished() {
	fmt.Fprintf(t.w, "\r%s\n", barStyle.Render(fmt.Sprintf("done, %d objects", t.count)))
}

func (t *TTY) Aborted() {
	fmt.Fprintf(t.w, "\r%s\n", descStyle.Render(fmt.Sprintf("aborted after %d objects", t.count)))
}
