package runner

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/acarl005/stripansi"
)

// OutputAggregator collects per-child output under each child's label,
// preserving per-child emission order. With live streaming enabled, lines
// bypass buffering for display and are written as produced; otherwise buffers
// are flushed after all children finish, in child-registration order, each
// child's lines kept contiguous. Lines are always retained on the handle so
// the per-label output stays available to the result collector.
type OutputAggregator struct {
	mu      sync.Mutex
	live    bool
	w       io.Writer
	handles []*ChildHandle
}

// NewOutputAggregator creates an aggregator writing to w.
func NewOutputAggregator(w io.Writer, live bool) *OutputAggregator {
	if w == nil {
		w = os.Stdout
	}
	return &OutputAggregator{w: w, live: live}
}

// Register adds a child to the aggregator; flush order is registration order.
func (a *OutputAggregator) Register(h *ChildHandle) {
	a.mu.Lock()
	a.handles = append(a.handles, h)
	a.mu.Unlock()
}

// Append records one output line for a child. In live mode the line is also
// written immediately, so cross-child order reduces to arrival order.
func (a *OutputAggregator) Append(h *ChildHandle, line string) {
	h.appendLine(line)
	if !a.live {
		return
	}
	a.mu.Lock()
	fmt.Fprintf(a.w, "%s %s\n", h.Colors.Sprintf(" %s ", h.Label), line)
	a.mu.Unlock()
}

// Flush writes every buffered child's output. Live mode already wrote
// everything through, so this is a no-op there.
func (a *OutputAggregator) Flush() {
	if a.live {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, h := range a.handles {
		fmt.Fprintf(a.w, "\n%s\n", h.Colors.Sprintf("  %s  ", h.Label))
		for _, line := range h.Lines() {
			fmt.Fprintln(a.w, line)
		}
	}
}

// WriteLogFiles persists each child's buffered lines to
// <dir>/<sanitized label>.log with ANSI escapes stripped.
func (a *OutputAggregator) WriteLogFiles(dir string) error {
	a.mu.Lock()
	handles := make([]*ChildHandle, len(a.handles))
	copy(handles, a.handles)
	a.mu.Unlock()

	if len(handles) == 0 {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	for _, h := range handles {
		path := filepath.Join(dir, sanitizeLabel(h.Label)+".log")
		var sb strings.Builder
		for _, line := range h.Lines() {
			sb.WriteString(stripansi.Strip(line))
			sb.WriteByte('\n')
		}
		if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
			return fmt.Errorf("failed to write log for %s: %w", h.Label, err)
		}
	}
	return nil
}

func sanitizeLabel(label string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", " ", "_", ":", "_")
	return replacer.Replace(label)
}
