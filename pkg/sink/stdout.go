package sink

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/incidentctl/controlplane/pkg/model"
)

// StdoutTransport writes the rendered payload to an io.Writer, one line per
// delivery. Repeated writes of the same line are harmless, so this
// transport is idempotent (spec §4.8 "stdout" is named explicitly as an
// idempotent transport).
type StdoutTransport struct {
	mu sync.Mutex
	w  io.Writer
}

// NewStdoutTransport builds a StdoutTransport writing to w.
func NewStdoutTransport(w io.Writer) *StdoutTransport {
	return &StdoutTransport{w: w}
}

func (t *StdoutTransport) Idempotent() bool { return true }

func (t *StdoutTransport) Deliver(_ context.Context, s *model.Sink, payload string, run *model.WorkflowRun) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintf(t.w, "[sink:%s/%s] run=%s %s\n", s.Namespace, s.Name, run.RunID, payload)
	return err
}
