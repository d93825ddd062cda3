// Package trace implements the pipeline's cycle-tagged execution trace
// (spec §6): a plain, line-oriented writer in the same vein as the
// teacher's -v/verbose fmt.Printf diagnostics (cmd/m2sim/main.go), not a
// structured logger — the trace format itself is the external contract
// consumers parse, so it is written by hand rather than through a
// key/value logging library.
package trace

import (
	"bufio"
	"fmt"
	"io"

	"github.com/sarchlab/rv32pipe/pipeline"
)

// Writer formats pipeline.Tracer events as "Cycle @<N>.00: [<Stage>]
// <message>" lines (spec §6).
type Writer struct {
	out *bufio.Writer
}

var _ pipeline.Tracer = (*Writer)(nil)

// NewWriter creates a trace Writer over w. Callers should Flush once the
// run completes.
func NewWriter(w io.Writer) *Writer {
	return &Writer{out: bufio.NewWriter(w)}
}

// Trace writes one formatted trace line.
func (w *Writer) Trace(cycle uint64, stage, message string) {
	fmt.Fprintf(w.out, "Cycle @%d.00: [%s] %s\n", cycle, stage, message)
}

// Flush flushes any buffered trace output.
func (w *Writer) Flush() error {
	return w.out.Flush()
}
