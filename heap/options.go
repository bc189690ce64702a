package heap

import (
	"io"
	"os"

	"github.com/heapkit/heapkit/heap/taskreg"
)

// DefaultMaxTaskNameLen bounds task names in diagnostic output when the
// caller does not configure a limit.
const DefaultMaxTaskNameLen = 31

// Options is the build-time configuration of the heap under inspection,
// resolved once at construction. The zero value is usable: base node
// layout, no ownership diagnostics, never in interrupt context, output to
// stderr.
type Options struct {
	// ExtendedDiagnostics selects the extended node header carrying the
	// owner task id and allocation PC, and enables their reporting.
	ExtendedDiagnostics bool

	// MaxTaskNameLen bounds task names in diagnostic output. Zero selects
	// DefaultMaxTaskNameLen; negative means unbounded.
	MaxTaskNameLen int

	// Registry resolves owner task ids to names. Nil disables name
	// resolution; ids are still printed.
	Registry taskreg.Registry

	// InInterruptContext answers whether the current execution is inside
	// an interrupt handler, deciding whether region locks are taken. Nil
	// means never.
	InInterruptContext func() bool

	// Output receives diagnostic text. Nil selects os.Stderr.
	Output io.Writer
}

func (o *Options) resolve() {
	if o.MaxTaskNameLen == 0 {
		o.MaxTaskNameLen = DefaultMaxTaskNameLen
	}
	if o.Output == nil {
		o.Output = os.Stderr
	}
}

// InInterrupt evaluates the configured interrupt-context predicate.
func (h *Heap) InInterrupt() bool {
	if h.opts.InInterruptContext == nil {
		return false
	}
	return h.opts.InInterruptContext()
}

// Output returns the configured diagnostic sink.
func (h *Heap) Output() io.Writer {
	return h.opts.Output
}

// Registry returns the configured task name registry, which may be nil.
func (h *Heap) Registry() taskreg.Registry {
	return h.opts.Registry
}

// MaxTaskNameLen returns the configured display-name bound.
func (h *Heap) MaxTaskNameLen() int {
	return h.opts.MaxTaskNameLen
}

// ExtendedDiagnostics reports whether nodes carry ownership headers.
func (h *Heap) ExtendedDiagnostics() bool {
	return h.opts.ExtendedDiagnostics
}
