// Package processor implements the user-supplied filter/mutator chain
// applied to envelopes before transmission.
package processor

import (
	"github.com/marmos91/aimonitor-exporter/internal/logger"
	"github.com/marmos91/aimonitor-exporter/pkg/envelope"
)

// TelemetryProcessor inspects or mutates an envelope in place and reports
// whether it should be kept. Returning false drops the envelope from the
// chain's output; any other outcome (including a panic, which is
// recovered) keeps it.
type TelemetryProcessor func(*envelope.Envelope) bool

// Chain is an ordered sequence of TelemetryProcessors.
type Chain struct {
	processors []TelemetryProcessor
}

// New returns an empty processor chain.
func New() *Chain {
	return &Chain{}
}

// Add appends a processor to the chain.
func (c *Chain) Add(p TelemetryProcessor) {
	c.processors = append(c.processors, p)
}

// Clear removes all registered processors.
func (c *Chain) Clear() {
	c.processors = nil
}

// Apply runs every envelope through the chain in registration order.
// For each envelope, processors run in order; if a processor panics, the
// panic is recovered and logged at Warn, and the remaining processors
// still run on that envelope. If any processor returns false, the
// envelope is dropped. Output preserves input order minus drops.
func (c *Chain) Apply(envelopes []*envelope.Envelope) []*envelope.Envelope {
	if len(c.processors) == 0 {
		return envelopes
	}

	out := make([]*envelope.Envelope, 0, len(envelopes))
	for _, e := range envelopes {
		if c.applyOne(e) {
			out = append(out, e)
		}
	}
	return out
}

// applyOne runs all processors against a single envelope and returns
// whether it survives the chain.
func (c *Chain) applyOne(e *envelope.Envelope) bool {
	keep := true
	for _, p := range c.processors {
		if !c.invoke(p, e) {
			keep = false
		}
	}
	return keep
}

// invoke calls one processor, recovering and logging any panic. A
// panicking processor is treated as "keep" (true) — the source's
// exceptions-swallowed convention never treats a failure as an implicit
// drop.
func (c *Chain) invoke(p TelemetryProcessor, e *envelope.Envelope) (keep bool) {
	keep = true
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("processor: recovered from panic", "panic", r)
			keep = true
		}
	}()
	return p(e)
}
