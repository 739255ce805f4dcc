package aggregate

import "sync"

// Fault is one diagnostic record of a stage-local failure. Faults are
// append-only and surfaced verbatim to the caller; recording one never
// interrupts the pipeline.
type Fault struct {
	Step    string         `json:"step"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

// FaultSink collects fault records from concurrent stage workers.
// It implements upstream.FaultRecorder.
type FaultSink struct {
	mu     sync.Mutex
	faults []Fault
}

// NewFaultSink creates an empty sink.
func NewFaultSink() *FaultSink {
	return &FaultSink{
		// Non-nil so an empty errors list marshals as [] rather than null.
		faults: []Fault{},
	}
}

// Record appends a fault.
func (s *FaultSink) Record(step, message string, context map[string]any) {
	s.mu.Lock()
	s.faults = append(s.faults, Fault{
		Step:    step,
		Message: message,
		Context: context,
	})
	s.mu.Unlock()
}

// Faults returns a copy of the recorded faults in record order.
func (s *FaultSink) Faults() []Fault {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Fault, len(s.faults))
	copy(out, s.faults)
	return out
}

// Len returns the number of recorded faults.
func (s *FaultSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.faults)
}

// discardFaults suppresses fault records. Used for the ambiguous-creator
// group probe, where a failed lookup means "treat as user", not an error.
type discardFaults struct{}

func (discardFaults) Record(string, string, map[string]any) {}
