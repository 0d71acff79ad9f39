package binding

import "context"

// Status is the outcome of a fetch.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Origin tags synthesized results.
type Origin string

// OriginDemo marks a result produced by Simulate.
const OriginDemo Origin = "DEMO"

// Result is what a source adapter delivers and what a sink receives.
// AfterData carries the payload after the script hook ran; it equals Data
// when no hook is configured.
type Result struct {
	Status    Status `json:"status"`
	Data      any    `json:"data"`
	AfterData any    `json:"afterData,omitempty"`
	Origin    Origin `json:"origin,omitempty"`
}

// OK reports whether the result carries a successful fetch.
func (r Result) OK() bool { return r.Status == StatusSuccess }

// Callback receives results. Adapters call it from their own goroutines.
type Callback func(Result)

// A source handle may implement any subset of the interfaces below. A handle
// implementing none of them is inert: it is stored and persisted but never
// driven.

// Connector starts delivering results to cb. Connect must return promptly;
// results arrive later. After Close returns, a correct adapter never calls cb
// again for that connection.
type Connector interface {
	Connect(ctx context.Context, cb Callback) error
}

// Closer stops a connection.
type Closer interface {
	Close() error
}

// Describer exposes the adapter's persisted request options.
type Describer interface {
	Options() any
}

// Cloner produces an unconnected copy of the adapter for deep-copied nodes.
type Cloner interface {
	CloneSource() any
}

// Hook transforms a result before it reaches the sink. props is the owning
// node's current property values, or nil for non-successful results.
type Hook interface {
	Apply(r Result, props map[string]any) Result
}
