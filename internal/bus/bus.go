// Package bus defines the transport-agnostic abstraction the task engine
// and notification engine talk to. The wire protocol itself is out of
// scope (spec §6.1); this package gives callers one interface to depend
// on and, in wsbus, one concrete websocket implementation to depend on it
// with — the same shape the teacher uses for TaskManager and Localizer:
// an interface with exactly one real, wired backend.
package bus

import "context"

// Request is one inbound call: a method name, its JSON-decoded params,
// and a handle back to the sender for Reply/Publish routing.
type Request struct {
	Sender  string // opaque per-connection identity
	Method  string
	Params  map[string]any
	Subscribe bool
}

// Response is what a handler sends back for a specific Request. Fields
// beyond ReturnValue/ErrorText are populated only by the methods that use
// them (spec §6.1's per-method payload table).
type Response struct {
	ReturnValue bool
	Category    string            `json:"category,omitempty"`
	Dimension   map[string]string `json:"dimension,omitempty"`
	AppID       string            `json:"app_id,omitempty"`
	Settings    map[string]any    `json:"settings,omitempty"`
	VType       string            `json:"vtype,omitempty"`
	Values      map[string]any    `json:"values,omitempty"`
	Results     []map[string]any  `json:"results,omitempty"`
	Completed   []string          `json:"completed,omitempty"`
	ErrorKey    []string          `json:"errorKey,omitempty"`
	Subscribed  bool              `json:"subscribed,omitempty"`
	ErrorText   string            `json:"errorText,omitempty"`
	ErrorCode   string            `json:"errorCode,omitempty"`
}

// Bus is the abstract transport the service depends on. Requests() is the
// inbound stream; Reply answers one specific request; Publish pushes an
// unsolicited subscription payload to a previously-registered subscriber.
type Bus interface {
	Requests() <-chan Request
	Reply(req Request, resp Response) error
	Publish(ctx context.Context, subscriberSender string, payload any) error
}
