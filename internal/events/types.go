package events

import "github.com/smazurov/castnode/internal/logging"

// Event type constants for kelindar/event.
const (
	TypeGraphStateChanged uint32 = iota + 1
	TypeBranchAttached
	TypeBranchDetached
	TypeSourceSwapped
	TypeSwapFailed
	TypeSinkError
	TypeBranchReconnect
	TypeRemoteAvailability
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// GraphStateChangedEvent is published after every lifecycle transition.
type GraphStateChangedEvent struct {
	From      string `json:"from" example:"preview" doc:"Previous lifecycle state"`
	To        string `json:"to" example:"playing" doc:"New lifecycle state"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Transition time"`
}

// Type returns the event type identifier for GraphStateChangedEvent.
func (e GraphStateChangedEvent) Type() uint32 { return TypeGraphStateChanged }

// BranchAttachedEvent reports an output branch linked into the live graph.
type BranchAttachedEvent struct {
	BranchID  string `json:"branch_id" doc:"Output branch identifier"`
	Category  string `json:"category" example:"audiovideo" doc:"Feed category"`
	Kind      string `json:"kind" example:"store" doc:"stream or store"`
	Name      string `json:"name" doc:"User given branch name"`
	Timestamp string `json:"timestamp" doc:"Attach time"`
}

// Type returns the event type identifier for BranchAttachedEvent.
func (e BranchAttachedEvent) Type() uint32 { return TypeBranchAttached }

// BranchDetachedEvent reports an output branch removed from the live graph.
type BranchDetachedEvent struct {
	BranchID  string `json:"branch_id" doc:"Output branch identifier"`
	Category  string `json:"category" doc:"Feed category"`
	Kind      string `json:"kind" doc:"stream or store"`
	Name      string `json:"name" doc:"User given branch name"`
	Removed   bool   `json:"removed" doc:"True when the branch was deleted rather than parked"`
	Timestamp string `json:"timestamp" doc:"Detach time"`
}

// Type returns the event type identifier for BranchDetachedEvent.
func (e BranchDetachedEvent) Type() uint32 { return TypeBranchDetached }

// SourceSwappedEvent reports a completed hot-swap.
type SourceSwappedEvent struct {
	SwapID    string  `json:"swap_id" doc:"Swap operation identifier"`
	From      string  `json:"from" example:"default_video_source" doc:"Replaced stage"`
	To        string  `json:"to" example:"usb_camera_video0" doc:"Inserted stage"`
	Seconds   float64 `json:"seconds" doc:"Swap duration"`
	Timestamp string  `json:"timestamp" doc:"Completion time"`
}

// Type returns the event type identifier for SourceSwappedEvent.
func (e SourceSwappedEvent) Type() uint32 { return TypeSourceSwapped }

// SwapFailedEvent reports a hot-swap that timed out, was cancelled or hit an
// engine error. The replaced stage stays in place.
type SwapFailedEvent struct {
	SwapID    string `json:"swap_id" doc:"Swap operation identifier"`
	From      string `json:"from" doc:"Stage that was to be replaced"`
	To        string `json:"to" doc:"Stage that was to be inserted"`
	State     string `json:"state" example:"draining" doc:"State the swap was in"`
	Error     string `json:"error" doc:"Failure reason"`
	Timestamp string `json:"timestamp" doc:"Failure time"`
}

// Type returns the event type identifier for SwapFailedEvent.
func (e SwapFailedEvent) Type() uint32 { return TypeSwapFailed }

// SinkErrorEvent is published when the engine reports an error from an
// element of an output branch.
type SinkErrorEvent struct {
	BranchID  string `json:"branch_id" doc:"Output branch identifier, empty if unknown"`
	Element   string `json:"element" doc:"Element that posted the error"`
	Message   string `json:"message" doc:"Engine error text"`
	Timestamp string `json:"timestamp" doc:"Error time"`
}

// Type returns the event type identifier for SinkErrorEvent.
func (e SinkErrorEvent) Type() uint32 { return TypeSinkError }

// Reconnect phases.
const (
	ReconnectWaiting = "waiting"
	ReconnectResumed = "resumed"
	ReconnectFailed  = "failed"
)

// BranchReconnectEvent tracks the reconnect cycle of a stream branch.
type BranchReconnectEvent struct {
	BranchID  string `json:"branch_id" doc:"Output branch identifier"`
	Attempt   int    `json:"attempt" doc:"Attempt number, starting at 1"`
	Phase     string `json:"phase" enum:"waiting,resumed,failed" doc:"Reconnect phase"`
	Error     string `json:"error,omitempty" doc:"Failure reason for the failed phase"`
	Timestamp string `json:"timestamp" doc:"Event time"`
}

// Type returns the event type identifier for BranchReconnectEvent.
func (e BranchReconnectEvent) Type() uint32 { return TypeBranchReconnect }

// RemoteAvailabilityEvent is published when a watched host changes
// availability.
type RemoteAvailabilityEvent struct {
	Host        string  `json:"host" doc:"Watched host"`
	Port        int     `json:"port" doc:"Watched port"`
	Available   bool    `json:"available" doc:"Host up and port open"`
	HostRunning bool    `json:"host_running" doc:"Host answered"`
	PortOpen    bool    `json:"port_open" doc:"Port accepted a connection"`
	Latency     float64 `json:"latency" doc:"Connect latency in seconds"`
	Timestamp   string  `json:"timestamp" doc:"Check time"`
}

// Type returns the event type identifier for RemoteAvailabilityEvent.
func (e RemoteAvailabilityEvent) Type() uint32 { return TypeRemoteAvailability }

// LogEntryEvent carries one buffered log line.
type LogEntryEvent struct {
	logging.LogEntry
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
