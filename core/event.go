package core

import (
	"time"

	"github.com/google/uuid"
)

// Event wraps an EventType with an identifier and a UTC timestamp. After
// publication it should be treated as immutable.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"event"`
}

// NewEvent stamps an EventType with a fresh id and the current time.
func NewEvent(t EventType) Event {
	return Event{ID: NewID(), Timestamp: time.Now().UTC(), Type: t}
}

// NewID generates a new unique identifier for events.
func NewID() string { return uuid.NewString() }

// UnixSeconds returns the timestamp as fractional seconds since Unix epoch.
func (e Event) UnixSeconds() float64 { return float64(e.Timestamp.UnixNano()) / 1e9 }

// EventType is the closed set of runtime occurrences. Kind returns a stable
// snake_case name usable as a metrics label or log key.
type EventType interface {
	Kind() string
	isEventType()
}

// TaskStarted is emitted once when a task begins.
type TaskStarted struct {
	Task string `json:"task"`
}

// MetricsUpdate carries a snapshot of the runtime counters.
type MetricsUpdate struct {
	Metrics Metrics `json:"metrics"`
}

// StorageUpdate is emitted on every storage mutation with the value before and
// after the write. Nil means absent.
type StorageUpdate struct {
	StorageName string      `json:"storage_name"`
	StorageType StorageType `json:"storage_type"`
	Key         string      `json:"key"`
	Prev        *string     `json:"prev,omitempty"`
	New         *string     `json:"new,omitempty"`
}

// StateUpdate carries a snapshot of the conversation and the variable maps.
type StateUpdate struct {
	Chat      ChatOptions       `json:"chat"`
	Globals   map[string]string `json:"globals"`
	Variables map[string]string `json:"variables"`
}

// EmptyResponse is emitted when the generator returned neither text nor invocations.
type EmptyResponse struct{}

// Thinking is emitted before a generator call.
type Thinking struct{}

// Sleeping is emitted while waiting out a provider rate limit.
type Sleeping struct {
	Duration time.Duration `json:"duration"`
}

// InvalidResponse is emitted when the generator reply contains no invocation.
type InvalidResponse struct {
	Response string `json:"response"`
}

// InvalidAction is emitted when an invocation cannot be resolved or validated.
type InvalidAction struct {
	Invocation Invocation `json:"invocation"`
	Error      string     `json:"error,omitempty"`
}

// ActionTimeout is emitted when an action misses its deadline.
type ActionTimeout struct {
	Invocation Invocation    `json:"invocation"`
	Elapsed    time.Duration `json:"elapsed"`
}

// ActionExecuting is emitted right before an action runs.
type ActionExecuting struct {
	Invocation Invocation `json:"invocation"`
}

// ActionExecuted is emitted when an action returned, successfully or not.
type ActionExecuted struct {
	Invocation   Invocation    `json:"invocation"`
	Error        string        `json:"error,omitempty"`
	Result       ActionOutput  `json:"result,omitempty"`
	Elapsed      time.Duration `json:"elapsed"`
	CompleteTask bool          `json:"complete_task"`
}

// TaskComplete is emitted when the task ends, possibly as impossible.
type TaskComplete struct {
	Impossible bool    `json:"impossible"`
	Reason     *string `json:"reason,omitempty"`
}

func (TaskStarted) Kind() string     { return "task_started" }
func (MetricsUpdate) Kind() string   { return "metrics_update" }
func (StorageUpdate) Kind() string   { return "storage_update" }
func (StateUpdate) Kind() string     { return "state_update" }
func (EmptyResponse) Kind() string   { return "empty_response" }
func (Thinking) Kind() string        { return "thinking" }
func (Sleeping) Kind() string        { return "sleeping" }
func (InvalidResponse) Kind() string { return "invalid_response" }
func (InvalidAction) Kind() string   { return "invalid_action" }
func (ActionTimeout) Kind() string   { return "action_timeout" }
func (ActionExecuting) Kind() string { return "action_executing" }
func (ActionExecuted) Kind() string  { return "action_executed" }
func (TaskComplete) Kind() string    { return "task_complete" }

func (TaskStarted) isEventType()     {}
func (MetricsUpdate) isEventType()   {}
func (StorageUpdate) isEventType()   {}
func (StateUpdate) isEventType()     {}
func (EmptyResponse) isEventType()   {}
func (Thinking) isEventType()        {}
func (Sleeping) isEventType()        {}
func (InvalidResponse) isEventType() {}
func (InvalidAction) isEventType()   {}
func (ActionTimeout) isEventType()   {}
func (ActionExecuting) isEventType() {}
func (ActionExecuted) isEventType()  {}
func (TaskComplete) isEventType()    {}
