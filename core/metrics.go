package core

import "fmt"

// StorageType is the update-retention policy of a named storage.
type StorageType int

const (
	// StorageTagged is a plain key/value map.
	StorageTagged StorageType = iota
	// StorageUntagged is an append-only list keyed by position.
	StorageUntagged
	// StorageCurrentPrevious keeps the current value and the one it replaced.
	StorageCurrentPrevious
	// StorageCompletion maps keys to a completed flag.
	StorageCompletion
	// StorageTime records when each key was last touched.
	StorageTime
)

// String returns the storage type name.
func (t StorageType) String() string {
	switch t {
	case StorageTagged:
		return "tagged"
	case StorageUntagged:
		return "untagged"
	case StorageCurrentPrevious:
		return "current_previous"
	case StorageCompletion:
		return "completion"
	case StorageTime:
		return "time"
	default:
		return fmt.Sprintf("storage_type(%d)", int(t))
	}
}

// MarshalText encodes the storage type by name.
func (t StorageType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UsageMetrics accumulates token counters.
type UsageMetrics struct {
	LastInputTokens   int `json:"last_input_tokens"`
	LastOutputTokens  int `json:"last_output_tokens"`
	TotalInputTokens  int `json:"total_input_tokens"`
	TotalOutputTokens int `json:"total_output_tokens"`
}

// ErrorMetrics counts recoverable failures.
type ErrorMetrics struct {
	UnknownActions    int `json:"unknown_actions"`
	InvalidActions    int `json:"invalid_actions"`
	ErroredActions    int `json:"errored_actions"`
	TimedoutActions   int `json:"timedout_actions"`
	EmptyResponses    int `json:"empty_responses"`
	UnparsedResponses int `json:"unparsed_responses"`
}

// Metrics aggregates runtime counters of one task.
type Metrics struct {
	Usage          UsageMetrics `json:"usage"`
	Errors         ErrorMetrics `json:"errors"`
	ValidResponses int          `json:"valid_responses"`
	ValidActions   int          `json:"valid_actions"`
	SuccessActions int          `json:"success_actions"`
}
