package types

// ExecuteRequest represents a service execution request
type ExecuteRequest struct {
	ToolID string                 `json:"tool_id" binding:"required"`
	Params map[string]interface{} `json:"params"`
}

// StreamMessage is one frame of the watch stream
type StreamMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Stream message types
const (
	StreamInfo    = "info"
	StreamUpdate  = "update"
	StreamCleared = "cleared"
	StreamError   = "error"
)
