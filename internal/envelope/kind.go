package envelope

import (
	"fmt"
	"strings"
)

// Kind enumerates the record shapes the protocol knows how to dispatch.
type Kind int

const (
	KindSystemStatus Kind = iota + 1
	KindMessage
	KindConfiguration
	KindMetrics
)

var allKinds = []Kind{KindSystemStatus, KindMessage, KindConfiguration, KindMetrics}

// Kinds returns every supported kind in a stable order
func Kinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

// ParseKind maps an external tag onto a Kind, ignoring case and surrounding
// whitespace. Unrecognised tags fail with ErrUnknownType.
func ParseKind(tag string) (Kind, error) {
	normalized := strings.ToLower(strings.TrimSpace(tag))
	for _, k := range allKinds {
		if k.String() == normalized {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, tag)
}

// String returns the lowercase tag used by external callers
func (k Kind) String() string {
	switch k {
	case KindSystemStatus:
		return "systemstatus"
	case KindMessage:
		return "message"
	case KindConfiguration:
		return "configuration"
	case KindMetrics:
		return "metrics"
	default:
		return "unknown"
	}
}

// TypeName returns the type tag stored in envelopes of this kind
func (k Kind) TypeName() string {
	switch k {
	case KindSystemStatus:
		return "SystemStatus"
	case KindMessage:
		return "Message"
	case KindConfiguration:
		return "Configuration"
	case KindMetrics:
		return "Metrics"
	default:
		return ""
	}
}

// Description returns a one-line summary for listings
func (k Kind) Description() string {
	switch k {
	case KindSystemStatus:
		return "System health snapshot: status, cpu_usage (percent), memory_usage (bytes)"
	case KindMessage:
		return "Text message: content, sender, optional priority"
	case KindConfiguration:
		return "Configuration document: version and free-form settings"
	case KindMetrics:
		return "Single metric sample: name, value, unit, optional tags"
	default:
		return ""
	}
}

// Record is implemented by exactly the four record types below.
type Record interface {
	Kind() Kind
	isRecord()
}

// SystemStatus reports the health of the writer's host
type SystemStatus struct {
	Status      string  `json:"status"`
	CPUUsage    float64 `json:"cpu_usage"`
	MemoryUsage uint64  `json:"memory_usage"`
}

// Message carries a text message between applications
type Message struct {
	Content  string `json:"content"`
	Sender   string `json:"sender"`
	Priority int    `json:"priority,omitempty"`
}

// Configuration carries a versioned settings document
type Configuration struct {
	Version  string         `json:"version"`
	Settings map[string]any `json:"settings"`
}

// Metrics carries one metric sample
type Metrics struct {
	Name  string            `json:"name"`
	Value float64           `json:"value"`
	Unit  string            `json:"unit"`
	Tags  map[string]string `json:"tags,omitempty"`
}

func (SystemStatus) Kind() Kind  { return KindSystemStatus }
func (Message) Kind() Kind       { return KindMessage }
func (Configuration) Kind() Kind { return KindConfiguration }
func (Metrics) Kind() Kind       { return KindMetrics }

func (SystemStatus) isRecord()  {}
func (Message) isRecord()       {}
func (Configuration) isRecord() {}
func (Metrics) isRecord()       {}

// DecodeRecord parses JSON text into the record shape of k. Fields that the
// shape does not declare are rejected.
func DecodeRecord(k Kind, data []byte) (Record, error) {
	switch k {
	case KindSystemStatus:
		return decodeStrict[SystemStatus](data)
	case KindMessage:
		return decodeStrict[Message](data)
	case KindConfiguration:
		return decodeStrict[Configuration](data)
	case KindMetrics:
		return decodeStrict[Metrics](data)
	default:
		return nil, fmt.Errorf("%w: kind %d", ErrUnknownType, int(k))
	}
}

func decodeStrict[T Record](data []byte) (Record, error) {
	var v T
	if err := strictAPI.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDeserialize, v.Kind().TypeName(), err)
	}
	return v, nil
}
