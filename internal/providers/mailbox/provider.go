package mailbox

import (
	"context"
	"fmt"

	"github.com/GriffinCanCode/shmbridge/internal/channel"
	"github.com/GriffinCanCode/shmbridge/internal/envelope"
	"github.com/GriffinCanCode/shmbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/shmbridge/internal/shared/types"
	"go.uber.org/zap"
)

// ServiceID is the registry prefix of every mailbox tool
const ServiceID = "mailbox"

// Provider exposes the channel and its envelope protocol as tools
type Provider struct {
	channel  *channel.Channel
	protocol *envelope.Protocol
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// NewProvider creates a mailbox provider. metrics may be nil.
func NewProvider(ch *channel.Channel, protocol *envelope.Protocol, metrics *monitoring.Metrics, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		channel:  ch,
		protocol: protocol,
		metrics:  metrics,
		logger:   logger,
	}
}

// Definition returns the service definition
func (p *Provider) Definition() types.Service {
	return types.Service{
		ID:          ServiceID,
		Name:        "Shared Memory Mailbox",
		Description: "Single-slot shared memory mailbox holding one JSON payload or typed envelope",
		Category:    types.CategoryMailbox,
		Capabilities: []string{
			"read",
			"write",
			"clear",
			"info",
			"write_typed",
			"read_typed",
			"create_system_status",
			"create_message",
			"create_metrics",
			"list_supported_types",
		},
		Tools: []types.Tool{
			{
				ID:          "mailbox.read",
				Name:        "Read",
				Description: "Read the stored JSON payload",
				Parameters:  []types.Parameter{},
				Returns:     "JSON value",
			},
			{
				ID:          "mailbox.write",
				Name:        "Write",
				Description: "Replace the stored payload with a JSON document",
				Parameters: []types.Parameter{
					{Name: "data", Type: "string", Description: "JSON text (an object or array is accepted as-is)", Required: true},
				},
				Returns: "Success marker and payload size",
			},
			{
				ID:          "mailbox.clear",
				Name:        "Clear",
				Description: "Mark the mailbox empty",
				Parameters:  []types.Parameter{},
				Returns:     "Success marker",
			},
			{
				ID:          "mailbox.info",
				Name:        "Info",
				Description: "Segment name, limits and whether data is stored",
				Parameters:  []types.Parameter{},
				Returns:     "{name, mode, max_size, capacity, has_data, content_type}",
			},
			{
				ID:          "mailbox.write_typed",
				Name:        "Write Typed",
				Description: "Wrap a record of a supported type in an envelope and store it",
				Parameters: []types.Parameter{
					{Name: "type", Type: "string", Description: "Type tag (systemstatus, message, configuration, metrics)", Required: true},
					{Name: "data", Type: "string", Description: "JSON text of the record", Required: true},
					{Name: "metadata", Type: "object", Description: "Optional envelope metadata", Required: false},
				},
				Returns: "Operation result",
			},
			{
				ID:          "mailbox.read_typed",
				Name:        "Read Typed",
				Description: "Read the stored envelope as the given type",
				Parameters: []types.Parameter{
					{Name: "type", Type: "string", Description: "Type tag (systemstatus, message, configuration, metrics)", Required: true},
				},
				Returns: "Operation result wrapping the envelope",
			},
			{
				ID:          "mailbox.create_system_status",
				Name:        "Create System Status",
				Description: "Store a SystemStatus record",
				Parameters: []types.Parameter{
					{Name: "status", Type: "string", Description: "Status label", Required: true},
					{Name: "cpu_usage", Type: "number", Description: "CPU usage percent", Required: true},
					{Name: "memory_usage", Type: "number", Description: "Memory usage in bytes", Required: true},
					{Name: "metadata", Type: "object", Description: "Optional envelope metadata", Required: false},
				},
				Returns: "Operation result",
			},
			{
				ID:          "mailbox.create_message",
				Name:        "Create Message",
				Description: "Store a Message record",
				Parameters: []types.Parameter{
					{Name: "content", Type: "string", Description: "Message body", Required: true},
					{Name: "sender", Type: "string", Description: "Sender name", Required: true},
					{Name: "priority", Type: "number", Description: "Optional priority", Required: false},
					{Name: "metadata", Type: "object", Description: "Optional envelope metadata", Required: false},
				},
				Returns: "Operation result",
			},
			{
				ID:          "mailbox.create_metrics",
				Name:        "Create Metrics",
				Description: "Store a Metrics record",
				Parameters: []types.Parameter{
					{Name: "name", Type: "string", Description: "Metric name", Required: true},
					{Name: "value", Type: "number", Description: "Metric value", Required: true},
					{Name: "unit", Type: "string", Description: "Unit of measure", Required: true},
					{Name: "tags", Type: "object", Description: "Optional string tags", Required: false},
					{Name: "metadata", Type: "object", Description: "Optional envelope metadata", Required: false},
				},
				Returns: "Operation result",
			},
			{
				ID:          "mailbox.list_supported_types",
				Name:        "List Supported Types",
				Description: "List the record types accepted by the typed tools",
				Parameters:  []types.Parameter{},
				Returns:     "Array of {name, type, description}",
			},
		},
		DataModels: []types.DataModel{
			{Name: "SystemStatus", Fields: map[string]string{"status": "string", "cpu_usage": "number", "memory_usage": "number"}},
			{Name: "Message", Fields: map[string]string{"content": "string", "sender": "string", "priority": "number"}},
			{Name: "Configuration", Fields: map[string]string{"version": "string", "settings": "object"}},
			{Name: "Metrics", Fields: map[string]string{"name": "string", "value": "number", "unit": "string", "tags": "object"}},
		},
	}
}

// Execute runs a mailbox tool. Failures are reported in the Result; the
// returned error is non-nil only when retries were exhausted.
func (p *Provider) Execute(ctx context.Context, toolID string, params map[string]interface{}, appCtx *types.Context) (*types.Result, error) {
	var (
		res *types.Result
		err error
	)

	// Only declared tools are timed, which bounds the op label.
	if !p.hasTool(toolID) {
		p.logger.Debug("Unknown mailbox tool", zap.String("tool", toolID))
		return types.Failure(CodeUnknownTool, fmt.Sprintf("unknown tool: %s", toolID)), nil
	}
	timer := monitoring.NewTimer(p.metrics, toolID)

	switch toolID {
	case "mailbox.read":
		res, err = p.read()
	case "mailbox.write":
		res, err = p.write(params)
	case "mailbox.clear":
		res, err = p.clear()
	case "mailbox.info":
		res, err = p.info()
	case "mailbox.write_typed":
		res, err = p.writeTyped(ctx, params)
	case "mailbox.read_typed":
		res, err = p.readTyped(ctx, params)
	case "mailbox.create_system_status":
		res, err = p.createSystemStatus(ctx, params)
	case "mailbox.create_message":
		res, err = p.createMessage(ctx, params)
	case "mailbox.create_metrics":
		res, err = p.createMetrics(ctx, params)
	case "mailbox.list_supported_types":
		res, err = p.listSupportedTypes()
	default:
		res = types.Failure(CodeUnknownTool, fmt.Sprintf("unknown tool: %s", toolID))
	}

	code := "ok"
	if !res.Success {
		code = res.Code
		fields := []zap.Field{zap.String("tool", toolID), zap.String("code", code)}
		if appCtx != nil && appCtx.RequestID != nil {
			fields = append(fields, zap.String("request_id", *appCtx.RequestID))
		}
		if err != nil {
			p.logger.Error("Mailbox tool failed", append(fields, zap.Error(err))...)
		} else {
			p.logger.Debug("Mailbox tool failed", append(fields, zap.Stringp("error", res.Error))...)
		}
	}
	timer.Stop(code)

	return res, err
}

func (p *Provider) hasTool(toolID string) bool {
	for _, tool := range p.Definition().Tools {
		if tool.ID == toolID {
			return true
		}
	}
	return false
}
