package mailbox

import (
	"context"
	"fmt"
	"math"

	"github.com/GriffinCanCode/shmbridge/internal/envelope"
	"github.com/GriffinCanCode/shmbridge/internal/shared/types"
	"github.com/bytedance/sonic"
)

var api = sonic.ConfigStd

func (p *Provider) read() (*types.Result, error) {
	payload, err := p.channel.Read()
	if err != nil {
		return failure(err)
	}

	var value interface{}
	if err := api.Unmarshal(payload, &value); err != nil {
		return failure(fmt.Errorf("%w: stored payload is not JSON: %v", envelope.ErrDeserialize, err))
	}
	p.observe("mailbox.read", len(payload))

	return types.Success(map[string]interface{}{
		"value": value,
		"size":  len(payload),
	}), nil
}

func (p *Provider) write(params map[string]interface{}) (*types.Result, error) {
	data, err := jsonParam(params, "data")
	if err != nil {
		return failure(err)
	}
	if err := p.channel.Write(data); err != nil {
		return failure(err)
	}
	p.observe("mailbox.write", len(data))

	return types.Success(map[string]interface{}{
		"written": true,
		"size":    len(data),
	}), nil
}

func (p *Provider) clear() (*types.Result, error) {
	if err := p.channel.Clear(); err != nil {
		return failure(err)
	}
	return types.Success(map[string]interface{}{"cleared": true}), nil
}

func (p *Provider) info() (*types.Result, error) {
	info := p.channel.Info()
	return types.Success(map[string]interface{}{
		"name":         info.Name,
		"mode":         info.Mode,
		"max_size":     info.MaxSize,
		"capacity":     info.Capacity,
		"has_data":     info.HasData,
		"content_type": info.ContentType,
	}), nil
}

func (p *Provider) writeTyped(ctx context.Context, params map[string]interface{}) (*types.Result, error) {
	tag, _ := params["type"].(string)
	kind, err := envelope.ParseKind(tag)
	if err != nil {
		return failure(err)
	}

	data, err := jsonParam(params, "data")
	if err != nil {
		return failure(err)
	}
	rec, err := envelope.DecodeRecord(kind, data)
	if err != nil {
		return failure(err)
	}
	metadata, err := metadataParam(params)
	if err != nil {
		return failure(err)
	}

	return p.writeRecord(ctx, rec, metadata)
}

func (p *Provider) readTyped(ctx context.Context, params map[string]interface{}) (*types.Result, error) {
	tag, _ := params["type"].(string)
	kind, err := envelope.ParseKind(tag)
	if err != nil {
		return failure(err)
	}

	env, err := p.protocol.ReadRecord(ctx, kind)
	if err != nil {
		return failure(err)
	}

	return types.Success(map[string]interface{}{
		"type":     env.TypeTag,
		"envelope": env,
	}), nil
}

func (p *Provider) createSystemStatus(ctx context.Context, params map[string]interface{}) (*types.Result, error) {
	status, err := stringParam(params, "status")
	if err != nil {
		return failure(err)
	}
	cpu, err := numberParam(params, "cpu_usage")
	if err != nil {
		return failure(err)
	}
	mem, err := numberParam(params, "memory_usage")
	if err != nil {
		return failure(err)
	}
	// float64(MaxUint64) rounds up to 2^64, which uint64 cannot hold.
	if !(mem >= 0 && mem < math.MaxUint64) {
		return failure(fmt.Errorf("%w: memory_usage out of range: %v", ErrInvalidParams, mem))
	}
	metadata, err := metadataParam(params)
	if err != nil {
		return failure(err)
	}

	return p.writeRecord(ctx, envelope.SystemStatus{
		Status:      status,
		CPUUsage:    cpu,
		MemoryUsage: uint64(mem),
	}, metadata)
}

func (p *Provider) createMessage(ctx context.Context, params map[string]interface{}) (*types.Result, error) {
	content, err := stringParam(params, "content")
	if err != nil {
		return failure(err)
	}
	sender, err := stringParam(params, "sender")
	if err != nil {
		return failure(err)
	}

	msg := envelope.Message{Content: content, Sender: sender}
	if _, ok := params["priority"]; ok {
		priority, err := numberParam(params, "priority")
		if err != nil {
			return failure(err)
		}
		msg.Priority = int(priority)
	}

	metadata, err := metadataParam(params)
	if err != nil {
		return failure(err)
	}
	return p.writeRecord(ctx, msg, metadata)
}

func (p *Provider) createMetrics(ctx context.Context, params map[string]interface{}) (*types.Result, error) {
	name, err := stringParam(params, "name")
	if err != nil {
		return failure(err)
	}
	value, err := numberParam(params, "value")
	if err != nil {
		return failure(err)
	}
	unit, err := stringParam(params, "unit")
	if err != nil {
		return failure(err)
	}

	rec := envelope.Metrics{Name: name, Value: value, Unit: unit}
	if raw, ok := params["tags"].(map[string]interface{}); ok && len(raw) > 0 {
		rec.Tags = make(map[string]string, len(raw))
		for k, v := range raw {
			rec.Tags[k] = fmt.Sprint(v)
		}
	}

	metadata, err := metadataParam(params)
	if err != nil {
		return failure(err)
	}
	return p.writeRecord(ctx, rec, metadata)
}

func (p *Provider) listSupportedTypes() (*types.Result, error) {
	kinds := envelope.Kinds()
	list := make([]map[string]interface{}, 0, len(kinds))
	for _, k := range kinds {
		list = append(list, map[string]interface{}{
			"name":        k.String(),
			"type":        k.TypeName(),
			"description": k.Description(),
		})
	}
	return types.Success(map[string]interface{}{
		"types": list,
		"count": len(list),
	}), nil
}

func (p *Provider) writeRecord(ctx context.Context, rec envelope.Record, metadata map[string]interface{}) (*types.Result, error) {
	if err := p.protocol.WriteRecord(ctx, rec, metadata); err != nil {
		return failure(err)
	}
	return types.Success(map[string]interface{}{
		"written": true,
		"type":    rec.Kind().TypeName(),
		"record":  rec,
	}), nil
}

func (p *Provider) observe(op string, size int) {
	if p.metrics != nil {
		p.metrics.ObservePayload(op, size)
	}
}

// jsonParam returns params[key] as JSON text. Strings must already be JSON;
// any other value is encoded.
func jsonParam(params map[string]interface{}, key string) ([]byte, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: %s is required", ErrInvalidParams, key)
	}

	if s, ok := v.(string); ok {
		data := []byte(s)
		if !api.Valid(data) {
			return nil, fmt.Errorf("%w: %s is not a JSON document", ErrInvalidJSON, key)
		}
		return data, nil
	}

	data, err := api.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidJSON, key, err)
	}
	return data, nil
}

func stringParam(params map[string]interface{}, key string) (string, error) {
	s, ok := params[key].(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidParams, key)
	}
	return s, nil
}

func numberParam(params map[string]interface{}, key string) (float64, error) {
	switch n := params[key].(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%w: %s must be a number", ErrInvalidParams, key)
	}
}

func metadataParam(params map[string]interface{}) (map[string]interface{}, error) {
	switch md := params["metadata"].(type) {
	case nil:
		return nil, nil
	case map[string]interface{}:
		return md, nil
	default:
		return nil, fmt.Errorf("%w: metadata must be an object", ErrInvalidParams)
	}
}
