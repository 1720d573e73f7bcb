package envelope

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/GriffinCanCode/shmbridge/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/shmbridge/internal/shm"
	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

var (
	// ErrDeserialize means bytes are present but do not parse as the requested shape.
	ErrDeserialize = errors.New("failed to deserialize envelope")
	// ErrSerialize means a value could not be encoded as JSON.
	ErrSerialize = errors.New("failed to serialize envelope")
	// ErrUnknownType means a tag does not name a supported kind.
	ErrUnknownType = errors.New("unknown type")
)

var (
	api       = sonic.ConfigStd
	strictAPI = sonic.Config{
		EscapeHTML:            true,
		SortMapKeys:           true,
		CompactMarshaler:      true,
		CopyString:            true,
		ValidateString:        true,
		DisallowUnknownFields: true,
	}.Froze()
)

// Envelope wraps a payload with its type tag, write time and metadata.
type Envelope[T any] struct {
	TypeTag   string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   T              `json:"data"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Mailbox is the byte-level slot the protocol stores envelopes in.
type Mailbox interface {
	Read() ([]byte, error)
	Write(payload []byte) error
}

// Option configures a Protocol
type Option func(*Protocol)

// WithStrictTags rejects envelopes whose stored type tag differs from the
// requested type. Without it a stored Message can decode as any type whose
// JSON shape overlaps.
func WithStrictTags() Option {
	return func(p *Protocol) { p.strictTags = true }
}

// WithClock overrides the timestamp source
func WithClock(now func() time.Time) Option {
	return func(p *Protocol) { p.now = now }
}

// WithMaxPayload lowers the serialized size limit checked before writing
func WithMaxPayload(n int) Option {
	return func(p *Protocol) { p.maxPayload = n }
}

// Protocol stores typed envelopes in a Mailbox. Every operation runs under
// the Coordinator, so operations issued through the same Coordinator never
// interleave.
type Protocol struct {
	mailbox    Mailbox
	coord      *resilience.Coordinator
	logger     *zap.Logger
	now        func() time.Time
	strictTags bool
	maxPayload int
}

// NewProtocol creates a protocol over mailbox
func NewProtocol(mailbox Mailbox, coord *resilience.Coordinator, logger *zap.Logger, opts ...Option) *Protocol {
	if logger == nil {
		logger = zap.NewNop()
	}
	if coord == nil {
		coord = resilience.NewCoordinator(resilience.DefaultRetrySettings(), logger)
	}

	p := &Protocol{
		mailbox:    mailbox,
		coord:      coord,
		logger:     logger,
		now:        time.Now,
		maxPayload: shm.MaxPayloadSize(shm.MaxCapacity),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// TypeTag returns the tag recorded for values of type T: its type name.
func TypeTag[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if name := t.Name(); name != "" {
		return name
	}
	return t.String()
}

// Write stores value in a fresh envelope.
func Write[T any](ctx context.Context, p *Protocol, value T, metadata map[string]any) error {
	tag := TypeTag[T]()
	return p.coord.Do(ctx, "write_typed", func(context.Context) error {
		return writeEnvelope(p, tag, value, metadata)
	})
}

// Read loads the stored envelope and decodes its payload as T. The stored
// type tag is not compared with T unless WithStrictTags was given.
func Read[T any](ctx context.Context, p *Protocol) (*Envelope[T], error) {
	var env *Envelope[T]
	err := p.coord.Do(ctx, "read_typed", func(context.Context) error {
		var err error
		env, err = readEnvelope[T](p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return env, nil
}

// Update reads the stored payload, applies f and writes the result with the
// original metadata and a new timestamp. Only callers sharing this
// protocol's Coordinator are excluded between the read and the write.
func Update[T any](ctx context.Context, p *Protocol, f func(T) T) error {
	tag := TypeTag[T]()
	return p.coord.Do(ctx, "update", func(context.Context) error {
		env, err := readEnvelope[T](p)
		if err != nil {
			return err
		}
		return writeEnvelope(p, tag, f(env.Payload), env.Metadata)
	})
}

// WriteRecord stores a record under its kind's type tag.
func (p *Protocol) WriteRecord(ctx context.Context, rec Record, metadata map[string]any) error {
	switch r := rec.(type) {
	case SystemStatus:
		return Write(ctx, p, r, metadata)
	case Message:
		return Write(ctx, p, r, metadata)
	case Configuration:
		return Write(ctx, p, r, metadata)
	case Metrics:
		return Write(ctx, p, r, metadata)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownType, rec)
	}
}

// ReadRecord reads the stored envelope as the record shape of k.
func (p *Protocol) ReadRecord(ctx context.Context, k Kind) (*Envelope[Record], error) {
	switch k {
	case KindSystemStatus:
		return lift[SystemStatus](Read[SystemStatus](ctx, p))
	case KindMessage:
		return lift[Message](Read[Message](ctx, p))
	case KindConfiguration:
		return lift[Configuration](Read[Configuration](ctx, p))
	case KindMetrics:
		return lift[Metrics](Read[Metrics](ctx, p))
	default:
		return nil, fmt.Errorf("%w: kind %d", ErrUnknownType, int(k))
	}
}

func lift[T Record](env *Envelope[T], err error) (*Envelope[Record], error) {
	if err != nil {
		return nil, err
	}
	return &Envelope[Record]{
		TypeTag:   env.TypeTag,
		Timestamp: env.Timestamp,
		Payload:   env.Payload,
		Metadata:  env.Metadata,
	}, nil
}

func writeEnvelope[T any](p *Protocol, tag string, value T, metadata map[string]any) error {
	env := Envelope[T]{
		TypeTag:   tag,
		Timestamp: p.now().UTC(),
		Payload:   value,
		Metadata:  metadata,
	}

	data, err := api.Marshal(&env)
	if err != nil {
		return resilience.Permanent(fmt.Errorf("%w: %s: %v", ErrSerialize, tag, err))
	}
	if len(data) > p.maxPayload {
		return resilience.Permanent(fmt.Errorf("serialized %s envelope is %d bytes: %w",
			tag, len(data), &shm.TooLargeError{Size: len(data), Limit: p.maxPayload}))
	}

	if err := p.mailbox.Write(data); err != nil {
		return classify(err)
	}

	p.logger.Debug("Envelope written", zap.String("type", tag), zap.Int("bytes", len(data)))
	return nil
}

func readEnvelope[T any](p *Protocol) (*Envelope[T], error) {
	raw, err := p.mailbox.Read()
	if err != nil {
		return nil, classify(err)
	}

	var env Envelope[T]
	if err := api.Unmarshal(raw, &env); err != nil {
		return nil, resilience.Permanent(fmt.Errorf("%w: %s: %v", ErrDeserialize, TypeTag[T](), err))
	}
	if env.TypeTag == "" {
		return nil, resilience.Permanent(fmt.Errorf("%w: stored payload is not an envelope", ErrDeserialize))
	}
	if p.strictTags && env.TypeTag != TypeTag[T]() {
		return nil, resilience.Permanent(fmt.Errorf("%w: stored type %s, requested %s",
			ErrDeserialize, env.TypeTag, TypeTag[T]()))
	}
	return &env, nil
}

// classify marks failures that another attempt cannot fix. Corrupt frames
// and OS errors stay retryable: a torn read is usually gone on the next try.
func classify(err error) error {
	for _, permanent := range []error{
		shm.ErrEmpty,
		shm.ErrTooLarge,
		shm.ErrReadOnlyMode,
		shm.ErrNotFound,
		shm.ErrInvalidName,
		shm.ErrPermission,
		shm.ErrUnsupported,
	} {
		if errors.Is(err, permanent) {
			return resilience.Permanent(err)
		}
	}
	return err
}
