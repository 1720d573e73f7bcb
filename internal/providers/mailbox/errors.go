package mailbox

import (
	"context"
	"errors"

	"github.com/GriffinCanCode/shmbridge/internal/envelope"
	"github.com/GriffinCanCode/shmbridge/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/shmbridge/internal/shared/types"
	"github.com/GriffinCanCode/shmbridge/internal/shm"
)

var (
	// ErrInvalidJSON means raw write input is not a JSON document.
	ErrInvalidJSON = errors.New("invalid JSON")
	// ErrInvalidParams means a required tool parameter is missing or mistyped.
	ErrInvalidParams = errors.New("invalid parameters")
)

// Result codes
const (
	CodeNotFound         = "not_found"
	CodeReadOnlyMode     = "read_only_mode"
	CodeOutOfRange       = "out_of_range"
	CodeTooLarge         = "too_large"
	CodeEmpty            = "empty"
	CodeCorrupt          = "corrupt"
	CodeDeserialize      = "deserialize_error"
	CodeUnknownType      = "unknown_type"
	CodeInvalidJSON      = "invalid_json"
	CodeInvalidParams    = "invalid_params"
	CodeUnknownTool      = "unknown_tool"
	CodeTimeout          = "timeout"
	CodeRetriesExhausted = "retries_exhausted"
	CodeInternal         = "internal"
)

// codes is checked in order; RetriesExhausted wraps the last attempt's error
// so it must come first.
var codes = []struct {
	err  error
	code string
}{
	{resilience.ErrRetriesExhausted, CodeRetriesExhausted},
	{resilience.ErrTimeout, CodeTimeout},
	{context.DeadlineExceeded, CodeTimeout},
	{shm.ErrNotFound, CodeNotFound},
	{shm.ErrReadOnlyMode, CodeReadOnlyMode},
	{shm.ErrOutOfRange, CodeOutOfRange},
	{shm.ErrTooLarge, CodeTooLarge},
	{shm.ErrEmpty, CodeEmpty},
	{shm.ErrCorrupt, CodeCorrupt},
	{envelope.ErrDeserialize, CodeDeserialize},
	{envelope.ErrUnknownType, CodeUnknownType},
	{ErrInvalidJSON, CodeInvalidJSON},
	{ErrInvalidParams, CodeInvalidParams},
}

// Code returns the stable result code for err.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// failure converts err into a failed Result. Only exhausted retries are
// passed through as a Go error.
func failure(err error) (*types.Result, error) {
	code := Code(err)
	res := types.Failure(code, err.Error())
	if code == CodeRetriesExhausted {
		return res, err
	}
	return res, nil
}
