package leaf

import (
	"errors"
	"fmt"

	"github.com/Layr-Labs/reward-merkle-go/pkg/types"
)

// ErrEncoding is the sentinel wrapped by every EncodingError
var ErrEncoding = errors.New("leaf encoding failed")

// EncodingError reports a record that cannot be encoded under a leaf schema.
// It is not recoverable: the input data must be fixed by the caller.
type EncodingError struct {
	Schema types.Schema
	// Index is the position of the record in the input, or -1 for single record encoding
	Index int
	Field string
	Err   error
}

func (e *EncodingError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s: schema %s, record %d, field %s: %v", ErrEncoding, e.Schema, e.Index, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: schema %s, field %s: %v", ErrEncoding, e.Schema, e.Field, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrEncoding) match any EncodingError
func (e *EncodingError) Is(target error) bool {
	return target == ErrEncoding
}

func newEncodingError(schema types.Schema, field string, format string, args ...interface{}) *EncodingError {
	return &EncodingError{
		Schema: schema,
		Index:  -1,
		Field:  field,
		Err:    fmt.Errorf(format, args...),
	}
}
