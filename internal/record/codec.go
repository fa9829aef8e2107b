package record

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
)

// Package-level validator instance for record validation.
var validate = validator.New()

// DecodeError reports a record that could not be turned into its model
// type, either because a field has the wrong shape or because it failed
// validation.
type DecodeError struct {
	Collection string
	ID         int64
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid %s record %d: %v", e.Collection, e.ID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode converts a raw record into T and validates it. Input is decoded
// weakly so string and float encodings of numbers are both accepted.
func Decode[T any](c Collection, r Record) (T, error) {
	var out T
	id, _ := IDOf(c, r)

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return out, err
	}
	if err := decoder.Decode(map[string]any(r)); err != nil {
		return out, &DecodeError{Collection: c.Name, ID: id, Err: err}
	}
	if err := validate.Struct(out); err != nil {
		return out, &DecodeError{Collection: c.Name, ID: id, Err: err}
	}
	return out, nil
}

// DecodeAll decodes every record of a list, failing on the first bad one.
func DecodeAll[T any](c Collection, records []Record) ([]T, error) {
	out := make([]T, 0, len(records))
	for _, r := range records {
		v, err := Decode[T](c, r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Encode converts a model value into a raw record. Zero keys are omitted
// so the store assigns them.
func Encode(v any) (Record, error) {
	if err := validate.Struct(v); err != nil {
		return nil, err
	}
	out := make(map[string]any)
	if err := mapstructure.Decode(v, &out); err != nil {
		return nil, err
	}
	return Record(out), nil
}
