package cache

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// rawJSON parses stored text into a generic structure. Numbers stay
// json.Number so integers beyond 2^53 survive the round trip.
var rawJSON = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

var (
	// ErrEncode wraps failures turning a fetched value into stored text.
	ErrEncode = errors.New("cache: encode failed")
	// ErrDecode wraps failures turning stored text back into a value.
	ErrDecode = errors.New("cache: decode failed")
)

// Encoder turns a value into the text persisted for it.
type Encoder func(v any) (string, error)

// Decoder builds a T from the JSON structure parsed out of a stored row:
// map[string]any, []any, string, json.Number, bool or nil. Numbers are
// json.Number (from encoding/json), never float64.
type Decoder[T any] func(raw any) (T, error)

// JSONEncoder is the default Encoder. Types implementing json.Marshaler
// control their own representation.
func JSONEncoder(v any) (string, error) {
	return json.MarshalToString(v)
}

// DecodeAs returns a Decoder mapping the raw structure onto T the same way
// json.Unmarshal would. Numbers landing in an interface value stay
// json.Number.
func DecodeAs[T any]() Decoder[T] {
	return func(raw any) (T, error) {
		var out T
		buf, err := json.Marshal(raw)
		if err != nil {
			return out, err
		}
		err = rawJSON.Unmarshal(buf, &out)
		return out, err
	}
}

func encode(enc Encoder, v any) (string, error) {
	if enc == nil {
		enc = JSONEncoder
	}
	s, err := enc(v)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return s, nil
}

// decode runs both stages: text to structure, then structure to T.
func decode[T any](data string, dec Decoder[T]) (T, error) {
	var zero T
	var raw any
	if err := rawJSON.UnmarshalFromString(data, &raw); err != nil {
		return zero, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	v, err := dec(raw)
	if err != nil {
		return zero, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return v, nil
}
