// Package codec converts values to bytes and back.
//
// The storage engine treats payloads as opaque bytes and only needs a Codec to
// turn caller values into them. Decoding needs nothing but the bytes and the
// type of the target value, which is passed as a pointer.
package codec

import (
	"fmt"
	"strings"
)

// Codec encodes and decodes values
type Codec interface {
	// Marshal serializes v
	Marshal(v any) ([]byte, error)
	// Unmarshal deserializes d into v, which must be a pointer
	Unmarshal(d []byte, v any) error
	// Name identifies the codec e.g. in CLI flags
	Name() string
}

// Default is used when no codec is configured
var Default Codec = JSON{}

// ByName returns a codec for a name as returned by Codec.Name()
func ByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return JSON{}, nil
	case "gob":
		return Gob{}, nil
	case "toon":
		return TOON{}, nil
	case "msgp", "msgpack":
		return Msgp{}, nil
	}
	return nil, fmt.Errorf("unknown codec '%s'", name)
}
