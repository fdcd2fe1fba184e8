package codec

import (
	"github.com/toon-format/toon-go"
)

// TOON encodes values in Token-Oriented Object Notation, a compact,
// human-readable format (same one we use for log events).
type TOON struct{}

func (TOON) Name() string {
	return "toon"
}

func (TOON) Marshal(v any) ([]byte, error) {
	return toon.Marshal(v)
}

func (TOON) Unmarshal(d []byte, v any) error {
	return toon.Unmarshal(d, v)
}
