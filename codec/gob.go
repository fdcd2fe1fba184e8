package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Gob is a binary codec. Each payload carries its own type description
// so it can be decoded without any other record.
//
// Decoding a struct into a struct that has no field names in common fails,
// which is what makes scanning a store with mixed record types work.
//
// Gob doesn't send zero values, so not every value survives a round-trip:
// a pointer to a zero value (e.g. *bool pointing at false) decodes as nil
// and an empty slice or map decodes as nil. Use JSON if that matters.
type Gob struct{}

func (Gob) Name() string {
	return "gob"
}

func (Gob) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (Gob) Unmarshal(d []byte, v any) error {
	r := bytes.NewReader(d)
	if err := gob.NewDecoder(r).Decode(v); err != nil {
		return err
	}
	if r.Len() != 0 {
		return fmt.Errorf("gob: %d trailing bytes after value", r.Len())
	}
	return nil
}
