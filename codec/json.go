package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// JSON is a text codec. Decoding is strict: fields present in data but not
// in the target struct are an error, as is any data after the value.
type JSON struct {
	// Indent, if not empty, is used to indent encoded values
	Indent string
}

func (JSON) Name() string {
	return "json"
}

func (c JSON) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	// values are not embedded in html
	enc.SetEscapeHTML(false)
	if c.Indent != "" {
		enc.SetIndent("", c.Indent)
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// Encode adds a newline
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (JSON) Unmarshal(d []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(d))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("json: trailing data after value")
	}
	return nil
}
