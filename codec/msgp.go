package codec

import (
	"fmt"

	"github.com/tinylib/msgp/msgp"
)

// Msgp is a MessagePack codec for types with msgp generated (or hand written)
// MarshalMsg / UnmarshalMsg methods. It doesn't use reflection, values of
// other types are rejected.
type Msgp struct{}

func (Msgp) Name() string {
	return "msgp"
}

func (Msgp) Marshal(v any) ([]byte, error) {
	m, ok := v.(msgp.Marshaler)
	if !ok {
		return nil, fmt.Errorf("msgp: %T doesn't implement msgp.Marshaler", v)
	}
	return m.MarshalMsg(nil)
}

func (Msgp) Unmarshal(d []byte, v any) error {
	u, ok := v.(msgp.Unmarshaler)
	if !ok {
		return fmt.Errorf("msgp: %T doesn't implement msgp.Unmarshaler", v)
	}
	rest, err := u.UnmarshalMsg(d)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return fmt.Errorf("msgp: %d trailing bytes after value", len(rest))
	}
	return nil
}
