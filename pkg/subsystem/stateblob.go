package subsystem

import "encoding/json"

// StateBlob wraps a JSON capture of subsystem state. The bytes are cloned on
// construction and on read so holders can never mutate shared state. A zero
// StateBlob is "not set"; use NewStateBlob(nil) for a defined empty capture.
type StateBlob struct {
	defined bool
	raw     json.RawMessage
}

// NewStateBlob builds a blob wrapper from raw JSON, cloning the bytes.
func NewStateBlob(raw json.RawMessage) StateBlob {
	blob := StateBlob{defined: true}
	if raw != nil {
		blob.raw = cloneRaw(raw)
	}
	return blob
}

// NewStateBlobFromValue marshals a typed value into a StateBlob.
func NewStateBlobFromValue[T any](value T) (StateBlob, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return StateBlob{}, err
	}
	return NewStateBlob(raw), nil
}

// Defined reports whether the blob has been initialized.
func (b StateBlob) Defined() bool {
	return b.defined
}

// IsEmpty reports whether the blob contains no bytes.
func (b StateBlob) IsEmpty() bool {
	return !b.defined || len(b.raw) == 0
}

// Raw returns a cloned copy of the underlying JSON bytes. Nil is returned
// when the blob is undefined or empty.
func (b StateBlob) Raw() json.RawMessage {
	if !b.defined || len(b.raw) == 0 {
		return nil
	}
	return cloneRaw(b.raw)
}

// Decode unmarshals the blob into out.
func (b StateBlob) Decode(out any) error {
	if b.IsEmpty() {
		return nil
	}
	return json.Unmarshal(b.raw, out)
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	cp := make(json.RawMessage, len(raw))
	copy(cp, raw)
	return cp
}
