// Package codec defines how cached values are (de)serialized to the
// payload bytes carried inside a cache envelope.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
