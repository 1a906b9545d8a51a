package storage

import "encoding/json"

// Codec serializes item values for backends that persist bytes.
type Codec[T any] interface {
	Marshal(v T) ([]byte, error)
	Unmarshal(data []byte) (T, error)
}

// JSONCodec stores values as JSON documents.
type JSONCodec[T any] struct{}

func (JSONCodec[T]) Marshal(v T) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, NewErrorWithCause(ErrSerialization.Code, ErrSerialization.Message, err)
	}
	return data, nil
}

func (JSONCodec[T]) Unmarshal(data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, NewErrorWithCause(ErrSerialization.Code, "The stored value could not be decoded", err)
	}
	return v, nil
}

// CodecOrDefault returns c, or a JSONCodec when c is nil.
func CodecOrDefault[T any](c Codec[T]) Codec[T] {
	if c == nil {
		return JSONCodec[T]{}
	}
	return c
}
