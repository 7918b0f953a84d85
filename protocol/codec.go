package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrEmptyType    = errors.New("protocol: empty envelope type")
	ErrEmptyFrame   = errors.New("protocol: empty frame")
	ErrEmptyPayload = errors.New("protocol: empty payload")
)

// Encode 将 payload 包装成信封并序列化
func Encode(t string, payload any) ([]byte, error) {
	if t == "" {
		return nil, ErrEmptyType
	}
	pb, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return json.Marshal(Envelope{Type: t, Data: pb})
}

// MustEncode 仅用于编码必然成功的内部结构
func MustEncode(t string, payload any) []byte {
	b, err := Encode(t, payload)
	if err != nil {
		panic(err)
	}
	return b
}

// DecodeEnvelope 解析外层信封，不解析 data
func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, ErrEmptyFrame
	}
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if e.Type == "" {
		return Envelope{}, ErrEmptyType
	}
	return e, nil
}

// DecodePayload 将信封 data 解析为具体类型 T
func DecodePayload[T any](env Envelope) (T, error) {
	var out T
	if len(env.Data) == 0 {
		return out, fmt.Errorf("%w for type %q", ErrEmptyPayload, env.Type)
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return out, nil
}
