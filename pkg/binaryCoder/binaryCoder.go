// Package binaryCoder stores plain values (maps, sequences, byte-blobs and
// leaves) as compact binary documents on top of protobuf's structpb.
package binaryCoder

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ulikunitz/xz/lzma"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	payloadHeaderPlain = 0x00
	payloadHeaderLzma  = 0x10
)

var (
	ErrUnsupportedType = errors.New("binaryCoder: unsupported type")
	ErrInvalidPayload  = errors.New("binaryCoder: invalid payload")
)

type Options struct {
	Compress bool // lzma compress the encoded document
}

type Coder struct {
	options Options
}

func New(options Options) *Coder {
	return &Coder{options: options}
}

// Encode writes v as a binary document. The first byte of the result flags
// whether the rest is compressed.
func (c *Coder) Encode(v any) ([]byte, error) {
	pv, err := toProto(v)
	if err != nil {
		return nil, err
	}

	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(pv)
	if err != nil {
		return nil, fmt.Errorf("binaryCoder: marshal: %w", err)
	}

	if !c.options.Compress {
		return append([]byte{payloadHeaderPlain}, data...), nil
	}

	compressed, err := compressWithLzma(data)
	if err != nil {
		return nil, fmt.Errorf("binaryCoder: compress: %w", err)
	}
	return append([]byte{payloadHeaderLzma}, compressed...), nil
}

// Decode reads a document written by Encode regardless of the compression
// option of the receiving Coder. Byte-blobs come back as Binary.
func (c *Coder) Decode(payload []byte) (any, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("%w: payload is empty", ErrInvalidPayload)
	}

	data := payload[1:]
	switch payload[0] {
	case payloadHeaderPlain:
	case payloadHeaderLzma:
		decompressed, err := decompressWithLzma(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		data = decompressed
	default:
		return nil, fmt.Errorf("%w: unknown header flag 0x%02x", ErrInvalidPayload, payload[0])
	}

	pv := &structpb.Value{}
	if err := proto.Unmarshal(data, pv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return fromProto(pv)
}

func compressWithLzma(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err = w.Write(data); err != nil {
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressWithLzma(data []byte) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err = buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
