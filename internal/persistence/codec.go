package persistence

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

func init() {
	// Scope values travel as interface values inside maps.
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register([]string{})
	gob.Register(time.Time{})
}

// Codec converts snapshots to and from bytes.
type Codec struct {
	Name   string
	Encode func(s *Snapshot) ([]byte, error)
	Decode func(data []byte) (*Snapshot, error)
}

// GobCodec encodes snapshots with encoding/gob. Scope values must be gob
// encodable; custom types need gob.Register.
var GobCodec = Codec{
	Name: "gob",
	Encode: func(s *Snapshot) ([]byte, error) {
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(s); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	},
	Decode: func(data []byte) (*Snapshot, error) {
		var s Snapshot
		if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
			return nil, err
		}
		return &s, nil
	},
}

// MsgpackCodec encodes snapshots with MessagePack. Integers in scopes come
// back as int whatever width they were written with; other Go integer types
// do not survive the trip.
var MsgpackCodec = Codec{
	Name: "msgpack",
	Encode: func(s *Snapshot) ([]byte, error) {
		return msgpack.Marshal(s)
	},
	Decode: func(data []byte) (*Snapshot, error) {
		var s Snapshot
		if err := msgpack.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		normalizeScopes(&s)
		return &s, nil
	},
}

// normalizeScopes widens the integers msgpack decodes at wire width
// (int8, uint16, ...) back to int.
func normalizeScopes(s *Snapshot) {
	normalizeMap(s.Conversation)
	normalizeMap(s.Attributes)
	for i := range s.Sessions {
		normalizeMap(s.Sessions[i].FlowScope)
		normalizeMap(s.Sessions[i].ViewScope)
		normalizeMap(s.Sessions[i].FlashScope)
	}
}

func normalizeMap(m map[string]any) {
	for k, v := range m {
		m[k] = normalizeValue(v)
	}
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case int8:
		return int(x)
	case int16:
		return int(x)
	case int32:
		return int(x)
	case int64:
		if x >= math.MinInt && x <= math.MaxInt {
			return int(x)
		}
	case uint8:
		return int(x)
	case uint16:
		return int(x)
	case uint32:
		return int(x)
	case uint64:
		if x <= math.MaxInt {
			return int(x)
		}
	case map[string]any:
		normalizeMap(x)
	case []any:
		for i := range x {
			x[i] = normalizeValue(x[i])
		}
	}
	return v
}

// CodecByName returns the codec called name.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", GobCodec.Name:
		return GobCodec, nil
	case MsgpackCodec.Name:
		return MsgpackCodec, nil
	}
	return Codec{}, fmt.Errorf("unknown snapshot codec %q", name)
}

// Compression selects the envelope compression of encoded snapshots.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

// ErrUnsupportedVersion is returned for snapshots written by a newer schema.
var ErrUnsupportedVersion = errors.New("unsupported snapshot version")

// Serializer pairs a codec with a compression.
type Serializer struct {
	Codec       Codec
	Compression Compression
}

// DefaultSerializer uses gob without compression.
func DefaultSerializer() Serializer {
	return Serializer{Codec: GobCodec, Compression: CompressionNone}
}

// Marshal encodes and compresses s.
func (z Serializer) Marshal(s *Snapshot) ([]byte, error) {
	codec := z.codec()
	raw, err := codec.Encode(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot (%s): %w", codec.Name, err)
	}
	switch z.Compression {
	case "", CompressionNone:
		return raw, nil
	case CompressionGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(raw); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(raw, nil), nil
	}
	return nil, fmt.Errorf("unknown compression %q", z.Compression)
}

// Unmarshal decompresses and decodes data, rejecting unknown versions.
func (z Serializer) Unmarshal(data []byte) (*Snapshot, error) {
	raw := data
	switch z.Compression {
	case "", CompressionNone:
	case CompressionGzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		if raw, err = io.ReadAll(r); err != nil {
			return nil, err
		}
	case CompressionZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		if raw, err = dec.DecodeAll(data, nil); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown compression %q", z.Compression)
	}

	codec := z.codec()
	s, err := codec.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot (%s): %w", codec.Name, err)
	}
	if s.Version > SnapshotVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, s.Version)
	}
	return s, nil
}

func (z Serializer) codec() Codec {
	if z.Codec.Encode == nil || z.Codec.Decode == nil {
		return GobCodec
	}
	return z.Codec
}
