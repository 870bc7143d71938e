package codec

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	lz4 "github.com/pierrec/lz4/v4"
)

// CompressionType identifies the compression algorithm used. It is stored as
// the first byte of every compressed record.
type CompressionType byte

const (
	CompressionNone   CompressionType = 0
	CompressionSnappy CompressionType = 1
	CompressionLZ4    CompressionType = 2
	CompressionZSTD   CompressionType = 3
)

func (ct CompressionType) String() string {
	switch ct {
	case CompressionNone:
		return "none"
	case CompressionSnappy:
		return "snappy"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return "unknown"
	}
}

// maxDecompressedSize bounds the memory a single record may expand into.
const maxDecompressedSize = 64 << 20

// Compressor compresses whole encoded records.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Type() CompressionType
}

// CompressorByName returns the compressor for a configuration name.
func CompressorByName(name string) (Compressor, error) {
	switch name {
	case "none", "":
		return NoCompression{}, nil
	case "snappy":
		return Snappy{}, nil
	case "lz4":
		return LZ4{}, nil
	case "zstd":
		return NewZstd()
	default:
		return nil, fmt.Errorf("unknown compression: %s", name)
	}
}

type NoCompression struct{}

func (NoCompression) Compress(data []byte) ([]byte, error)   { return data, nil }
func (NoCompression) Decompress(data []byte) ([]byte, error) { return data, nil }
func (NoCompression) Type() CompressionType                  { return CompressionNone }

type Snappy struct{}

func (Snappy) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (Snappy) Decompress(data []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decompress error: %w", err)
	}
	return out, nil
}

func (Snappy) Type() CompressionType { return CompressionSnappy }

// LZ4 uses the block format. The block format does not carry the original
// size, so it is written as a 4 byte big-endian prefix.
type LZ4 struct{}

func (LZ4) Compress(data []byte) ([]byte, error) {
	out := make([]byte, 4+lz4.CompressBlockBound(len(data)))
	binary.BigEndian.PutUint32(out, uint32(len(data)))
	if len(data) == 0 {
		return out[:4], nil
	}

	n, err := lz4.CompressBlock(data, out[4:], nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress error: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("lz4 compression resulted in zero bytes for non-empty input")
	}
	return out[:4+n], nil
}

func (LZ4) Decompress(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("lz4 block too short: %d bytes", len(data))
	}
	size := binary.BigEndian.Uint32(data)
	if size > maxDecompressedSize {
		return nil, fmt.Errorf("lz4 block claims %d bytes, limit is %d", size, maxDecompressedSize)
	}
	out := make([]byte, size)
	if size == 0 {
		return out, nil
	}

	n, err := lz4.UncompressBlock(data[4:], out)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress error: %w", err)
	}
	if n != int(size) {
		return nil, fmt.Errorf("lz4 decompressed %d bytes, expected %d", n, size)
	}
	return out, nil
}

func (LZ4) Type() CompressionType { return CompressionLZ4 }

// Zstd shares one encoder and one decoder; EncodeAll and DecodeAll are safe
// for concurrent use.
type Zstd struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func NewZstd() (*Zstd, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecompressedSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &Zstd{enc: enc, dec: dec}, nil
}

func (z *Zstd) Compress(data []byte) ([]byte, error) {
	return z.enc.EncodeAll(data, nil), nil
}

func (z *Zstd) Decompress(data []byte) ([]byte, error) {
	out, err := z.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress error: %w", err)
	}
	return out, nil
}

func (z *Zstd) Type() CompressionType { return CompressionZSTD }

// sharedZstd serves reads of zstd records by codecs configured with another
// compressor.
var sharedZstd = sync.OnceValues(NewZstd)

// compressorFor returns the compressor able to read records of type t.
func compressorFor(t CompressionType) (Compressor, error) {
	switch t {
	case CompressionNone:
		return NoCompression{}, nil
	case CompressionSnappy:
		return Snappy{}, nil
	case CompressionLZ4:
		return LZ4{}, nil
	case CompressionZSTD:
		return sharedZstd()
	default:
		return nil, fmt.Errorf("unsupported compression type %d", byte(t))
	}
}

type compressed struct {
	inner      Codec
	compressor Compressor
}

// Compressed wraps inner so every encoded record starts with a compression
// type byte, CompressionNone included. Unmarshal reads the byte and
// decompresses accordingly, so a log stays readable after its compression
// setting changes. Pointer strings are passed through to inner uncompressed.
func Compressed(inner Codec, compressor Compressor) Codec {
	if compressor == nil {
		compressor = NoCompression{}
	}
	return &compressed{inner: inner, compressor: compressor}
}

func (c *compressed) Name() string {
	if c.compressor.Type() == CompressionNone {
		return c.inner.Name()
	}
	return c.inner.Name() + "+" + c.compressor.Type().String()
}

func (c *compressed) Marshal(r *Record) ([]byte, error) {
	raw, err := c.inner.Marshal(r)
	if err != nil {
		return nil, err
	}
	body, err := c.compressor.Compress(raw)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(body)+1)
	out = append(out, byte(c.compressor.Type()))
	return append(out, body...), nil
}

func (c *compressed) Unmarshal(data []byte) (*Record, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty record")
	}

	compressor := c.compressor
	if t := CompressionType(data[0]); t != compressor.Type() {
		var err error
		if compressor, err = compressorFor(t); err != nil {
			return nil, err
		}
	}

	raw, err := compressor.Decompress(data[1:])
	if err != nil {
		return nil, err
	}
	return c.inner.Unmarshal(raw)
}

func (c *compressed) MarshalString(s string) ([]byte, error) {
	return c.inner.MarshalString(s)
}

func (c *compressed) UnmarshalString(data []byte) (string, error) {
	return c.inner.UnmarshalString(data)
}

func (c *compressed) MarshalValue(v any) ([]byte, error) {
	return c.inner.MarshalValue(v)
}

func (c *compressed) UnmarshalValue(data []byte, v any) error {
	return c.inner.UnmarshalValue(data, v)
}
