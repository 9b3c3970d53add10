package badgerstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// Compression selects how encoded node records are compressed.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZSTD Compression = 2
)

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Value layout: [Compression uint8][UncompressedSize uint32][Payload...].
// Records that do not shrink below 90% of their size are stored with
// CompressionNone.
const headerSize = 5

var errCorrupt = errors.New("badgerstore: corrupt record")

func encode(v any, c Compression) ([]byte, error) {
	raw, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: encode: %w", err)
	}

	var packed []byte
	switch c {
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, buf, nil)
		if err != nil {
			return nil, fmt.Errorf("badgerstore: lz4: %w", err)
		}
		packed = buf[:n]
	case CompressionZSTD:
		enc := getZstdEncoder()
		packed = enc.EncodeAll(raw, nil)
		zstdEncoderPool.Put(enc)
	}
	if len(packed) == 0 || float64(len(packed)) > float64(len(raw))*0.9 {
		c, packed = CompressionNone, raw
	}

	out := make([]byte, headerSize+len(packed))
	out[0] = byte(c)
	binary.LittleEndian.PutUint32(out[1:], uint32(len(raw)))
	copy(out[headerSize:], packed)
	return out, nil
}

func decode(data []byte, v any) error {
	if len(data) < headerSize {
		return errCorrupt
	}
	size := binary.LittleEndian.Uint32(data[1:])
	payload := data[headerSize:]

	var raw []byte
	switch Compression(data[0]) {
	case CompressionNone:
		raw = payload
	case CompressionLZ4:
		raw = make([]byte, size)
		n, err := lz4.UncompressBlock(payload, raw)
		if err != nil {
			return fmt.Errorf("badgerstore: lz4: %w", err)
		}
		raw = raw[:n]
	case CompressionZSTD:
		dec := getZstdDecoder()
		out, err := dec.DecodeAll(payload, make([]byte, 0, size))
		zstdDecoderPool.Put(dec)
		if err != nil {
			return fmt.Errorf("badgerstore: zstd: %w", err)
		}
		raw = out
	default:
		return fmt.Errorf("%w: unknown compression %d", errCorrupt, data[0])
	}
	if uint32(len(raw)) != size {
		return fmt.Errorf("%w: size mismatch", errCorrupt)
	}
	if err := msgpack.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("badgerstore: decode: %w", err)
	}
	return nil
}
