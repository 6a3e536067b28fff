// Package transcoder encodes and decodes application values to and
// from the (flags, bytes) pairs carried over the wire, and implements
// the envelope used to detect hashed-key collisions (spec §3.2).
package transcoder

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/vmihailenco/msgpack/v5"
)

// Flag bits carried in the wire "flags" word. The low byte is reserved
// for the encoding used; bit 8 marks gzip compression.
const (
	flagEncodingRaw    = 0x00
	flagEncodingString = 0x01
	flagEncodingMsgpack = 0x02
	flagEncodingMask   = 0xFF
	flagCompressed     = 0x100

	// compressThreshold is the minimum encoded payload size, in bytes,
	// above which Default compresses with gzip.
	compressThreshold = 8 * 1024
)

// Transcoder is the collaborator contract of spec §6.1.
type Transcoder interface {
	Encode(value any) (flags uint32, data []byte, err error)
	Decode(flags uint32, data []byte, target any) error
}

// Default is the module's default Transcoder: []byte and string values
// pass through untouched, everything else is msgpack-encoded (grounded
// on other_examples/iiivansss84-dcache's use of msgpack for cache
// values), and payloads above compressThreshold are gzip-compressed.
type Default struct {
	// DisableCompression forces every payload through uncompressed,
	// regardless of size. The envelope transcoder (see Envelope below)
	// does not use Default and never compresses, per spec §6.1.
	DisableCompression bool
}

// Encode implements Transcoder.
func (d Default) Encode(value any) (uint32, []byte, error) {
	var flags uint32
	var raw []byte

	switch v := value.(type) {
	case []byte:
		flags = flagEncodingRaw
		raw = v
	case string:
		flags = flagEncodingString
		raw = []byte(v)
	default:
		encoded, err := msgpack.Marshal(value)
		if err != nil {
			return 0, nil, fmt.Errorf("transcoder: msgpack encode: %w", err)
		}
		flags = flagEncodingMsgpack
		raw = encoded
	}

	if !d.DisableCompression && len(raw) > compressThreshold {
		compressed, err := gzipCompress(raw)
		if err != nil {
			return 0, nil, fmt.Errorf("transcoder: compress: %w", err)
		}
		return flags | flagCompressed, compressed, nil
	}
	return flags, raw, nil
}

// Decode implements Transcoder.
func (d Default) Decode(flags uint32, data []byte, target any) error {
	raw := data
	if flags&flagCompressed != 0 {
		decompressed, err := gzipDecompress(data)
		if err != nil {
			return fmt.Errorf("transcoder: decompress: %w", err)
		}
		raw = decompressed
	}

	switch flags & flagEncodingMask {
	case flagEncodingRaw:
		if p, ok := target.(*[]byte); ok {
			*p = raw
			return nil
		}
		return fmt.Errorf("transcoder: raw payload requires *[]byte target")
	case flagEncodingString:
		if p, ok := target.(*string); ok {
			*p = string(raw)
			return nil
		}
		return fmt.Errorf("transcoder: string payload requires *string target")
	case flagEncodingMsgpack:
		if err := msgpack.Unmarshal(raw, target); err != nil {
			return fmt.Errorf("transcoder: msgpack decode: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("transcoder: unknown encoding flags %#x", flags)
	}
}

func gzipCompress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipDecompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Envelope is the wrapper record written to the backend in place of
// the raw transcoded payload whenever the normalised key carries a
// hashed wire key (spec §3.2). It lets the read path detect the case
// where two distinct canonical keys hash to the same wire key.
type Envelope struct {
	CanonicalKey string
	Flags        uint32
	PayloadBytes []byte
	TTL          int64
	WriteTime    int64
}

// EnvelopeTranscoder encodes/decodes Envelope values. Compression is
// always disabled for envelopes per spec §6.1, since the inner payload
// may already be compressed by the application transcoder and double
// compression wastes CPU for no benefit.
var EnvelopeTranscoder Transcoder = envelopeCodec{}

type envelopeCodec struct{}

func (envelopeCodec) Encode(value any) (uint32, []byte, error) {
	env, ok := value.(Envelope)
	if !ok {
		return 0, nil, fmt.Errorf("transcoder: envelope encode requires Envelope value, got %T", value)
	}

	var buf []byte
	keyBytes := []byte(env.CanonicalKey)
	buf = binary.AppendUvarint(buf, uint64(len(keyBytes)))
	buf = append(buf, keyBytes...)
	buf = binary.AppendUvarint(buf, uint64(env.Flags))
	buf = binary.AppendUvarint(buf, uint64(len(env.PayloadBytes)))
	buf = append(buf, env.PayloadBytes...)
	buf = binary.AppendVarint(buf, env.TTL)
	buf = binary.AppendVarint(buf, env.WriteTime)
	return 0, buf, nil
}

func (envelopeCodec) Decode(_ uint32, data []byte, target any) error {
	env, ok := target.(*Envelope)
	if !ok {
		return fmt.Errorf("transcoder: envelope decode requires *Envelope target, got %T", target)
	}

	off := 0
	keyLen, n := binary.Uvarint(data[off:])
	if n <= 0 {
		return fmt.Errorf("transcoder: invalid envelope key length")
	}
	off += n
	if off+int(keyLen) > len(data) {
		return fmt.Errorf("transcoder: envelope key truncated")
	}
	env.CanonicalKey = string(data[off : off+int(keyLen)])
	off += int(keyLen)

	flags, n := binary.Uvarint(data[off:])
	if n <= 0 {
		return fmt.Errorf("transcoder: invalid envelope flags")
	}
	off += n
	env.Flags = uint32(flags)

	payloadLen, n := binary.Uvarint(data[off:])
	if n <= 0 {
		return fmt.Errorf("transcoder: invalid envelope payload length")
	}
	off += n
	if off+int(payloadLen) > len(data) {
		return fmt.Errorf("transcoder: envelope payload truncated")
	}
	env.PayloadBytes = make([]byte, payloadLen)
	copy(env.PayloadBytes, data[off:off+int(payloadLen)])
	off += int(payloadLen)

	ttl, n := binary.Varint(data[off:])
	if n <= 0 {
		return fmt.Errorf("transcoder: invalid envelope ttl")
	}
	off += n
	env.TTL = ttl

	writeTime, n := binary.Varint(data[off:])
	if n <= 0 {
		return fmt.Errorf("transcoder: invalid envelope write time")
	}
	env.WriteTime = writeTime

	return nil
}
