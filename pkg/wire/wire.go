// Package wire implements the lightweight binary protocol zonecache's
// TCP replica implementation speaks to its backends.
//
// The protocol is a memcached-style command set (get, gets-and-touch,
// meta-get, meta-debug, set, add, replace, append, append-or-add,
// delete, touch, incr, decr) rather than the teacher's Redis-style
// surface, but keeps the teacher's wire shape: a 4-byte big-endian
// length header framing a type byte followed by varint-length-
// prefixed fields.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Op identifies the operation a Request performs.
type Op uint8

const (
	OpGet Op = iota
	OpGetAndTouch
	OpMetaGet
	OpMetaDebug
	OpSet
	OpAdd
	OpReplace
	OpAppend
	OpAppendOrAdd
	OpDelete
	OpTouch
	OpIncr
	OpDecr
	OpPing
)

// MetaFlag requests an extra field be returned by a meta-get/meta-debug
// response. Flags are combined with a bitwise OR.
type MetaFlag uint8

const (
	MetaReturnTTL        MetaFlag = 1 << 0
	MetaReturnLastAccess MetaFlag = 1 << 1
	MetaReturnHitBefore  MetaFlag = 1 << 2
)

// Status is the outcome of a Request as reported by a backend.
type Status uint8

const (
	StatusOK Status = iota
	StatusNotFound
	StatusStored
	StatusNotStored
	StatusError
)

// Request is a single wire-level command.
type Request struct {
	Op        Op
	Key       string
	Value     []byte
	Flags     uint32
	TTL       int64
	Delta     int64
	Default   int64
	MetaFlags MetaFlag
}

// Response is a single wire-level reply.
type Response struct {
	Status      Status
	Flags       uint32
	Value       []byte
	Num         int64
	TTL         int64
	LastAccess  int64
	HitBefore   bool
	Err         string
}

// Serialize renders r into its binary wire form, without framing.
func (r *Request) Serialize() []byte {
	var buf []byte
	buf = append(buf, byte(r.Op))

	keyBytes := []byte(r.Key)
	buf = binary.AppendUvarint(buf, uint64(len(keyBytes)))
	buf = append(buf, keyBytes...)

	buf = binary.AppendUvarint(buf, uint64(len(r.Value)))
	buf = append(buf, r.Value...)

	buf = binary.AppendUvarint(buf, uint64(r.Flags))
	buf = binary.AppendVarint(buf, r.TTL)
	buf = binary.AppendVarint(buf, r.Delta)
	buf = binary.AppendVarint(buf, r.Default)
	buf = append(buf, byte(r.MetaFlags))

	return buf
}

// DeserializeRequest reconstructs a Request from data produced by Serialize.
func DeserializeRequest(data []byte) (*Request, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("wire: empty request")
	}
	r := &Request{}
	off := 0

	r.Op = Op(data[off])
	off++

	keyLen, n := binary.Uvarint(data[off:])
	if n <= 0 {
		return nil, fmt.Errorf("wire: invalid key length")
	}
	off += n
	if off+int(keyLen) > len(data) {
		return nil, fmt.Errorf("wire: key data truncated")
	}
	r.Key = string(data[off : off+int(keyLen)])
	off += int(keyLen)

	valLen, n := binary.Uvarint(data[off:])
	if n <= 0 {
		return nil, fmt.Errorf("wire: invalid value length")
	}
	off += n
	if off+int(valLen) > len(data) {
		return nil, fmt.Errorf("wire: value data truncated")
	}
	if valLen > 0 {
		r.Value = make([]byte, valLen)
		copy(r.Value, data[off:off+int(valLen)])
	}
	off += int(valLen)

	flags, n := binary.Uvarint(data[off:])
	if n <= 0 {
		return nil, fmt.Errorf("wire: invalid flags")
	}
	off += n
	r.Flags = uint32(flags)

	ttl, n := binary.Varint(data[off:])
	if n <= 0 {
		return nil, fmt.Errorf("wire: invalid ttl")
	}
	off += n
	r.TTL = ttl

	delta, n := binary.Varint(data[off:])
	if n <= 0 {
		return nil, fmt.Errorf("wire: invalid delta")
	}
	off += n
	r.Delta = delta

	def, n := binary.Varint(data[off:])
	if n <= 0 {
		return nil, fmt.Errorf("wire: invalid default")
	}
	off += n
	r.Default = def

	if off >= len(data) {
		return nil, fmt.Errorf("wire: missing meta flags")
	}
	r.MetaFlags = MetaFlag(data[off])

	return r, nil
}

// Serialize renders resp into its binary wire form, without framing.
func (resp *Response) Serialize() []byte {
	var buf []byte
	buf = append(buf, byte(resp.Status))
	buf = binary.AppendUvarint(buf, uint64(resp.Flags))
	buf = binary.AppendUvarint(buf, uint64(len(resp.Value)))
	buf = append(buf, resp.Value...)
	buf = binary.AppendVarint(buf, resp.Num)
	buf = binary.AppendVarint(buf, resp.TTL)
	buf = binary.AppendVarint(buf, resp.LastAccess)
	if resp.HitBefore {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	errBytes := []byte(resp.Err)
	buf = binary.AppendUvarint(buf, uint64(len(errBytes)))
	buf = append(buf, errBytes...)
	return buf
}

// DeserializeResponse reconstructs a Response from data produced by Serialize.
func DeserializeResponse(data []byte) (*Response, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("wire: empty response")
	}
	resp := &Response{}
	off := 0

	resp.Status = Status(data[off])
	off++

	flags, n := binary.Uvarint(data[off:])
	if n <= 0 {
		return nil, fmt.Errorf("wire: invalid flags")
	}
	off += n
	resp.Flags = uint32(flags)

	valLen, n := binary.Uvarint(data[off:])
	if n <= 0 {
		return nil, fmt.Errorf("wire: invalid value length")
	}
	off += n
	if off+int(valLen) > len(data) {
		return nil, fmt.Errorf("wire: value data truncated")
	}
	if valLen > 0 {
		resp.Value = make([]byte, valLen)
		copy(resp.Value, data[off:off+int(valLen)])
	}
	off += int(valLen)

	num, n := binary.Varint(data[off:])
	if n <= 0 {
		return nil, fmt.Errorf("wire: invalid num")
	}
	off += n
	resp.Num = num

	ttl, n := binary.Varint(data[off:])
	if n <= 0 {
		return nil, fmt.Errorf("wire: invalid ttl")
	}
	off += n
	resp.TTL = ttl

	lastAccess, n := binary.Varint(data[off:])
	if n <= 0 {
		return nil, fmt.Errorf("wire: invalid last access")
	}
	off += n
	resp.LastAccess = lastAccess

	if off >= len(data) {
		return nil, fmt.Errorf("wire: missing hit-before flag")
	}
	resp.HitBefore = data[off] != 0
	off++

	errLen, n := binary.Uvarint(data[off:])
	if n <= 0 {
		return nil, fmt.Errorf("wire: invalid error length")
	}
	off += n
	if off+int(errLen) > len(data) {
		return nil, fmt.Errorf("wire: error data truncated")
	}
	resp.Err = string(data[off : off+int(errLen)])

	return resp, nil
}

const maxFrameSize = 8 * 1024 * 1024

// WriteRequest frames and writes a Request to w.
func WriteRequest(w io.Writer, r *Request) error {
	return writeFramed(w, r.Serialize())
}

// ReadRequest reads and deserializes a framed Request from r.
func ReadRequest(r io.Reader) (*Request, error) {
	data, err := readFramed(r)
	if err != nil {
		return nil, err
	}
	return DeserializeRequest(data)
}

// WriteResponse frames and writes a Response to w.
func WriteResponse(w io.Writer, resp *Response) error {
	return writeFramed(w, resp.Serialize())
}

// ReadResponse reads and deserializes a framed Response from r.
func ReadResponse(r io.Reader) (*Response, error) {
	data, err := readFramed(r)
	if err != nil {
		return nil, err
	}
	return DeserializeResponse(data)
}

func writeFramed(w io.Writer, data []byte) error {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))
	if _, err := w.Write(length); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func readFramed(r io.Reader) ([]byte, error) {
	lengthBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lengthBuf); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lengthBuf)
	if length > maxFrameSize {
		return nil, fmt.Errorf("wire: frame too large: %d bytes", length)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
