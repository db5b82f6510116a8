package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrShortBuffer is returned when the input ends before a value could be read.
var ErrShortBuffer = errors.New("codec: data too short")

const (
	nilMarker     byte = 0
	presentMarker byte = 1
)

// --------------------------------------------------------------------------
// Encoder
// --------------------------------------------------------------------------

// Encoder appends encoded values to an internal buffer.
type Encoder struct {
	buf []byte
}

// NewEncoder creates an encoder with the given initial capacity.
func NewEncoder(capacity int) *Encoder {
	return &Encoder{buf: make([]byte, 0, capacity)}
}

// Bytes returns the encoded data.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

func (e *Encoder) WriteUint8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *Encoder) WriteBool(v bool) {
	if v {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
}

func (e *Encoder) WriteUint32(v uint32) {
	e.buf = binary.BigEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) WriteUint64(v uint64) {
	e.buf = binary.BigEndian.AppendUint64(e.buf, v)
}

func (e *Encoder) WriteInt32(v int32) {
	e.WriteUint32(uint32(v))
}

func (e *Encoder) WriteInt64(v int64) {
	e.WriteUint64(uint64(v))
}

// WriteString writes a 4 byte length followed by the string data.
func (e *Encoder) WriteString(s string) {
	e.WriteUint32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

// WriteBytes writes a presence marker, and for non nil slices a 4 byte length
// followed by the data.
func (e *Encoder) WriteBytes(b []byte) {
	if b == nil {
		e.buf = append(e.buf, nilMarker)
		return
	}
	e.buf = append(e.buf, presentMarker)
	e.WriteUint32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

// WriteStrings writes a length prefixed list of strings.
func (e *Encoder) WriteStrings(list []string) {
	e.WriteUint32(uint32(len(list)))
	for _, s := range list {
		e.WriteString(s)
	}
}

// WriteInts writes a length prefixed list of int32 values.
func (e *Encoder) WriteInts(list []int) {
	e.WriteUint32(uint32(len(list)))
	for _, v := range list {
		e.WriteInt32(int32(v))
	}
}

// WriteBytesMap writes a map with sorted keys so the output is deterministic.
func (e *Encoder) WriteBytesMap(m map[string][]byte) {
	if m == nil {
		e.buf = append(e.buf, nilMarker)
		return
	}
	e.buf = append(e.buf, presentMarker)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	e.WriteUint32(uint32(len(keys)))
	for _, k := range keys {
		e.WriteString(k)
		e.WriteBytes(m[k])
	}
}

// --------------------------------------------------------------------------
// Decoder
// --------------------------------------------------------------------------

// Decoder reads values written by an Encoder.
type Decoder struct {
	data []byte
	pos  int
	err  error
}

// NewDecoder creates a decoder over data.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Err returns the first error encountered while decoding.
func (d *Decoder) Err() error {
	return d.err
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.data) - d.pos
}

// Fail records err unless an error was already recorded.
func (d *Decoder) Fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.Remaining() < n {
		d.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortBuffer, n, d.pos, d.Remaining())
		return nil
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b
}

func (d *Decoder) ReadUint8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *Decoder) ReadBool() bool {
	return d.ReadUint8() != 0
}

func (d *Decoder) ReadUint32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (d *Decoder) ReadUint64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (d *Decoder) ReadInt32() int32 {
	return int32(d.ReadUint32())
}

func (d *Decoder) ReadInt64() int64 {
	return int64(d.ReadUint64())
}

func (d *Decoder) ReadString() string {
	n := d.readLen()
	b := d.take(n)
	if b == nil {
		return ""
	}
	return string(b)
}

// ReadBytes returns a copy of the encoded slice, nil if nil was written.
func (d *Decoder) ReadBytes() []byte {
	if d.ReadUint8() == nilMarker || d.err != nil {
		return nil
	}
	n := d.readLen()
	b := d.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func (d *Decoder) ReadStrings() []string {
	n := d.readLen()
	if d.err != nil {
		return nil
	}
	list := make([]string, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		list = append(list, d.ReadString())
	}
	return list
}

func (d *Decoder) ReadInts() []int {
	n := d.readLen()
	if d.err != nil {
		return nil
	}
	list := make([]int, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		list = append(list, int(d.ReadInt32()))
	}
	return list
}

func (d *Decoder) ReadBytesMap() map[string][]byte {
	if d.ReadUint8() == nilMarker || d.err != nil {
		return nil
	}
	n := d.readLen()
	if d.err != nil {
		return nil
	}
	m := make(map[string][]byte, n)
	for i := 0; i < n && d.err == nil; i++ {
		k := d.ReadString()
		m[k] = d.ReadBytes()
	}
	return m
}

// readLen reads a length prefix and checks it against the remaining input so a
// corrupt frame can not trigger a huge allocation. Every encoded element takes
// at least one byte, so a length never exceeds the remaining input.
func (d *Decoder) readLen() int {
	n := d.ReadUint32()
	if d.err != nil {
		return 0
	}
	if n > math.MaxInt32 || int(n) > d.Remaining() {
		d.Fail(fmt.Errorf("%w: invalid length %d at offset %d", ErrShortBuffer, n, d.pos))
		return 0
	}
	return int(n)
}
