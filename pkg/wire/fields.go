package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"unicode/utf8"
)

var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrStringTooLong    = errors.New("string length exceeds remaining data")
	ErrInvalidString    = errors.New("string is not valid UTF-8")
)

// Writer appends bootstrap fields in wire order. Integers are little endian;
// strings are a uvarint byte length followed by UTF-8 bytes.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter creates an empty writer
func NewWriter() *Writer {
	return &Writer{}
}

// WriteInt32 adds a signed 32-bit value
func (w *Writer) WriteInt32(val int32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(val))
	w.buf.Write(b[:])
}

// WriteUint16 adds an unsigned 16-bit value
func (w *Writer) WriteUint16(val uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], val)
	w.buf.Write(b[:])
}

// WriteByte adds a single byte
func (w *Writer) WriteByte(val byte) error {
	return w.buf.WriteByte(val)
}

// WriteBool adds a bool as one byte
func (w *Writer) WriteBool(val bool) {
	if val {
		w.buf.WriteByte(1)
		return
	}
	w.buf.WriteByte(0)
}

// WriteString adds a length-prefixed string
func (w *Writer) WriteString(val string) {
	var b [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(b[:], uint64(len(val)))
	w.buf.Write(b[:n])
	w.buf.WriteString(val)
}

// Bytes returns a copy of the written data
func (w *Writer) Bytes() []byte {
	data := w.buf.Bytes()
	result := make([]byte, len(data))
	copy(result, data)
	return result
}

// Len returns the number of bytes written
func (w *Writer) Len() int {
	return w.buf.Len()
}

// Reader consumes fields written by Writer
type Reader struct {
	data   []byte
	offset int
}

// NewReader creates a reader over data
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Remaining returns the number of unread bytes
func (r *Reader) Remaining() int {
	return len(r.data) - r.offset
}

// ReadInt32 reads a signed 32-bit value
func (r *Reader) ReadInt32() (int32, error) {
	if r.Remaining() < 4 {
		return 0, ErrInsufficientData
	}
	v := binary.LittleEndian.Uint32(r.data[r.offset:])
	r.offset += 4
	return int32(v), nil
}

// ReadUint16 reads an unsigned 16-bit value
func (r *Reader) ReadUint16() (uint16, error) {
	if r.Remaining() < 2 {
		return 0, ErrInsufficientData
	}
	v := binary.LittleEndian.Uint16(r.data[r.offset:])
	r.offset += 2
	return v, nil
}

// ReadByte reads a single byte
func (r *Reader) ReadByte() (byte, error) {
	if r.Remaining() < 1 {
		return 0, ErrInsufficientData
	}
	v := r.data[r.offset]
	r.offset++
	return v, nil
}

// ReadBool reads a one-byte bool; any non-zero value is true
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadByte()
	return v != 0, err
}

// ReadString reads a length-prefixed string
func (r *Reader) ReadString() (string, error) {
	length, n := binary.Uvarint(r.data[r.offset:])
	if n <= 0 {
		return "", ErrInsufficientData
	}
	if length > uint64(r.Remaining()-n) {
		return "", ErrStringTooLong
	}
	start := r.offset + n
	end := start + int(length)
	s := r.data[start:end]
	if !utf8.Valid(s) {
		return "", ErrInvalidString
	}
	r.offset = end
	return string(s), nil
}
