// Package binary provides the primitive read/write helpers the MQTT 3.1.1
// wire format is built out of: booleans, big-endian 16/32-bit integers, and
// length-prefixed strings.
package binary

import (
	"encoding/binary"
	"errors"
	"io"
)

var errShortString = errors.New("binary: declared string length exceeds available bytes")

// ReadBool reads a single byte and reports whether it is non-zero.
func ReadBool(r io.Reader) (bool, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return false, err
	}
	return buf[0] != 0, nil
}

// WriteBool writes b as a single 0x00/0x01 byte.
func WriteBool(w io.Writer, b bool) error {
	var buf [1]byte
	if b {
		buf[0] = 1
	}
	_, err := w.Write(buf[:])
	return err
}

// ReadUint16 reads a 2-byte big-endian unsigned integer.
func ReadUint16(r io.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

// WriteUint16 writes v as a 2-byte big-endian unsigned integer.
func WriteUint16(w io.Writer, v uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// ReadUint32 reads a 4-byte big-endian unsigned integer.
func ReadUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// WriteUint32 writes v as a 4-byte big-endian unsigned integer.
func WriteUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// WriteString writes b as a 2-byte length prefix followed by the raw bytes.
// It is used for both UTF-8 string fields and opaque binary fields (e.g.
// the PUBLISH payload is never framed this way, but the will message and
// password fields are).
func WriteString(w io.Writer, b []byte) error {
	if err := WriteUint16(w, uint16(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// ReadString reads a 2-byte length prefix followed by that many raw bytes.
func ReadString(r io.Reader) (string, error) {
	n, err := ReadUint16(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	read, err := io.ReadFull(r, buf)
	if err != nil {
		if read < int(n) {
			return "", errShortString
		}
		return "", err
	}
	return string(buf), nil
}

// ReadBytes reads a 2-byte length prefix followed by that many raw bytes,
// returning them without a string conversion (used for will messages and
// passwords, which MQTT treats as binary data even though they are framed
// like strings).
func ReadBytes(r io.Reader) ([]byte, error) {
	n, err := ReadUint16(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
