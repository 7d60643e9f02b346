package packet

import (
	"bytes"
	"io"

	"github.com/lumenmq/lighthouse/internal/code"
	"github.com/lumenmq/lighthouse/internal/xerror"
)

// TopicFilter is one (filter, requested QoS) entry of a SUBSCRIBE payload.
type TopicFilter struct {
	Filter []byte
	QoS    byte
}

// Subscribe represents the MQTT SUBSCRIBE packet. Fixed-header flags MUST
// be 0x02 (MQTT-3.8.1-1).
type Subscribe struct {
	PacketId uint16
	Filters  []TopicFilter
}

func (s *Subscribe) Type() Type { return SUBSCRIBE }

func (s *Subscribe) Encode(w io.Writer) error {
	buf := &bytes.Buffer{}
	writeUint16(buf, s.PacketId)
	for _, f := range s.Filters {
		fb, _, err := UTF8EncodedStrings(f.Filter)
		if err != nil {
			return err
		}
		buf.Write(fb)
		buf.WriteByte(f.QoS & 0x03)
	}
	fh := &FixedHeader{PacketType: SUBSCRIBE, Flags: FixedHeaderFlagPubrelSubUnsub}
	return encode(fh, buf, w)
}

func NewSubscribe(fixedHeader *FixedHeader, r io.Reader) (*Subscribe, error) {
	if fixedHeader.Flags != FixedHeaderFlagPubrelSubUnsub { // MQTT-3.8.1-1
		return nil, xerror.ErrMalformed
	}
	rest := make([]byte, fixedHeader.RemainLength)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(rest)
	pid, err := readUint16(buf)
	if err != nil {
		return nil, xerror.ErrMalformed
	}
	s := &Subscribe{PacketId: pid}
	for buf.Len() > 0 {
		filter, err := UTF8DecodedStrings(true, buf)
		if err != nil {
			return nil, err
		}
		qos, err := buf.ReadByte()
		if err != nil {
			return nil, xerror.ErrMalformed
		}
		s.Filters = append(s.Filters, TopicFilter{Filter: filter, QoS: qos & 0x03})
	}
	if len(s.Filters) == 0 { // MQTT-3.8.3-3
		return nil, xerror.ErrMalformed
	}
	return s, nil
}

// Suback acknowledges a SUBSCRIBE with one return code per requested
// filter, in the same order.
type Suback struct {
	PacketId uint16
	Codes    []code.SubackCode
}

func (s *Suback) Type() Type { return SUBACK }

func (s *Suback) Encode(w io.Writer) error {
	buf := &bytes.Buffer{}
	writeUint16(buf, s.PacketId)
	for _, c := range s.Codes {
		buf.WriteByte(byte(c))
	}
	fh := &FixedHeader{PacketType: SUBACK, Flags: FixedHeaderFlagReserved}
	return encode(fh, buf, w)
}

func NewSuback(fixedHeader *FixedHeader, r io.Reader) (*Suback, error) {
	if fixedHeader.Flags != FixedHeaderFlagReserved {
		return nil, xerror.ErrMalformed
	}
	rest := make([]byte, fixedHeader.RemainLength)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, err
	}
	if len(rest) < 2 {
		return nil, xerror.ErrMalformed
	}
	s := &Suback{PacketId: uint16(rest[0])<<8 | uint16(rest[1])}
	for _, b := range rest[2:] {
		s.Codes = append(s.Codes, code.SubackCode(b))
	}
	return s, nil
}

// Unsubscribe represents the MQTT UNSUBSCRIBE packet. Fixed-header flags
// MUST be 0x02 (MQTT-3.10.1-1).
type Unsubscribe struct {
	PacketId uint16
	Filters  [][]byte
}

func (u *Unsubscribe) Type() Type { return UNSUBSCRIBE }

func (u *Unsubscribe) Encode(w io.Writer) error {
	buf := &bytes.Buffer{}
	writeUint16(buf, u.PacketId)
	for _, f := range u.Filters {
		fb, _, err := UTF8EncodedStrings(f)
		if err != nil {
			return err
		}
		buf.Write(fb)
	}
	fh := &FixedHeader{PacketType: UNSUBSCRIBE, Flags: FixedHeaderFlagPubrelSubUnsub}
	return encode(fh, buf, w)
}

func NewUnsubscribe(fixedHeader *FixedHeader, r io.Reader) (*Unsubscribe, error) {
	if fixedHeader.Flags != FixedHeaderFlagPubrelSubUnsub { // MQTT-3.10.1-1
		return nil, xerror.ErrMalformed
	}
	rest := make([]byte, fixedHeader.RemainLength)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(rest)
	pid, err := readUint16(buf)
	if err != nil {
		return nil, xerror.ErrMalformed
	}
	u := &Unsubscribe{PacketId: pid}
	for buf.Len() > 0 {
		filter, err := UTF8DecodedStrings(true, buf)
		if err != nil {
			return nil, err
		}
		u.Filters = append(u.Filters, filter)
	}
	if len(u.Filters) == 0 {
		return nil, xerror.ErrMalformed
	}
	return u, nil
}
