package packet

import (
	"bytes"
	"io"

	"github.com/lumenmq/lighthouse/internal/xerror"
)

// Publish represents the MQTT PUBLISH packet. The topic MUST NOT contain
// wildcards (MQTT-3.3.2-2) and the packet id is present iff QoS > 0.
type Publish struct {
	FixedHeader *FixedHeader

	Dup      bool
	QoS      byte
	Retain   bool
	Topic    []byte
	PacketId uint16
	Payload  []byte
}

func (p *Publish) Type() Type { return PUBLISH }

func (p *Publish) Encode(w io.Writer) error {
	if p.QoS == 0 && p.Dup { // MQTT-3.3.1-2
		return xerror.ErrProtocolViolation
	}
	buf := &bytes.Buffer{}
	topicBytes, _, err := UTF8EncodedStrings(p.Topic)
	if err != nil {
		return err
	}
	buf.Write(topicBytes)
	if p.QoS > 0 {
		writeUint16(buf, p.PacketId)
	}
	buf.Write(p.Payload)

	var flags byte
	if p.Dup {
		flags |= 0x08
	}
	flags |= (p.QoS & 0x03) << 1
	if p.Retain {
		flags |= 0x01
	}
	fh := &FixedHeader{PacketType: PUBLISH, Flags: flags}
	return encode(fh, buf, w)
}

// NewPublish decodes a PUBLISH packet. The payload is returned verbatim
// (no UTF-8 assumption); the topic string is decoded leniently.
func NewPublish(fixedHeader *FixedHeader, r io.Reader) (*Publish, error) {
	dup := fixedHeader.Flags&0x08 != 0
	qos := (fixedHeader.Flags >> 1) & 0x03
	retain := fixedHeader.Flags&0x01 != 0
	if qos == 3 {
		return nil, xerror.ErrMalformed
	}
	// QoS 0 with DUP set [MQTT-3.3.1-2] is a peer misbehaving, not framing
	// corruption: the packet still decodes and the handler logs and drops
	// it rather than the whole connection going down over one message.

	rest := make([]byte, fixedHeader.RemainLength)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(rest)

	topic, err := UTF8DecodedStrings(true, buf)
	if err != nil {
		return nil, err
	}
	if bytes.ContainsAny(topic, "+#") { // MQTT-3.3.2-2
		return nil, xerror.ErrProtocolViolation
	}

	p := &Publish{
		FixedHeader: fixedHeader,
		Dup:         dup,
		QoS:         qos,
		Retain:      retain,
		Topic:       topic,
	}
	if qos > 0 {
		pid, err := readUint16(buf)
		if err != nil {
			return nil, xerror.ErrMalformed
		}
		p.PacketId = pid
	}
	p.Payload = append([]byte(nil), buf.Bytes()...)
	return p, nil
}
