package packet

import (
	"io"

	"github.com/lumenmq/lighthouse/internal/xerror"
)

// Decode reads one fixed header and its body from r and returns the
// decoded Packet, dispatching on the packet type via a jump table.
// Decode takes no protocol version: CONNECT reads the protocol level
// from its own variable header, and every other packet type is
// version-independent in MQTT 3.1.1.
func Decode(r io.Reader) (Packet, error) {
	fh, err := DecodeFixedHeader(r)
	if err != nil {
		return nil, err
	}
	return decodeBody(fh, r)
}

func decodeBody(fh *FixedHeader, r io.Reader) (Packet, error) {
	switch fh.PacketType {
	case CONNECT:
		return NewConnect(fh, VersionUnknown, r)
	case CONNACK:
		return NewConnack(fh, r)
	case PUBLISH:
		return NewPublish(fh, r)
	case PUBACK:
		return NewPuback(fh, r)
	case PUBREC:
		return NewPubrec(fh, r)
	case PUBREL:
		return NewPubrel(fh, r)
	case PUBCOMP:
		return NewPubcomp(fh, r)
	case SUBSCRIBE:
		return NewSubscribe(fh, r)
	case SUBACK:
		return NewSuback(fh, r)
	case UNSUBSCRIBE:
		return NewUnsubscribe(fh, r)
	case UNSUBACK:
		return NewUnsuback(fh, r)
	case PINGREQ:
		return NewPingreq(fh)
	case PINGRESP:
		return NewPingresp(fh)
	case DISCONNECT:
		return NewDisconnect(fh)
	default:
		return nil, xerror.ErrMalformed
	}
}
