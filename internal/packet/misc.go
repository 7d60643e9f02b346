package packet

import (
	"bytes"
	"io"

	"github.com/lumenmq/lighthouse/internal/xerror"
)

// Pingreq / Pingresp / Disconnect carry no variable header or payload.

type Pingreq struct{}

func (Pingreq) Type() Type { return PINGREQ }
func (Pingreq) Encode(w io.Writer) error {
	return encode(&FixedHeader{PacketType: PINGREQ, Flags: FixedHeaderFlagReserved}, &bytes.Buffer{}, w)
}
func NewPingreq(fixedHeader *FixedHeader) (Pingreq, error) {
	if fixedHeader.Flags != FixedHeaderFlagReserved || fixedHeader.RemainLength != 0 {
		return Pingreq{}, xerror.ErrMalformed
	}
	return Pingreq{}, nil
}

type Pingresp struct{}

func (Pingresp) Type() Type { return PINGRESP }
func (Pingresp) Encode(w io.Writer) error {
	return encode(&FixedHeader{PacketType: PINGRESP, Flags: FixedHeaderFlagReserved}, &bytes.Buffer{}, w)
}
func NewPingresp(fixedHeader *FixedHeader) (Pingresp, error) {
	if fixedHeader.Flags != FixedHeaderFlagReserved || fixedHeader.RemainLength != 0 {
		return Pingresp{}, xerror.ErrMalformed
	}
	return Pingresp{}, nil
}

type Disconnect struct{}

func (Disconnect) Type() Type { return DISCONNECT }
func (Disconnect) Encode(w io.Writer) error {
	return encode(&FixedHeader{PacketType: DISCONNECT, Flags: FixedHeaderFlagReserved}, &bytes.Buffer{}, w)
}
func NewDisconnect(fixedHeader *FixedHeader) (Disconnect, error) {
	if fixedHeader.Flags != FixedHeaderFlagReserved || fixedHeader.RemainLength != 0 {
		return Disconnect{}, xerror.ErrMalformed
	}
	return Disconnect{}, nil
}
